// Command papergraph runs the similarity graph engine: serve the HTTP API,
// ingest a corpus file, inspect corpus statistics, or clear the result cache.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
