package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orneryd/papergraph/pkg/config"
	"github.com/orneryd/papergraph/pkg/embeddings"
	"github.com/orneryd/papergraph/pkg/papergraph"
	"github.com/orneryd/papergraph/pkg/papers"
	"github.com/orneryd/papergraph/pkg/resultcache"
	"github.com/orneryd/papergraph/pkg/server"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "papergraph",
		Short:        "Embedding-driven similarity graph engine for paper corpora",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCommand(&configPath),
		newIngestCommand(&configPath),
		newStatsCommand(&configPath),
		newCacheCommand(&configPath),
	)
	return root
}

// app bundles the opened stores; Close releases the database.
type app struct {
	cfg    *config.Config
	db     *badger.DB
	emb    *embeddings.Store
	papers *papers.Store
	engine *papergraph.Engine
	log    zerolog.Logger
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(cfg.Storage.DataDir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	emb := embeddings.NewStore(db, log)
	meta := papers.NewStore(db, log)

	var cache *resultcache.Cache
	if cfg.Engine.CacheEnabled {
		cache = resultcache.New(db, log)
	}

	return &app{
		cfg:    cfg,
		db:     db,
		emb:    emb,
		papers: meta,
		engine: papergraph.New(cfg.Engine, emb, meta, cache, log),
		log:    log,
	}, nil
}

// load reads every stored paper and embedding into memory.
func (a *app) load(ctx context.Context) error {
	if err := a.papers.Load(ctx); err != nil {
		return fmt.Errorf("load papers: %w", err)
	}
	if err := a.emb.Load(ctx); err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	a.log.Info().
		Int("papers", a.papers.Count()).
		Int("embeddings", a.emb.Count()).
		Int("dimensions", a.emb.Dimensions()).
		Msg("corpus loaded")
	return nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("close store")
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the corpus and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			srv := server.New(a.cfg, a.engine, a.papers, a.log)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				a.log.Info().Str("signal", s.String()).Msg("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
}

// corpusFile is the ingest input: paper metadata plus embeddings keyed by
// paper ID.
type corpusFile struct {
	Papers     []*papers.Paper      `json:"papers"`
	Embeddings map[string][]float32 `json:"embeddings"`
}

func newIngestCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <corpus.json>",
		Short: "Import a corpus file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read corpus: %w", err)
			}
			var corpus corpusFile
			if err := json.Unmarshal(raw, &corpus); err != nil {
				return fmt.Errorf("parse corpus: %w", err)
			}

			for _, p := range corpus.Papers {
				if err := a.papers.Put(p); err != nil {
					return fmt.Errorf("store paper %s: %w", p.ID, err)
				}
			}
			for id, vec := range corpus.Embeddings {
				if err := a.emb.Put(id, vec); err != nil {
					return fmt.Errorf("store embedding %s: %w", id, err)
				}
			}

			// Stored results describe the previous corpus.
			if n, err := a.engine.ClearCache(); err != nil {
				a.log.Warn().Err(err).Msg("clear cache after ingest")
			} else if n > 0 {
				a.log.Info().Int("entries", n).Msg("cache cleared")
			}

			a.log.Info().
				Int("papers", len(corpus.Papers)).
				Int("embeddings", len(corpus.Embeddings)).
				Msg("corpus ingested")
			return nil
		},
	}
}

func newStatsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			stats, err := a.engine.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newCacheCommand(configPath *string) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}
	cache.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.engine.ClearCache()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cached results\n", n)
			return nil
		},
	})
	return cache
}
