package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBack(t *testing.T) {
	assert.Equal(t, "dflt", Get("PAPERGRAPH_TEST_UNSET", "dflt"))
	t.Setenv("PAPERGRAPH_TEST_SET", "value")
	assert.Equal(t, "value", Get("PAPERGRAPH_TEST_SET", "dflt"))
}

func TestGetIntInvalid(t *testing.T) {
	t.Setenv("PAPERGRAPH_TEST_INT", "not-a-number")
	assert.Equal(t, 7, GetInt("PAPERGRAPH_TEST_INT", 7))
	t.Setenv("PAPERGRAPH_TEST_INT", "42")
	assert.Equal(t, 42, GetInt("PAPERGRAPH_TEST_INT", 7))
}

func TestGetFloat(t *testing.T) {
	t.Setenv("PAPERGRAPH_TEST_FLOAT", "0.35")
	assert.InDelta(t, 0.35, GetFloat("PAPERGRAPH_TEST_FLOAT", 0.7), 1e-9)
}

func TestGetBool(t *testing.T) {
	t.Setenv("PAPERGRAPH_TEST_BOOL", "true")
	assert.True(t, GetBool("PAPERGRAPH_TEST_BOOL", false))
	t.Setenv("PAPERGRAPH_TEST_BOOL", "banana")
	assert.True(t, GetBool("PAPERGRAPH_TEST_BOOL", true))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("PAPERGRAPH_TEST_DUR", "150ms")
	assert.Equal(t, 150*time.Millisecond, GetDuration("PAPERGRAPH_TEST_DUR", time.Second))
}
