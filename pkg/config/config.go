// Package config provides configuration loading for papergraph.
//
// Configuration comes from three layers, later wins: built-in defaults, an
// optional YAML file, and PAPERGRAPH_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/papergraph/pkg/envutil"
)

// Config holds all configuration for the process.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the Badger data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EngineConfig holds the similarity engine knobs.
type EngineConfig struct {
	// Seed drives sampling, clustering, and projection randomness.
	Seed int64 `yaml:"seed"`

	DefaultThreshold float64 `yaml:"default_threshold"`
	DefaultMaxEdges  int     `yaml:"default_max_edges"`
	DefaultTopK      int     `yaml:"default_top_k"`

	ClusterMaxIterations int `yaml:"cluster_max_iterations"`

	ProjectionMaxIterations int     `yaml:"projection_max_iterations"`
	ProjectionTolerance     float64 `yaml:"projection_tolerance"`
	ProjectionScale         float64 `yaml:"projection_scale"`

	CacheEnabled bool `yaml:"cache_enabled"`

	// ComputeTimeout bounds one similarity/cluster/projection computation.
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Engine: EngineConfig{
			Seed:                    42,
			DefaultThreshold:        0.7,
			DefaultMaxEdges:         1000,
			DefaultTopK:             10,
			ClusterMaxIterations:    100,
			ProjectionMaxIterations: 500,
			ProjectionTolerance:     1e-6,
			ProjectionScale:         2.0,
			CacheEnabled:            true,
			ComputeTimeout:          2 * time.Minute,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Debug = envutil.GetBool("PAPERGRAPH_DEBUG", c.Debug)

	c.Server.Host = envutil.Get("PAPERGRAPH_HOST", c.Server.Host)
	c.Server.Port = envutil.GetInt("PAPERGRAPH_PORT", c.Server.Port)

	c.Storage.DataDir = envutil.Get("PAPERGRAPH_DATA_DIR", c.Storage.DataDir)

	c.Engine.Seed = envutil.GetInt64("PAPERGRAPH_SEED", c.Engine.Seed)
	c.Engine.DefaultThreshold = envutil.GetFloat("PAPERGRAPH_DEFAULT_THRESHOLD", c.Engine.DefaultThreshold)
	c.Engine.DefaultMaxEdges = envutil.GetInt("PAPERGRAPH_DEFAULT_MAX_EDGES", c.Engine.DefaultMaxEdges)
	c.Engine.DefaultTopK = envutil.GetInt("PAPERGRAPH_DEFAULT_TOP_K", c.Engine.DefaultTopK)
	c.Engine.CacheEnabled = envutil.GetBool("PAPERGRAPH_CACHE_ENABLED", c.Engine.CacheEnabled)
	c.Engine.ComputeTimeout = envutil.GetDuration("PAPERGRAPH_COMPUTE_TIMEOUT", c.Engine.ComputeTimeout)
}
