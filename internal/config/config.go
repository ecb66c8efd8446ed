package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/sciencesync/internal/cluster"
	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/extract"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Clustering Clustering `yaml:"clustering"`
	Dedup      Dedup      `yaml:"dedup"`
	Enrichment Enrichment `yaml:"enrichment"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Sources struct {
	AlertDir      string `yaml:"alert_dir"`
	Format        string `yaml:"format"`
	SubjectFilter string `yaml:"subject_filter"`
	Workers       int    `yaml:"workers"`
}

// Clustering is the run configuration of the clustering engine.
type Clustering struct {
	Metric        string `yaml:"metric"`
	Algorithm     string `yaml:"algorithm"`
	NClusters     int    `yaml:"n_clusters"`
	Linkage       string `yaml:"linkage"`
	Seed          int64  `yaml:"seed"`
	MaxIterations int    `yaml:"max_iterations"`
	SuggestMinK   int    `yaml:"suggest_min_k"`
	SuggestMaxK   int    `yaml:"suggest_max_k"`
	// DaysAgo limits runs to articles received in the last DaysAgo days; 0 takes all.
	DaysAgo int `yaml:"days_ago"`
}

type Dedup struct {
	LinkIdentity bool `yaml:"link_identity"`
}

type Enrichment struct {
	FetchSnippets  bool   `yaml:"fetch_snippets"`
	CrossRef       bool   `yaml:"crossref"`
	CrossRefURL    string `yaml:"crossref_url"`
	Mailto         string `yaml:"mailto"`
	Concurrency    int    `yaml:"concurrency"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Cache          Cache  `yaml:"cache"`
}

type Cache struct {
	RedisAddr string `yaml:"redis_addr"`
	TTLHours  int    `yaml:"ttl_hours"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for sciencesync.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "sciencesync")
}

// DataDir returns the XDG data directory for sciencesync.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "sciencesync")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/sciencesync/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'sciencesync init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes the default config to path unless a file already exists there.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration used for fields a file leaves out.
func Default() *Config {
	return &Config{
		Sources: Sources{
			Format:        extract.AutoFormat,
			SubjectFilter: "new citation",
			Workers:       4,
		},
		Clustering: Clustering{
			Metric:        string(distance.Jaccard),
			Algorithm:     string(cluster.KMedoids),
			NClusters:     5,
			Linkage:       string(cluster.Average),
			Seed:          1,
			MaxIterations: cluster.DefaultMaxIterations,
			SuggestMinK:   2,
			SuggestMaxK:   10,
		},
		Enrichment: Enrichment{
			CrossRefURL:    "https://api.crossref.org",
			Concurrency:    4,
			TimeoutSeconds: 20,
			Cache:          Cache{TTLHours: 720},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Env: "dev", Level: "info"},
	}
}

// Validate checks every section that can be checked without touching data.
func (c *Config) Validate() error {
	if err := c.Clustering.Validate(); err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	if c.Sources.Format != extract.AutoFormat {
		if _, err := extract.Lookup(c.Sources.Format); err != nil {
			return fmt.Errorf("sources: %w", err)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	return nil
}

// Options converts the run configuration into clustering options. Names are returned in
// canonical form when the configuration is valid, and verbatim otherwise so that Validate
// can report them.
func (c Clustering) Options() cluster.Options {
	opts := cluster.Options{
		Algorithm:     cluster.Algorithm(c.Algorithm),
		Metric:        distance.Metric(c.Metric),
		K:             c.NClusters,
		Linkage:       cluster.Linkage(c.Linkage),
		Seed:          c.Seed,
		MaxIterations: c.MaxIterations,
	}
	if canonical, err := opts.Canonical(); err == nil {
		return canonical
	}
	return opts
}

// Validate rejects unknown names, k < 1, a negative window and metric/algorithm combinations
// that cannot run.
func (c Clustering) Validate() error {
	if c.DaysAgo < 0 {
		return fmt.Errorf("days_ago must not be negative, got %d", c.DaysAgo)
	}
	return c.Options().Validate()
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetAlertDir returns the alert directory from config or <data_dir>/alerts.
func (c *Config) GetAlertDir() string {
	if c.Sources.AlertDir != "" {
		return c.Sources.AlertDir
	}
	return filepath.Join(c.GetDataDir(), "alerts")
}

// DBPath is the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "sciencesync.db")
}

// Timeout is the per-request enrichment timeout.
func (e Enrichment) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// TTL is how long cached lookups stay valid.
func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
