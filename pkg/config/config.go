package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	LOS     LOSConfig     `yaml:"los"`
	Terrain TerrainConfig `yaml:"terrain"`
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LOSConfig holds line-of-sight analyzer settings.
type LOSConfig struct {
	SampleSpacing   Distance `yaml:"sample_spacing"` // 0 = terrain resolution
	Lookahead       int      `yaml:"lookahead"`
	IncludeEndpoint bool     `yaml:"include_endpoint"`
	Timeout         Duration `yaml:"timeout"`
}

// TerrainConfig holds elevation source settings.
type TerrainConfig struct {
	Provider      string   `yaml:"provider"` // "grid", "flat"
	ElevationFile string   `yaml:"elevation_file"`
	OriginX       float64  `yaml:"origin_x"`
	OriginY       float64  `yaml:"origin_y"`
	CellSize      Distance `yaml:"cell_size"`
	Rows          int      `yaml:"rows"`
	Cols          int      `yaml:"cols"`
	NoData        int16    `yaml:"nodata"`
	FlatElevation float64  `yaml:"flat_elevation"`
	CacheEntries  int      `yaml:"cache_entries"` // In-memory lookups kept, 0 = off
	PersistCache  bool     `yaml:"persist_cache"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path   string `yaml:"path"`
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR
	Format string `yaml:"format"` // File encoding; console output is always text
}

// Log file formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DBConfig holds database settings.
type DBConfig struct {
	Path          string   `yaml:"path"`
	HistoryLimit  int      `yaml:"history_limit"`
	RetainFor     Duration `yaml:"retain_for"`
	PruneInterval Duration `yaml:"prune_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // "stdout", "otlp"
	Endpoint    string  `yaml:"endpoint"` // OTLP gRPC collector, host:port
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Tracing exporter names.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Terrain provider names.
const (
	ProviderGrid = "grid"
	ProviderFlat = "flat"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LOS: LOSConfig{
			SampleSpacing:   0,
			Lookahead:       8,
			IncludeEndpoint: false,
			Timeout:         Duration(10 * time.Second),
		},
		Terrain: TerrainConfig{
			Provider:      ProviderFlat,
			ElevationFile: "data/dem/terrain.bin",
			CellSize:      Distance(30),
			NoData:        -32768,
			FlatElevation: 0,
			CacheEntries:  100000,
			PersistCache:  false,
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:   "./logs/server.log",
				Level:  "INFO",
				Format: LogFormatText,
			},
			Requests: LogSettings{
				Path:   "./logs/requests.log",
				Level:  "INFO",
				Format: LogFormatJSON,
			},
		},
		DB: DBConfig{
			Path:          "./data/sightline.db",
			HistoryLimit:  100,
			RetainFor:     Duration(30 * Day),
			PruneInterval: Duration(6 * time.Hour),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sightline",
			Exporter:    ExporterStdout,
			Endpoint:    "localhost:4317",
			SampleRatio: 1.0,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env overrides are applied after saving so they never reach the file.
	if file := os.Getenv("SIGHTLINE_ELEVATION_FILE"); file != "" {
		cfg.Terrain.ElevationFile = file
	}
	if endpoint := os.Getenv("SIGHTLINE_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
	}
	cfg.Terrain.ElevationFile = expandPath(cfg.Terrain.ElevationFile)
	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Log.Server.Path = expandPath(cfg.Log.Server.Path)
	cfg.Log.Requests.Path = expandPath(cfg.Log.Requests.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a query.
func (c *Config) Validate() error {
	if c.LOS.SampleSpacing < 0 {
		return fmt.Errorf("los.sample_spacing must not be negative, got %v", float64(c.LOS.SampleSpacing))
	}
	if c.LOS.Lookahead < 0 {
		return fmt.Errorf("los.lookahead must not be negative, got %d", c.LOS.Lookahead)
	}

	switch c.Terrain.Provider {
	case ProviderFlat:
	case ProviderGrid:
		if c.Terrain.ElevationFile == "" {
			return fmt.Errorf("terrain.elevation_file is required for the grid provider")
		}
		if c.Terrain.Rows <= 0 || c.Terrain.Cols <= 0 {
			return fmt.Errorf("terrain.rows and terrain.cols must be positive for the grid provider")
		}
		if c.Terrain.CellSize <= 0 {
			return fmt.Errorf("terrain.cell_size must be positive for the grid provider")
		}
	default:
		return fmt.Errorf("unknown terrain.provider '%s': must be '%s' or '%s'", c.Terrain.Provider, ProviderGrid, ProviderFlat)
	}

	switch c.Tracing.Exporter {
	case ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("unknown tracing.exporter '%s': must be '%s' or '%s'", c.Tracing.Exporter, ExporterStdout, ExporterOTLP)
	}
	for _, l := range []struct {
		name string
		LogSettings
	}{{"server", c.Log.Server}, {"requests", c.Log.Requests}} {
		switch l.Format {
		case "", LogFormatText, LogFormatJSON:
		default:
			return fmt.Errorf("unknown log.%s.format '%s': must be '%s' or '%s'", l.name, l.Format, LogFormatText, LogFormatJSON)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// %VAR% is accepted alongside $VAR so Windows-style configs keep working.
var winEnvRe = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = winEnvRe.ReplaceAllStringFunc(p, func(m string) string {
		return os.Getenv(strings.Trim(m, "%"))
	})
	return os.ExpandEnv(p)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Sightline Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	// Inject comments for enum and sentinel fields.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: grid, flat\n${1}provider:"))

	reExporter := regexp.MustCompile(`(?m)^(\s+)exporter:`)
	data = reExporter.ReplaceAll(data, []byte("${1}# Options: stdout, otlp\n${1}exporter:"))

	reFormat := regexp.MustCompile(`(?m)^(\s+)format:`)
	data = reFormat.ReplaceAll(data, []byte("${1}# Options: text, json\n${1}format:"))

	reSpacing := regexp.MustCompile(`(?m)^(\s+)sample_spacing:`)
	data = reSpacing.ReplaceAll(data, []byte("${1}# 0 uses the terrain cell size\n${1}sample_spacing:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
