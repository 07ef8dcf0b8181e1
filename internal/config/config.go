// Package config handles configuration loading for the tile server.
package config

import (
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/geotms/server/internal/tmserr"
	"github.com/geotms/server/pkg/colormap"
)

// EnvPrefix prefixes every environment override, e.g. TMS_SERVER_PORT.
const EnvPrefix = "TMS_"

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Sources []SourceConfig `yaml:"sources"`
	Display DisplayConfig  `yaml:"display" envPrefix:"DISPLAY_"`
	Cache   CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Render  RenderConfig   `yaml:"render" envPrefix:"RENDER_"`
	Log     LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host" env:"HOST"`
	Port        int      `yaml:"port" env:"PORT"`
	Handshake   string   `yaml:"handshake" env:"HANDSHAKE"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	// ShutdownTimeout bounds how long Unbind waits for in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// SourceConfig names a tile catalog and the layer to serve from it.
type SourceConfig struct {
	Catalog string `yaml:"catalog"`
	Layer   string `yaml:"layer"`
}

// DisplayConfig selects how source tiles become images.
type DisplayConfig struct {
	// Mode is "colormap" for a single source or "rgb" to map three
	// sources, or the first three bands of one, to red, green and blue.
	Mode           string    `yaml:"mode" env:"MODE"`
	Ramp           string    `yaml:"ramp" env:"RAMP"`
	Min            float64   `yaml:"min" env:"MIN"`
	Max            float64   `yaml:"max" env:"MAX"`
	Steps          int       `yaml:"steps" env:"STEPS"`
	Breaks         []float64 `yaml:"breaks" env:"BREAKS" envSeparator:","`
	Colors         []string  `yaml:"colors" env:"COLORS" envSeparator:","`
	Classification string    `yaml:"classification" env:"CLASSIFICATION"`
	NoDataColor    string    `yaml:"nodata_color" env:"NODATA_COLOR"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB         int `yaml:"tile_size_mb" env:"TILE_SIZE_MB"`
	TileTTLMinutes     int `yaml:"tile_ttl_minutes" env:"TILE_TTL_MINUTES"`
	SourceCacheEntries int `yaml:"source_cache_entries" env:"SOURCE_CACHE_ENTRIES"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize      int           `yaml:"tile_size" env:"TILE_SIZE"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// Load reads configuration from a YAML file, then applies overrides from
// TMS_* environment variables. Loading a .env file is left to the caller.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		applyDefaults(cfg)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 5 * time.Second,
		},
		Display: DisplayConfig{
			Mode:  "colormap",
			Ramp:  "viridis",
			Min:   0,
			Max:   1,
			Steps: 0,
		},
		Cache: CacheConfig{
			TileSizeMB:         512,
			TileTTLMinutes:     10,
			SourceCacheEntries: 1024,
		},
		Render: RenderConfig{
			TileSize:      256,
			Timeout:       30 * time.Second,
			MaxConcurrent: 16,
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if cfg.Display.Mode == "" {
		cfg.Display.Mode = defaults.Display.Mode
	}
	if cfg.Display.Ramp == "" && len(cfg.Display.Colors) == 0 {
		cfg.Display.Ramp = defaults.Display.Ramp
	}
	if cfg.Display.Min == 0 && cfg.Display.Max == 0 {
		cfg.Display.Max = defaults.Display.Max
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.SourceCacheEntries == 0 {
		cfg.Cache.SourceCacheEntries = defaults.Cache.SourceCacheEntries
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = defaults.Render.Timeout
	}
	if cfg.Render.MaxConcurrent == 0 {
		cfg.Render.MaxConcurrent = defaults.Render.MaxConcurrent
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return tmserr.Configf("server port %d out of range", c.Server.Port)
	}
	if len(c.Sources) == 0 {
		return tmserr.Configf("no sources configured")
	}
	for i, s := range c.Sources {
		if s.Catalog == "" || s.Layer == "" {
			return tmserr.Configf("source %d needs both catalog and layer", i)
		}
	}
	switch strings.ToLower(c.Display.Mode) {
	case "colormap":
		if len(c.Sources) != 1 {
			return tmserr.Configf("colormap display takes one source, got %d", len(c.Sources))
		}
		if _, err := c.Display.ColorMap(); err != nil {
			return err
		}
	case "rgb":
		if len(c.Sources) != 1 && len(c.Sources) != 3 {
			return tmserr.Configf("rgb display takes three sources or one three-band source, got %d", len(c.Sources))
		}
		if c.Display.Max <= c.Display.Min {
			return tmserr.Configf("rgb display needs max > min")
		}
	default:
		return tmserr.Configf("unknown display mode %q", c.Display.Mode)
	}
	return nil
}

// ColorMap builds the color map described by explicit breaks and colors,
// or by a named ramp stretched over [Min, Max].
func (d DisplayConfig) ColorMap() (*colormap.ColorMap, error) {
	class, err := colormap.ParseClassification(d.Classification)
	if err != nil {
		return nil, tmserr.Configf("%v", err)
	}
	var nodata color.RGBA
	if d.NoDataColor != "" {
		if nodata, err = colormap.ParseHex(d.NoDataColor); err != nil {
			return nil, tmserr.Configf("nodata_color: %v", err)
		}
	}

	if len(d.Breaks) > 0 {
		colors := make([]color.RGBA, 0, len(d.Colors))
		for _, s := range d.Colors {
			c, err := colormap.ParseHex(s)
			if err != nil {
				return nil, tmserr.Configf("colors: %v", err)
			}
			colors = append(colors, c)
		}
		if len(colors) == 0 {
			if colors, err = colormap.Colors(d.Ramp, len(d.Breaks)); err != nil {
				return nil, tmserr.Configf("%v", err)
			}
		}
		if len(colors) != len(d.Breaks) {
			return nil, tmserr.Configf("%d breaks need %d colors, got %d", len(d.Breaks), len(d.Breaks), len(colors))
		}
		cm, err := colormap.FromBreaks(d.Breaks, colors, colormap.Options{Classification: class, NoDataColor: nodata})
		if err != nil {
			return nil, tmserr.Configf("%v", err)
		}
		return cm, nil
	}

	if d.Max <= d.Min {
		return nil, tmserr.Configf("display needs max > min, got [%g, %g]", d.Min, d.Max)
	}
	cm, err := colormap.FromRamp(d.Ramp, d.Min, d.Max, d.Steps)
	if err != nil {
		return nil, tmserr.Configf("%v", err)
	}
	return cm, nil
}
