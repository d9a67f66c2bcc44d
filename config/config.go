package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "MINISERVER"

// Config holds all application configuration.
type Config struct {
	Port          int           `config:"port" json:"port"`
	BufferSize    int           `config:"buffer.size" json:"buffer_size"`
	Workers       int           `config:"workers" json:"workers"`
	ReadTimeout   time.Duration `config:"read.timeout" json:"read_timeout"`
	WriteTimeout  time.Duration `config:"write.timeout" json:"write_timeout"`
	MaxConns      int           `config:"max.conns" json:"max_conns"`
	ReasonPhrases bool          `config:"reason.phrases" json:"reason_phrases"`
	Env           string        `config:"env" json:"env"`
	LogLevel      string        `config:"log.level" json:"log_level"`
	StaticDir     string        `config:"static.dir" json:"static_dir"`
	TemplateDir   string        `config:"template.dir" json:"template_dir"`
	ConfigFile    string        `config:"-" json:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:         8080,
		BufferSize:   30720,
		Workers:      runtime.NumCPU(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Env:          "development",
		LogLevel:     "info",
	}
}

// Addr returns the listen address for Port
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsProduction reports whether Env is "production"
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// New loads configuration from the process flags and environment and exits
// with status 2 if it is invalid.
func New() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}
	return cfg
}

// Load builds a Config from, in increasing priority: defaults, the JSON
// file named by -config or MINISERVER_CONFIG, MINISERVER_* environment
// variables and flags given in args.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fl := *cfg
	fs := flag.NewFlagSet("mini-server", flag.ContinueOnError)
	fs.IntVar(&fl.Port, "port", cfg.Port, "HTTP server port")
	fs.IntVar(&fl.BufferSize, "buffer-size", cfg.BufferSize, "Per-connection read buffer (bytes)")
	fs.IntVar(&fl.Workers, "workers", cfg.Workers, "Worker goroutines")
	fs.DurationVar(&fl.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Wait for a request before closing")
	fs.DurationVar(&fl.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Response write timeout")
	fs.IntVar(&fl.MaxConns, "max-conns", cfg.MaxConns, "Max open connections (0 = unbounded)")
	fs.BoolVar(&fl.ReasonPhrases, "reason-phrases", cfg.ReasonPhrases, "Standard reason phrases instead of OK")
	fs.StringVar(&fl.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&fl.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")
	fs.StringVar(&fl.StaticDir, "static-dir", cfg.StaticDir, "Root for static files (empty = working directory)")
	fs.StringVar(&fl.TemplateDir, "template-dir", cfg.TemplateDir, "Root for templates (empty = working directory)")
	fs.StringVar(&fl.ConfigFile, "config", "", "JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	env := NewManager()
	env.LoadFromEnv(EnvPrefix)

	cfg.ConfigFile = env.GetString("config")
	if set["config"] {
		cfg.ConfigFile = fl.ConfigFile
	}
	if cfg.ConfigFile != "" {
		file := NewManager()
		if err := file.LoadFromJSON(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := file.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", cfg.ConfigFile, err)
		}
	}

	if err := env.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fl.Port
		case "buffer-size":
			cfg.BufferSize = fl.BufferSize
		case "workers":
			cfg.Workers = fl.Workers
		case "read-timeout":
			cfg.ReadTimeout = fl.ReadTimeout
		case "write-timeout":
			cfg.WriteTimeout = fl.WriteTimeout
		case "max-conns":
			cfg.MaxConns = fl.MaxConns
		case "reason-phrases":
			cfg.ReasonPhrases = fl.ReasonPhrases
		case "env":
			cfg.Env = fl.Env
		case "log-level":
			cfg.LogLevel = fl.LogLevel
		case "static-dir":
			cfg.StaticDir = fl.StaticDir
		case "template-dir":
			cfg.TemplateDir = fl.TemplateDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("config: buffer size must be positive, got %d", c.BufferSize)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("config: max conns must not be negative")
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("config: unknown env %q", c.Env)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level returns the parsed log level, info if LogLevel is invalid
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
