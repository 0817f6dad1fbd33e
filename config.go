package termdex

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the writer options.
type Config struct {
	Writer  WriterConfig  `yaml:"writer"`
	Terms   TermsConfig   `yaml:"terms"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
}

// WriterConfig controls buffering and the segment file layout.
type WriterConfig struct {
	RAMBufferMB     float64 `yaml:"ramBufferMB"`
	MaxThreadStates int     `yaml:"maxThreadStates"`
	CompoundFile    bool    `yaml:"compoundFile"`
	VerifyWorkers   int     `yaml:"verifyWorkers"`
}

// TermsConfig controls the term dictionary and skip lists.
type TermsConfig struct {
	IndexInterval          int     `yaml:"indexInterval"`
	SkipInterval           int     `yaml:"skipInterval"`
	MaxSkipLevels          int     `yaml:"maxSkipLevels"`
	BloomFalsePositiveRate float64 `yaml:"bloomFalsePositiveRate"`
}

// LimitsConfig holds resource limits. Zero means unlimited.
type LimitsConfig struct {
	MemoryLimitBytes   int64 `yaml:"memoryLimitBytes"`
	IOLimitBytesPerSec int64 `yaml:"ioLimitBytesPerSec"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration matching Open without options.
func DefaultConfig() *Config {
	o := applyOptions(nil)
	return &Config{
		Writer: WriterConfig{
			RAMBufferMB:     float64(o.ramBufferSize) / (1 << 20),
			MaxThreadStates: o.maxThreadStates,
			CompoundFile:    o.compoundFile,
		},
		Terms: TermsConfig{
			IndexInterval: o.terms.IndexInterval,
			SkipInterval:  o.terms.SkipInterval,
			MaxSkipLevels: o.terms.MaxSkipLevels,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML config file (if provided) and applies
// TERMDEX_* environment overrides. Missing values keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no writer can run with.
func (c *Config) Validate() error {
	switch {
	case c.Writer.RAMBufferMB <= 0:
		return fmt.Errorf("%w: ramBufferMB must be positive", ErrInvalidArgument)
	case c.Writer.MaxThreadStates <= 0:
		return fmt.Errorf("%w: maxThreadStates must be positive", ErrInvalidArgument)
	case c.Terms.IndexInterval <= 0:
		return fmt.Errorf("%w: indexInterval must be positive", ErrInvalidArgument)
	case c.Terms.SkipInterval < 2:
		return fmt.Errorf("%w: skipInterval must be at least 2", ErrInvalidArgument)
	case c.Terms.MaxSkipLevels <= 0:
		return fmt.Errorf("%w: maxSkipLevels must be positive", ErrInvalidArgument)
	case c.Terms.BloomFalsePositiveRate < 0 || c.Terms.BloomFalsePositiveRate >= 1:
		return fmt.Errorf("%w: bloomFalsePositiveRate must be in [0, 1)", ErrInvalidArgument)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Options converts the configuration to writer options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithRAMBufferSize(int64(c.Writer.RAMBufferMB * (1 << 20))),
		WithMaxThreadStates(c.Writer.MaxThreadStates),
		WithCompoundFile(c.Writer.CompoundFile),
		WithTermIndexInterval(c.Terms.IndexInterval),
		WithSkipInterval(c.Terms.SkipInterval),
		WithMaxSkipLevels(c.Terms.MaxSkipLevels),
		WithBloomFalsePositiveRate(c.Terms.BloomFalsePositiveRate),
		WithMemoryLimit(c.Limits.MemoryLimitBytes),
		WithIOLimit(c.Limits.IOLimitBytesPerSec),
	}
	if c.Writer.VerifyWorkers > 0 {
		opts = append(opts, WithVerifyChecksums(c.Writer.VerifyWorkers))
	}
	level, _ := parseLevel(c.Logging.Level)
	if strings.EqualFold(c.Logging.Format, "json") {
		opts = append(opts, WithLogger(NewJSONLogger(level)))
	} else {
		opts = append(opts, WithLogger(NewTextLogger(level)))
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: logging level %q", ErrInvalidArgument, s)
	}
	return level, nil
}

// applyEnvOverrides reads TERMDEX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMDEX_RAM_BUFFER_MB"); v != "" {
		if mb, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Writer.RAMBufferMB = mb
		}
	}
	if v := os.Getenv("TERMDEX_MAX_THREAD_STATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Writer.MaxThreadStates = n
		}
	}
	if v := os.Getenv("TERMDEX_COMPOUND_FILE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Writer.CompoundFile = b
		}
	}
	if v := os.Getenv("TERMDEX_SKIP_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Terms.SkipInterval = n
		}
	}
	if v := os.Getenv("TERMDEX_TERM_INDEX_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Terms.IndexInterval = n
		}
	}
	if v := os.Getenv("TERMDEX_MEMORY_LIMIT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MemoryLimitBytes = n
		}
	}
	if v := os.Getenv("TERMDEX_IO_LIMIT_BYTES_PER_SEC"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.IOLimitBytesPerSec = n
		}
	}
	if v := os.Getenv("TERMDEX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TERMDEX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
