// Package config loads the toolchain configuration: a YAML policy file plus
// environment overrides, with .env support for local development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sdslc/internal/diag"
)

type Config struct {
	Output struct {
		// Root is the directory every generated artifact must stay under.
		Root string `yaml:"root"`
	} `yaml:"output"`
	Evidence struct {
		// Sources lists the Go files or directories harvested for
		// dependency evidence, relative to the working directory.
		Sources []string `yaml:"sources"`
	} `yaml:"evidence"`
	Storage struct {
		// Path is the sqlite snapshot database; empty disables snapshots.
		Path string `yaml:"path"`
	} `yaml:"storage"`
	// Severities overrides the reported severity per diagnostic code.
	// Only "error" and "warn" are accepted; codes keep their built-in
	// severity when absent.
	Severities map[string]string `yaml:"severities"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Output.Root = "gen"
	cfg.Evidence.Sources = []string{"."}
	return cfg
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, and validates the severity table. An empty path yields the
// defaults with environment overrides still applied.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// 2. Override with environment variables if present
	if root := os.Getenv("SDSLC_OUTPUT_ROOT"); root != "" {
		cfg.Output.Root = root
	}
	if dbPath := os.Getenv("SDSLC_DB_PATH"); dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Output.Root == "" {
		return fmt.Errorf("output.root must not be empty")
	}
	for code, sev := range c.Severities {
		switch diag.Severity(sev) {
		case diag.SeverityError, diag.SeverityWarn:
		default:
			return fmt.Errorf("severities[%s]: unknown severity %q", code, sev)
		}
	}
	return nil
}

// ApplySeverities rewrites record severities per the override table and
// returns the adjusted slice. Records with codes not in the table pass
// through unchanged.
func (c *Config) ApplySeverities(recs []diag.Record) []diag.Record {
	if len(c.Severities) == 0 {
		return recs
	}
	out := make([]diag.Record, len(recs))
	for i, r := range recs {
		if sev, ok := c.Severities[string(r.Code)]; ok {
			r.Severity = diag.Severity(sev)
		}
		out[i] = r
	}
	return out
}
