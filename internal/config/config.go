// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// SweepInterval controls how often the notification engine checks
	// pending contracts against the clock.
	SweepInterval time.Duration

	// Roulette animation: every spin highlights SpinMinTicks plus a random
	// extra up to SpinExtraTicks candidates, one every SpinTickInterval.
	SpinTickInterval time.Duration
	SpinMinTicks     int
	SpinExtraTicks   int

	Persona Persona
}

// Persona holds the Guardian's user-facing texture: who it talks to, the
// phrases that open design mode, and the boot sequence lines.
type Persona struct {
	UserName       string     `yaml:"user_name"`
	TriggerPhrases []string   `yaml:"trigger_phrases"`
	BootLines      []BootLine `yaml:"boot_lines"`
}

// BootLine is one line of the startup sequence shown by clients. It is
// served as-is by the boot endpoint, hence the JSON tags.
type BootLine struct {
	Text    string `yaml:"text" json:"text"`
	Animate bool   `yaml:"animate" json:"animate"`
}

// DefaultPersona returns the built-in persona used when no persona file is
// configured.
func DefaultPersona() Persona {
	return Persona{
		UserName: "friend",
		TriggerPhrases: []string{
			"design a contract",
			"create a contract",
			"forge a pact",
			"design mode",
		},
		BootLines: []BootLine{
			{Text: "Initializing core systems...", Animate: true},
			{Text: "Loading Guardian OS...", Animate: true},
			{Text: "Activating message protocol...", Animate: true},
			{Text: "Welcome back.", Animate: false},
		},
	}
}

// Load reads configuration from environment variables, plus an optional
// persona YAML file pointed at by GUARDIAN_PERSONA.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/guardian.db"),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Minute),
		SpinTickInterval: getEnvDuration("SPIN_TICK_INTERVAL", 100*time.Millisecond),
		SpinMinTicks:     getEnvInt("SPIN_MIN_TICKS", 20),
		SpinExtraTicks:   getEnvInt("SPIN_EXTRA_TICKS", 10),
		Persona:          DefaultPersona(),
	}

	if path := getEnv("GUARDIAN_PERSONA", ""); path != "" {
		if err := cfg.loadPersona(path); err != nil {
			return nil, fmt.Errorf("load persona file: %w", err)
		}
	}
	if name := getEnv("GUARDIAN_USER_NAME", ""); name != "" {
		cfg.Persona.UserName = name
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadPersona overlays persona fields from a YAML file. Fields the file
// omits keep their defaults.
func (c *Config) loadPersona(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if p.UserName != "" {
		c.Persona.UserName = p.UserName
	}
	if len(p.TriggerPhrases) > 0 {
		c.Persona.TriggerPhrases = p.TriggerPhrases
	}
	if len(p.BootLines) > 0 {
		c.Persona.BootLines = p.BootLines
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.SpinTickInterval <= 0 {
		return fmt.Errorf("SPIN_TICK_INTERVAL must be > 0")
	}
	if c.SpinMinTicks <= 0 {
		return fmt.Errorf("SPIN_MIN_TICKS must be > 0")
	}
	if c.SpinExtraTicks < 0 {
		return fmt.Errorf("SPIN_EXTRA_TICKS must be >= 0")
	}
	if len(c.Persona.TriggerPhrases) == 0 {
		return fmt.Errorf("persona must define at least one trigger phrase")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
