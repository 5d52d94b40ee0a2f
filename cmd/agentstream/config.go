package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/agentapi"
	"github.com/fwojciec/agentstream/frame"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = ".agentstream.yaml"

// Environment variables read by resolveConfig.
const (
	envAccessKey = "AGENTSTREAM_AK"
	envBaseURL   = "AGENTSTREAM_BASE_URL"
)

// Config holds the resolved settings of a command.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	WebSocket   string        `yaml:"websocket"`
	WorkerID    string        `yaml:"worker_id"`
	Framing     string        `yaml:"framing"`
	Payload     string        `yaml:"payload"`
	Tag         string        `yaml:"tag"`
	Throttle    time.Duration `yaml:"throttle"`
	MaxFrame    int           `yaml:"max_frame"`
	Transcripts string        `yaml:"transcripts"`
	LLM         LLMConfig     `yaml:"llm"`
}

// LLMConfig is the llm section of the config file.
type LLMConfig struct {
	AK     string `yaml:"ak"`
	APIURL string `yaml:"api_url"`
	Model  string `yaml:"model"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:  agentapi.DefaultBaseURL,
		Framing:  agentstream.StrategyDelimited.String(),
		Payload:  payloadJSON,
		Tag:      frame.DefaultTag,
		Throttle: agentstream.DefaultThrottleInterval,
		MaxFrame: frame.DefaultMaxFrameSize,
	}
}

// loadConfig reads the YAML file at path over the defaults. A missing file
// is an error only when required is set.
func loadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides cfg with set environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(envAccessKey); v != "" {
		c.LLM.AK = v
	}
	if v := getenv(envBaseURL); v != "" {
		c.BaseURL = v
	}
}

func (c Config) validate() error {
	if _, err := agentstream.ParseStrategy(c.Framing); err != nil {
		return err
	}
	if _, err := newClassifier(c); err != nil {
		return err
	}
	if c.Throttle <= 0 {
		return fmt.Errorf("throttle must be positive, got %s: %w", c.Throttle, agentstream.ErrValidation)
	}
	return nil
}

// flags are the persistent command-line settings.
type flags struct {
	config      string
	baseURL     string
	websocket   string
	workerID    string
	framing     string
	payload     string
	tag         string
	throttle    time.Duration
	ak          string
	model       string
	transcripts string
}

// apply overrides cfg with every flag for which changed reports true.
func (f flags) apply(cfg *Config, changed func(name string) bool) {
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	set("base-url", &cfg.BaseURL, f.baseURL)
	set("ws", &cfg.WebSocket, f.websocket)
	set("worker-id", &cfg.WorkerID, f.workerID)
	set("framing", &cfg.Framing, f.framing)
	set("payload", &cfg.Payload, f.payload)
	set("tag", &cfg.Tag, f.tag)
	set("ak", &cfg.LLM.AK, f.ak)
	set("model", &cfg.LLM.Model, f.model)
	set("transcripts", &cfg.Transcripts, f.transcripts)
	if changed("throttle") {
		cfg.Throttle = f.throttle
	}
}

// resolveConfig merges defaults, config file, environment and flags, in
// increasing precedence.
func resolveConfig(f flags, changed func(string) bool, getenv func(string) string) (Config, error) {
	cfg, err := loadConfig(f.config, changed("config"))
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnv(getenv)
	f.apply(&cfg, changed)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
