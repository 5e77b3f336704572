package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional .weave.yaml next to a workflow file.
type Config struct {
	// Concurrency bounds how many steps execute at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	// NodeTimeout is the per-step deadline, e.g. "2m".
	NodeTimeout Duration `yaml:"node_timeout,omitempty"`

	// AgentsFile points at a YAML file of reusable agent definitions.
	AgentsFile string `yaml:"agents_file,omitempty"`

	// Registry is the path of the step registry database.
	Registry string `yaml:"registry,omitempty"`

	Backend BackendConfig `yaml:"backend,omitempty"`

	OnFailure FailureConfig `yaml:"on_failure,omitempty"`
}

// BackendConfig selects how step invocations are executed.
type BackendConfig struct {
	// Command is run once per step invocation; the instruction arrives on
	// stdin and the step name in the environment. Empty means the echo
	// backend (dry runs).
	Command string `yaml:"command,omitempty"`
}

// FailureConfig is the unattended failure policy.
type FailureConfig struct {
	// Action is one of ask, retry, skip, abort.
	Action string `yaml:"action,omitempty"`

	MaxRetries int `yaml:"max_retries,omitempty"`
}

// Duration parses YAML durations written as strings ("2m", "90s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfigFile is looked for in the working directory when --config
// is not given.
const DefaultConfigFile = ".weave.yaml"

// LoadConfig reads a config file. A missing default file is not an error;
// a missing explicit path is.
func LoadConfig(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.OnFailure.Action {
	case "", "ask", "retry", "skip", "abort":
	default:
		return fmt.Errorf("on_failure.action %q: must be ask, retry, skip or abort", c.OnFailure.Action)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}
