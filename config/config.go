// Package config loads the pipeline's YAML configuration. Every field has
// a working default so the binary runs with no config file at all; a file,
// when present, overrides only what it sets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Script  ScriptConfig  `yaml:"script"`
	Footage FootageConfig `yaml:"footage"`
	Compose ComposeConfig `yaml:"compose"`
	Publish PublishConfig `yaml:"publish"`
	Paths   PathsConfig   `yaml:"paths"`
}

type ScriptConfig struct {
	GroqModel   string  `yaml:"groq_model"`
	Temperature float64 `yaml:"temperature"`
	MaxScenes   int     `yaml:"max_scenes"`
}

type FootageConfig struct {
	MaxClipDurationSec int `yaml:"max_clip_duration_sec"`
	CandidateLimit     int `yaml:"candidate_limit"`
}

type ComposeConfig struct {
	FPS            int     `yaml:"fps"`
	Preset         string  `yaml:"preset"`
	CRF            int     `yaml:"crf"`
	ExtendSlackSec float64 `yaml:"extend_slack_sec"`
}

type PublishConfig struct {
	Visibility        string `yaml:"visibility"`
	YouTubeCategoryID string `yaml:"youtube_category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
}

type PathsConfig struct {
	Cache    string `yaml:"cache"`
	Output   string `yaml:"output"`
	Library  string `yaml:"library"`
	Database string `yaml:"database"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Script: ScriptConfig{
			GroqModel:   "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxScenes:   5,
		},
		Footage: FootageConfig{
			MaxClipDurationSec: 30,
			CandidateLimit:     200,
		},
		Compose: ComposeConfig{
			FPS:            30,
			Preset:         "fast",
			CRF:            22,
			ExtendSlackSec: 0.5,
		},
		Publish: PublishConfig{
			Visibility:        "private",
			YouTubeCategoryID: "24",
			NotifySubscribers: false,
			MadeForKids:       false,
		},
		Paths: PathsConfig{
			Cache:    "cache",
			Output:   "output",
			Library:  "library",
			Database: "cache/promptweaver.db",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
