package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	Theme          string
	OutPath        string
	Model          string
	BaseURL        string
	APIKey         string
	CharacterCount int
	Overwrite      bool
}

func (c Config) Validate() error {
	if c.Theme == "" {
		return errors.New("missing -theme")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.CharacterCount < 1 {
		return errors.New("characters must be >= 1")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Model:          "gpt-5-mini",
		CharacterCount: 4,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.Theme, "theme", "", "Theme or premise to build the world around")
	fs.StringVar(&cfg.OutPath, "out", "", "Output path for the world .yaml file")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model for the world generation request")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional OpenAI-compatible API base URL")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (default: OPENAI_API_KEY)")
	fs.IntVar(&cfg.CharacterCount, "characters", cfg.CharacterCount, "Number of playable characters to generate")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing world file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}
