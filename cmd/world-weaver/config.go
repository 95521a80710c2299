package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	SavePath   string
	WorldPath  string
	Player     string
	Model      string
	BaseURL    string
	APIKey     string
	RegionSize uint64

	ReplicateKey     string
	ReplicateVersion string

	Verbose bool
}

func (c Config) Validate() error {
	if c.SavePath == "" {
		return errors.New("missing -save")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.RegionSize == 0 {
		return errors.New("region-size must be > 0")
	}
	if c.WorldPath == "" && c.Player != "" || c.WorldPath != "" && c.Player == "" {
		return errors.New("-world and -player go together")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Model:      "gpt-5-mini",
		RegionSize: 20 * 1024 * 1024,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.SavePath, "save", "", "Path to the save archive (created if missing)")
	fs.StringVar(&cfg.WorldPath, "world", "", "Path to a world .yaml file, required for a fresh save")
	fs.StringVar(&cfg.Player, "player", "", "Character to play, required for a fresh save")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Chat model for narrative and summarization requests")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional OpenAI-compatible API base URL")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (default: OPENAI_API_KEY)")
	fs.Uint64Var(&cfg.RegionSize, "region-size", cfg.RegionSize, "Game data region capacity for a fresh save, in bytes")
	fs.StringVar(&cfg.ReplicateKey, "replicate-key", "", "Replicate API token for image generation (default: REPLICATE_API_TOKEN; empty disables)")
	fs.StringVar(&cfg.ReplicateVersion, "replicate-version", "", "Replicate model version id for image generation")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.SavePath != "" {
		cfg.SavePath = filepath.Clean(cfg.SavePath)
	}
	if cfg.WorldPath != "" {
		cfg.WorldPath = filepath.Clean(cfg.WorldPath)
	}
	return cfg, nil
}
