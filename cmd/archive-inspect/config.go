package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	SavePath string
	DumpJSON bool
	ImageID  int
	OutPath  string
}

func (c Config) Validate() error {
	if c.SavePath == "" {
		return errors.New("missing -save")
	}
	if c.DumpJSON && c.ImageID >= 0 {
		return errors.New("-json and -image are mutually exclusive")
	}
	if c.ImageID >= 0 && c.OutPath == "" {
		return errors.New("-image needs -out")
	}
	return nil
}

func defaultConfig() Config {
	return Config{ImageID: -1}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.SavePath, "save", "", "Path to the save archive")
	fs.BoolVar(&cfg.DumpJSON, "json", false, "Dump the game data as indented JSON to stdout")
	fs.IntVar(&cfg.ImageID, "image", cfg.ImageID, "Extract the image with this id (requires -out)")
	fs.StringVar(&cfg.OutPath, "out", "", "Output path for an extracted image")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.SavePath != "" {
		cfg.SavePath = filepath.Clean(cfg.SavePath)
	}
	return cfg, nil
}
