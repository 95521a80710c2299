package main

import (
	"flag"
	"testing"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("world-gen", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-theme", "a drowned kingdom",
		"-out", "worlds/drowned.yaml",
		"-model", "some-model",
		"-characters", "6",
		"-overwrite",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Theme != "a drowned kingdom" || cfg.CharacterCount != 6 || !cfg.Overwrite {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing theme")
	}
	cfg.Theme = "t"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing out")
	}
	cfg.OutPath = "w.yaml"
	cfg.CharacterCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero characters")
	}
}

func TestWorldSchema_IsStrict(t *testing.T) {
	t.Parallel()

	if typ, _ := worldSchema["type"].(string); typ != "object" {
		t.Fatalf("schema type = %v", worldSchema["type"])
	}
	if ap, ok := worldSchema["additionalProperties"].(bool); !ok || ap {
		t.Fatalf("additionalProperties = %v", worldSchema["additionalProperties"])
	}
	props, _ := worldSchema["properties"].(map[string]interface{})
	required, _ := worldSchema["required"].([]interface{})
	if len(props) == 0 || len(required) != len(props) {
		t.Fatalf("strict schema must require every property: %d props, %d required", len(props), len(required))
	}
}

func TestToWorldDescription(t *testing.T) {
	t.Parallel()

	gen := generatedWorld{
		Name:            "Duskmere",
		MainDescription: "A fog-bound port city.",
		InitAction:      "Look around",
		Characters: []generatedCharacter{
			{Name: "Alice", Description: "A brave warrior", InitAction: "Draw your sword"},
			{Name: "Bors", Description: "A tired smuggler"},
		},
	}

	world, err := toWorldDescription(gen)
	if err != nil {
		t.Fatalf("toWorldDescription: %v", err)
	}
	if world.Characters["Alice"].InitAction != "Draw your sword" {
		t.Fatalf("Alice = %+v", world.Characters["Alice"])
	}
	if world.Characters["Bors"].InitAction != "" {
		t.Fatalf("Bors = %+v", world.Characters["Bors"])
	}

	gen.Characters = append(gen.Characters, generatedCharacter{Name: "Alice", Description: "again"})
	if _, err := toWorldDescription(gen); err == nil {
		t.Fatal("expected error for duplicate character name")
	}

	gen.Characters = nil
	if _, err := toWorldDescription(gen); err == nil {
		t.Fatal("expected error for empty character list")
	}
}
