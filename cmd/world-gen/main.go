package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/theimaginaryfoundation/world-weaver/weave"
	"github.com/theimaginaryfoundation/world-weaver/weave/fileutils"
	"github.com/theimaginaryfoundation/world-weaver/weave/provider"
)

// generatedWorld is the structured-output wire shape. Characters are a list
// here because strict schemas cannot express maps; toWorldDescription keys
// them by name.
type generatedWorld struct {
	Name            string               `json:"name" jsonschema_description:"Short evocative title for the world"`
	MainDescription string               `json:"main_description" jsonschema_description:"Setting, tone and style instructions for the storyteller, 200-500 words"`
	InitAction      string               `json:"init_action" jsonschema_description:"The player's first action, one sentence in second person"`
	Characters      []generatedCharacter `json:"characters" jsonschema_description:"The playable characters"`
}

type generatedCharacter struct {
	Name        string `json:"name" jsonschema_description:"Unique character name"`
	Description string `json:"description" jsonschema_description:"Who they are and what they want, 50-150 words"`
	InitAction  string `json:"init_action" jsonschema_description:"Optional per-character first action; empty to use the world's"`
}

var worldSchema = provider.GenerateSchema[generatedWorld]()

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	if fileutils.FileExists(cfg.OutPath) && !cfg.Overwrite {
		fmt.Fprintf(os.Stderr, "%s exists; pass -overwrite to replace it\n", cfg.OutPath)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat := provider.NewOpenAIChat(apiKey, cfg.BaseURL, cfg.Model)
	gen, err := generateWorld(ctx, chat.Client(), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	world, err := toWorldDescription(gen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := fileutils.WriteYAMLFileAtomic(cfg.OutPath, world); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "world=%q characters=%d out=%s\n", world.Name, len(world.Characters), cfg.OutPath)
}

func generateWorld(ctx context.Context, client *openai.Client, cfg Config) (generatedWorld, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "WorldDescription",
			Schema:      worldSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("World description JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           cfg.Model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(fmt.Sprintf(worldGenPrompt, cfg.CharacterCount)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(cfg.Theme, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := provider.CallWithRetry(ctx, client, params)
	if err != nil {
		return generatedWorld{}, fmt.Errorf("generate world: %w", err)
	}

	var gen generatedWorld
	if err := json.Unmarshal([]byte(resp.OutputText()), &gen); err != nil {
		return generatedWorld{}, fmt.Errorf("unmarshal world: %w (model_output_prefix=%q)",
			err, fileutils.Truncate(resp.OutputText(), 500))
	}
	return gen, nil
}

func toWorldDescription(gen generatedWorld) (weave.WorldDescription, error) {
	if gen.Name == "" || gen.MainDescription == "" {
		return weave.WorldDescription{}, fmt.Errorf("generated world is incomplete")
	}
	if len(gen.Characters) == 0 {
		return weave.WorldDescription{}, fmt.Errorf("generated world has no characters")
	}

	chars := make(map[string]weave.Character, len(gen.Characters))
	for _, c := range gen.Characters {
		if c.Name == "" {
			return weave.WorldDescription{}, fmt.Errorf("generated character without a name")
		}
		if _, dup := chars[c.Name]; dup {
			return weave.WorldDescription{}, fmt.Errorf("duplicate character name %q", c.Name)
		}
		chars[c.Name] = weave.Character{
			Description: c.Description,
			InitAction:  c.InitAction,
		}
	}

	return weave.WorldDescription{
		Name:            gen.Name,
		MainDescription: gen.MainDescription,
		Characters:      chars,
		InitAction:      gen.InitAction,
	}, nil
}
