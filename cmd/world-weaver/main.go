package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/theimaginaryfoundation/world-weaver/savearchive"
	"github.com/theimaginaryfoundation/world-weaver/weave"
	"github.com/theimaginaryfoundation/world-weaver/weave/fileutils"
	"github.com/theimaginaryfoundation/world-weaver/weave/provider"
)

// placeholderPNG is a 1x1 transparent image stored when image generation is
// disabled or fails, so every committed turn references a real archive image.
var placeholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")

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
	replicateKey := cfg.ReplicateKey
	if replicateKey == "" {
		replicateKey = os.Getenv("REPLICATE_API_TOKEN")
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm := provider.NewOpenAIChat(apiKey, cfg.BaseURL, cfg.Model)

	var images provider.ImageGenerator
	if replicateKey != "" && cfg.ReplicateVersion != "" {
		images = provider.NewReplicate(replicateKey, cfg.ReplicateVersion, nil)
	}

	game, arch, err := openSession(llm, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer arch.Close()

	fmt.Printf("Playing %s in %s. /help lists commands.\n",
		game.Data().PC, game.Data().WorldDescription.Name)

	if game.CurrentTurn() == 0 {
		if err := playTurn(ctx, game, arch, images, game.StartInput()); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Printf("\n[turn %d] > ", game.CurrentTurn())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := dispatch(ctx, game, arch, images, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintln(os.Stderr, err.Error())
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// openSession resumes the archive at cfg.SavePath, or starts a fresh session
// from the world file when the archive does not exist yet.
func openSession(llm weave.ChatStreamer, cfg Config) (*weave.Game, *savearchive.Archive, error) {
	if fileutils.FileExists(cfg.SavePath) {
		arch, err := savearchive.Open(cfg.SavePath)
		if err != nil {
			return nil, nil, err
		}
		data, err := arch.ReadGameData()
		if err != nil {
			arch.Close()
			return nil, nil, err
		}
		game, err := weave.LoadGame(llm, *data)
		if err != nil {
			arch.Close()
			return nil, nil, err
		}
		return game, arch, nil
	}

	if cfg.WorldPath == "" || cfg.Player == "" {
		return nil, nil, errors.New("a fresh save needs -world and -player")
	}
	var world weave.WorldDescription
	if err := fileutils.ReadYAMLFile(cfg.WorldPath, &world); err != nil {
		return nil, nil, err
	}
	game, err := weave.NewGame(llm, world, cfg.Player)
	if err != nil {
		return nil, nil, err
	}
	arch, err := savearchive.CreateSized(cfg.SavePath, cfg.RegionSize)
	if err != nil {
		return nil, nil, err
	}
	if err := arch.WriteGameData(game.Data()); err != nil {
		arch.Close()
		return nil, nil, err
	}
	return game, arch, nil
}

func dispatch(ctx context.Context, game *weave.Game, arch *savearchive.Archive, images provider.ImageGenerator, line string) (quit bool, err error) {
	cmd, arg := parseCommand(line)
	switch cmd {
	case "/quit":
		return true, nil

	case "/help":
		fmt.Print(helpText)
		return false, nil

	case "/secret":
		last, ok := game.Data().LastTurn()
		if !ok {
			return false, errors.New("no completed turn yet")
		}
		fmt.Println(last.Output.SecretInfo)
		return false, nil

	case "/rewind":
		k, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return false, fmt.Errorf("usage: /rewind <turn>")
		}
		if err := rewindTo(game, k); err != nil {
			return false, err
		}
		if err := arch.WriteGameData(game.Data()); err != nil {
			return false, err
		}
		fmt.Printf("rewound; now at turn %d\n", game.CurrentTurn())
		return false, nil

	case "/retry":
		last, ok := game.Data().LastTurn()
		if !ok {
			return false, errors.New("no completed turn to retry")
		}
		if err := rewindTo(game, game.CurrentTurn()-2); err != nil {
			return false, err
		}
		return false, playTurn(ctx, game, arch, images, weave.RetryInput(last, arg))

	case "/gm":
		if arg == "" {
			return false, errors.New("usage: /gm <instruction>")
		}
		return false, playTurn(ctx, game, arch, images, weave.TurnInput{GmInstruction: arg})

	case "":
		input := weave.TurnInput{PlayerAction: line}
		// A bare 1..3 picks the matching proposed action of the last turn.
		if n, convErr := strconv.Atoi(line); convErr == nil && n >= 1 && n <= weave.ProposedActionCount {
			if last, ok := game.Data().LastTurn(); ok {
				input.PlayerAction = last.Output.ProposedNextActions[n-1]
			}
		}
		return false, playTurn(ctx, game, arch, images, input)

	default:
		return false, fmt.Errorf("unknown command %s; /help lists commands", cmd)
	}
}

const helpText = `  <text>             act as your character (1-3 picks a proposed action)
  /gm <instruction>  steer the story without acting
  /retry [guidance]  regenerate the last turn, optionally adjusted
  /rewind <turn>     drop everything after the given turn
  /secret            show the storyteller's last hidden note
  /quit              leave (progress is saved every turn)
`

// parseCommand splits a slash command off the input line. Plain player
// actions come back with an empty command.
func parseCommand(line string) (cmd, arg string) {
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line, " ")
	return cmd, strings.TrimSpace(arg)
}

// rewindTo clips the in-memory session so that k is the last completed turn;
// k = -1 empties the history.
func rewindTo(game *weave.Game, k int) error {
	clone := *game.Data()
	if k < 0 {
		clone.TurnData = nil
		clone.Summaries = nil
	} else if err := clone.ClipAfterTurn(k); err != nil {
		return err
	}
	return game.ReplaceData(clone)
}

// playTurn drives one full turn: stream the narrative to stdout, generate
// the scene image while the text is still arriving, then commit and persist.
func playTurn(ctx context.Context, game *weave.Game, arch *savearchive.Archive, images provider.ImageGenerator, input weave.TurnInput) error {
	adv, err := game.Advance(ctx, input)
	if err != nil {
		return err
	}

	type imageResult struct {
		data []byte
		err  error
	}
	imgCh := make(chan imageResult, 1)
	go func() {
		var res imageResult
		if prompt, ok := <-adv.Image; ok && images != nil {
			img, err := images.GenerateImage(ctx, prompt.Description)
			res.data, res.err = img.Data, err
		}
		imgCh <- res
	}()

	fmt.Println()
	for delta := range adv.Text {
		fmt.Print(delta)
	}
	fmt.Println()

	res := <-adv.Result
	if res.Err != nil {
		return fmt.Errorf("turn %d: %w", game.CurrentTurn(), res.Err)
	}
	out := res.Output
	slog.Debug("turn complete",
		"turn", game.CurrentTurn(),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens)

	imageBytes := placeholderPNG
	if img := <-imgCh; img.err != nil {
		slog.Warn("image generation failed", "error", img.err)
	} else if len(img.data) > 0 {
		imageBytes = img.data
	}
	id, err := arch.AppendImage(imageBytes)
	if err != nil {
		return err
	}

	if err := game.Update(ctx, input, out, []int{id}, []string{out.ImageCaption}); err != nil {
		return err
	}
	if err := arch.WriteGameData(game.Data()); err != nil {
		return err
	}

	fmt.Println()
	for i, action := range out.ProposedNextActions {
		fmt.Printf("  %d) %s\n", i+1, action)
	}
	return nil
}
