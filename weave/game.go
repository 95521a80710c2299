package weave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrTurnInFlight is returned by Advance while another turn is still being
// driven. Turn advances are serialized per Game.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// Game owns one session's data and drives it forward a turn at a time.
// Methods are not safe for concurrent use, with the exception that exactly
// one Advance may be in flight while read-only accessors are called.
type Game struct {
	llm  ChatStreamer
	data GameData
	busy atomic.Bool
}

// NewGame starts a fresh session in the given world, playing the named
// character.
func NewGame(llm ChatStreamer, world WorldDescription, player string) (*Game, error) {
	if _, ok := world.Characters[player]; !ok {
		return nil, fmt.Errorf("invalid character name: %q", player)
	}
	return &Game{
		llm: llm,
		data: GameData{
			WorldDescription: world,
			PC:               player,
		},
	}, nil
}

// LoadGame resumes a session from previously persisted data.
func LoadGame(llm ChatStreamer, data GameData) (*Game, error) {
	if _, ok := data.WorldDescription.Characters[data.PC]; !ok {
		return nil, fmt.Errorf("invalid character name: %q", data.PC)
	}
	return &Game{llm: llm, data: data}, nil
}

// Data exposes the session aggregate for persistence and inspection. The
// Game keeps exclusive ownership; callers must not mutate it while a turn is
// in flight.
func (g *Game) Data() *GameData {
	return &g.data
}

// ReplaceData swaps in externally loaded session data, e.g. after rewinding
// the save archive.
func (g *Game) ReplaceData(data GameData) error {
	if g.busy.Load() {
		return ErrTurnInFlight
	}
	if _, ok := data.WorldDescription.Characters[data.PC]; !ok {
		return fmt.Errorf("invalid character name: %q", data.PC)
	}
	g.data = data
	return nil
}

// CurrentTurn is the turn the session is positioned at; see
// GameData.CurrentTurn for the addressing convention.
func (g *Game) CurrentTurn() int {
	return g.data.CurrentTurn()
}

// StartInput is the player action issued automatically for turn 0 of a
// fresh session: the character's initial action, falling back to the
// world's global one.
func (g *Game) StartInput() TurnInput {
	action := g.data.WorldDescription.InitAction
	if c, ok := g.data.WorldDescription.Characters[g.data.PC]; ok && c.InitAction != "" {
		action = c.InitAction
	}
	return TurnInput{PlayerAction: action}
}

// ImagePrompt is the early image-generation signal extracted from a
// response while it is still streaming.
type ImagePrompt struct {
	Description string
	Caption     string
}

// TurnResult resolves a turn's output future: either the authoritative
// decoded output or the error that aborted the turn.
type TurnResult struct {
	Output TurnOutput
	Err    error
}

// AdvanceResult fans one response stream out to three consumers. Text
// carries the live narrative section and closes when it ends; Image yields
// at most one prompt, strictly before or concurrently with the result;
// Result yields exactly one value. All three close when the turn is done.
type AdvanceResult struct {
	Text   <-chan string
	Image  <-chan ImagePrompt
	Result <-chan TurnResult
}

// Advance sends the input to the model and drives the live response in the
// background. The turn is not committed: once the result resolves without
// error, call Update to append it to history.
//
// No cancellation happens at this layer; the stream is always drained to
// natural completion.
func (g *Game) Advance(ctx context.Context, input TurnInput) (*AdvanceResult, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}

	req := g.data.constructRequest(input)
	text := make(chan string, 16)
	image := newOneShot[ImagePrompt]()
	result := newOneShot[TurnResult]()

	go g.drive(ctx, req, text, image, result)

	return &AdvanceResult{
		Text:   text,
		Image:  image.ch,
		Result: result.ch,
	}, nil
}

// Parsing phases of the live response.
const (
	parsingImageDescription = iota
	streamingOutputText
	finishingUp
)

func (g *Game) drive(ctx context.Context, req Request, text chan<- string, image *oneShot[ImagePrompt], result *oneShot[TurnResult]) {
	defer g.busy.Store(false)
	defer result.CloseIfUnsent()
	defer image.CloseIfUnsent()
	defer close(text)

	fragments := g.llm.StreamChat(ctx, req)

	phase := parsingImageDescription
	imageFinder := NewStreamFinder(DelimImageCaption)
	textFinder := NewStreamFinder(DelimOutput)
	var imageBuf strings.Builder

	for frag := range fragments {
		switch {
		case frag.Err != nil:
			result.Send(TurnResult{Err: frag.Err})
			return

		case frag.Done != nil:
			// The incremental parse fed the consumers; the full text is
			// re-parsed here as the authoritative result.
			out, err := DecodeTurnOutput(frag.Done.Text)
			if err != nil {
				result.Send(TurnResult{Err: err})
				return
			}
			out.InputTokens = frag.Done.InputTokens
			out.OutputTokens = frag.Done.OutputTokens

			// The producer contract is exactly one terminal fragment, then
			// end of stream. Anything else aborts the turn.
			if extra, ok := <-fragments; ok {
				result.Send(TurnResult{Err: fmt.Errorf("response stream yielded %+v after completion", extra)})
				return
			}
			result.Send(TurnResult{Output: out})
			return

		default:
			delta := frag.Delta
			for delta != "" {
				switch phase {
				case parsingImageDescription:
					res := imageFinder.Process(delta)
					delta = ""
					switch res.Kind {
					case CheckedOutput:
						imageBuf.WriteString(res.Text)
					case StopTokenMatched:
						imageBuf.WriteString(res.PreTokenText)
						if desc, caption, ok := splitOnce(imageBuf.String(), DelimImageDescription); ok {
							image.Send(ImagePrompt{
								Description: desc,
								Caption:     strings.TrimSpace(caption),
							})
						}
						phase = streamingOutputText
						// The remainder of this delta belongs to the next
						// phase.
						delta = res.PostTokenText
					}

				case streamingOutputText:
					res := textFinder.Process(delta)
					delta = ""
					switch res.Kind {
					case CheckedOutput:
						text <- res.Text
					case StopTokenMatched:
						if res.PreTokenText != "" {
							text <- res.PreTokenText
						}
						phase = finishingUp
					}

				case finishingUp:
					delta = ""
				}
			}
		}
	}

	result.Send(TurnResult{Err: errors.New("response stream ended without completion")})
}

// Update commits a completed turn: it appends the turn to history, then
// decides whether a new summary is due and, if so, issues the summarization
// request before returning. On summarization failure the append is rolled
// back and nothing is committed.
func (g *Game) Update(ctx context.Context, input TurnInput, output TurnOutput, imageIDs []int, imageCaptions []string) error {
	if g.busy.Load() {
		return ErrTurnInFlight
	}
	if len(imageIDs) == 0 {
		return errors.New("Update: a committed turn needs at least one image")
	}
	if len(imageIDs) != len(imageCaptions) {
		return fmt.Errorf("Update: %d image ids but %d captions", len(imageIDs), len(imageCaptions))
	}

	var summaryBefore *int
	if n := len(g.data.Summaries); n > 0 {
		i := n - 1
		summaryBefore = &i
	}
	g.data.TurnData = append(g.data.TurnData, TurnData{
		SummaryBeforeInput: summaryBefore,
		Input:              input,
		Output:             output,
		ImageIDs:           imageIDs,
		ImageCaptions:      imageCaptions,
	})

	if !g.summaryDue() {
		return nil
	}

	content, err := g.requestSummary(ctx)
	if err != nil {
		g.data.TurnData = g.data.TurnData[:len(g.data.TurnData)-1]
		return fmt.Errorf("summarize: %w", err)
	}
	g.data.Summaries = append(g.data.Summaries, Summary{
		Content: content,
		Bday:    len(g.data.TurnData) - 1,
	})
	return nil
}

func (g *Game) summaryDue() bool {
	n := len(g.data.TurnData)
	if s, ok := g.data.LatestSummary(); ok {
		return n-s.Bday >= SummaryInterval
	}
	return n >= SummaryInterval
}

// requestSummary runs the second, sequential round-trip condensing exactly
// the unsummarized window of turns on top of the prior summary.
func (g *Game) requestSummary(ctx context.Context) (string, error) {
	priorTurn := 0
	prior := ""
	start := 0
	if s, ok := g.data.LatestSummary(); ok {
		priorTurn = s.Bday
		prior = s.Content
		start = s.Bday + 1
	}

	var msgs []Message
	for i := start; i < len(g.data.TurnData); i++ {
		td := g.data.TurnData[i]
		msgs = append(msgs,
			Message{Role: RoleUser, Content: g.data.userMessage(i, td.Input)},
			Message{Role: RoleAssistant, Content: EncodeTurnOutput(td.Output)},
		)
	}
	msgs = append(msgs, Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("Summarize everything up to and including turn %d.", len(g.data.TurnData)-1),
	})

	req := Request{
		System:    fmt.Sprintf(summarizerPrompt, priorTurn, prior),
		Messages:  msgs,
		MaxTokens: MaxOutputTokens,
	}

	done, err := collectCompletion(ctx, g.llm, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(done.Text), nil
}

// collectCompletion drains a response stream, discarding deltas, and
// returns the terminal completion.
func collectCompletion(ctx context.Context, llm ChatStreamer, req Request) (*Completion, error) {
	for frag := range llm.StreamChat(ctx, req) {
		if frag.Err != nil {
			return nil, frag.Err
		}
		if frag.Done != nil {
			return frag.Done, nil
		}
	}
	return nil, errors.New("response stream ended without completion")
}

// SetOutputText overwrites the narrative text of completed turn k. Edits
// are audit-free; the caller persists afterwards.
func (g *Game) SetOutputText(k int, text string) error {
	if k < 0 || k >= len(g.data.TurnData) {
		return fmt.Errorf("no completed turn %d", k)
	}
	g.data.TurnData[k].Output.Text = text
	return nil
}

// SetSecretInfo overwrites the secret info of completed turn k.
func (g *Game) SetSecretInfo(k int, val string) error {
	if k < 0 || k >= len(g.data.TurnData) {
		return fmt.Errorf("no completed turn %d", k)
	}
	g.data.TurnData[k].Output.SecretInfo = val
	return nil
}

// SetWorldDescription replaces the world description through the one
// sanctioned edit operation.
func (g *Game) SetWorldDescription(world WorldDescription) error {
	if _, ok := world.Characters[g.data.PC]; !ok {
		return fmt.Errorf("invalid character name: %q", g.data.PC)
	}
	g.data.WorldDescription = world
	return nil
}

// RetryInput builds a replacement input for regenerating the last completed
// turn: the same player action plus a gm command asking for the previous
// output to be modified per the guidance. Callers rewind the turn first.
func RetryInput(last TurnData, guidance string) TurnInput {
	return TurnInput{
		PlayerAction:  last.Input.PlayerAction,
		GmInstruction: fmt.Sprintf(retryInstruction, last.Output.Text, guidance),
	}
}

// constructRequest assembles a narrative request: the storyteller system
// prompt, the most recent HistorySize committed turns re-encoded as
// alternating user/assistant messages, and the new input as the final user
// message.
func (d *GameData) constructRequest(input TurnInput) Request {
	summaryTurn := 0
	summary := ""
	if s, ok := d.LatestSummary(); ok {
		summaryTurn = s.Bday
		summary = s.Content
	}

	pc := d.PC
	system := fmt.Sprintf(storytellerPrompt,
		pc, pc, pc,
		d.WorldDescription.Characters[pc].Description,
		d.WorldDescription.MainDescription,
		summaryTurn, summary,
	)

	start := len(d.TurnData) - HistorySize
	if start < 0 {
		start = 0
	}
	msgs := make([]Message, 0, 2*(len(d.TurnData)-start)+1)
	for i := start; i < len(d.TurnData); i++ {
		td := d.TurnData[i]
		msgs = append(msgs,
			Message{Role: RoleUser, Content: d.userMessage(i, td.Input)},
			Message{Role: RoleAssistant, Content: EncodeTurnOutput(td.Output)},
		)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: d.userMessage(len(d.TurnData), input)})

	return Request{System: system, Messages: msgs, MaxTokens: MaxOutputTokens}
}

// userMessage renders the input of turn k in the wire format the system
// prompt announces, threading the previous turn's secret info back in.
func (d *GameData) userMessage(k int, input TurnInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "turn %d", k)
	if input.PlayerAction != "" {
		b.WriteString("\n# player action\n")
		b.WriteString(input.PlayerAction)
	}
	if input.GmInstruction != "" {
		b.WriteString("\n# gm command\n")
		b.WriteString(input.GmInstruction)
	}
	if k > 0 && k-1 < len(d.TurnData) {
		b.WriteString("\n# last secret info\n")
		b.WriteString(d.TurnData[k-1].Output.SecretInfo)
	}
	return b.String()
}

// oneShot delivers at most one value to a single consumer. Sending twice is
// a programming error and panics; the channel is closed once resolved or
// abandoned.
type oneShot[T any] struct {
	ch   chan T
	done bool
}

func newOneShot[T any]() *oneShot[T] {
	return &oneShot[T]{ch: make(chan T, 1)}
}

func (o *oneShot[T]) Send(v T) {
	if o.done {
		panic("weave: one-shot signal resolved twice")
	}
	o.done = true
	o.ch <- v
	close(o.ch)
}

func (o *oneShot[T]) CloseIfUnsent() {
	if !o.done {
		o.done = true
		close(o.ch)
	}
}
