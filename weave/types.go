// Package weave drives turn-based sessions of an LLM-powered interactive
// narrative: it builds the outbound requests, incrementally decodes the
// delimiter-tagged response format while the response is still streaming,
// publishes an early image-description signal, and maintains the committed
// session history including periodic summarization.
package weave

import "fmt"

const (
	// ProposedActionCount is the exact number of proposed next actions a
	// well-formed turn output carries.
	ProposedActionCount = 3

	// HistorySize is the number of most recent committed turns replayed as
	// conversation history in each request.
	HistorySize = 8

	// SummaryInterval is the number of unsummarized turns after which a new
	// summary is requested.
	SummaryInterval = 8

	// MaxOutputTokens is the token budget for a narrative request.
	MaxOutputTokens = 3000
)

// Character is one playable character in a world.
type Character struct {
	Description string `json:"description" yaml:"description"`

	// InitAction optionally overrides the world's InitAction when this
	// character starts a fresh session.
	InitAction string `json:"init_action,omitempty" yaml:"init_action,omitempty"`
}

// WorldDescription is the immutable setting a session plays in. It only
// changes through an explicit edit operation.
type WorldDescription struct {
	Name            string               `json:"name" yaml:"name"`
	MainDescription string               `json:"main_description" yaml:"main_description"`
	Characters      map[string]Character `json:"characters" yaml:"characters"`

	// InitAction is the player action issued automatically for turn 0.
	InitAction string `json:"init_action" yaml:"init_action"`
}

// TurnInput is what the player feeds into one turn. Either field may be
// empty, but a committed turn never has both semantically absent.
type TurnInput struct {
	PlayerAction  string `json:"player_action"`
	GmInstruction string `json:"gm_instruction"`
}

// TurnOutput is the structured result of one narrative completion.
type TurnOutput struct {
	Text                string                      `json:"text"`
	ImageDescription    string                      `json:"image_description"`
	ImageCaption        string                      `json:"image_caption"`
	SecretInfo          string                      `json:"secret_info"`
	ProposedNextActions [ProposedActionCount]string `json:"proposed_next_actions"`
	InputTokens         int                         `json:"input_tokens"`
	OutputTokens        int                         `json:"output_tokens"`
}

// TurnData is one committed turn. Append-only; only Output.Text and
// Output.SecretInfo may be overwritten afterwards, through explicit edits.
type TurnData struct {
	// SummaryBeforeInput is the index of the most recent summary at the time
	// the input was sent, or nil if none existed yet.
	SummaryBeforeInput *int `json:"summary_before_input"`

	Input  TurnInput  `json:"input"`
	Output TurnOutput `json:"output"`

	// ImageIDs are archive image ids for this turn, in display order.
	// Never empty; ImageCaptions has the same length.
	ImageIDs      []int    `json:"image_ids"`
	ImageCaptions []string `json:"image_captions"`
}

// Summary condenses everything that happened up to and including turn Bday.
type Summary struct {
	Content string `json:"content"`

	// Bday is the index of the last completed turn the summary covers.
	Bday int `json:"bday"`
}

// GameData is the root aggregate of a session: fully serializable, owned
// exclusively by the Game driving it.
type GameData struct {
	WorldDescription WorldDescription `json:"world_description"`
	PC               string           `json:"pc"`
	Summaries        []Summary        `json:"summaries"`
	TurnData         []TurnData       `json:"turn_data"`
}

// CurrentTurn returns the turn the session is positioned at: the number of
// committed turns. Completing turn k puts the session in turn k+1, even
// though the visible output is still that of turn k.
func (d *GameData) CurrentTurn() int {
	return len(d.TurnData)
}

// LastTurn returns the most recently committed turn, if any.
func (d *GameData) LastTurn() (TurnData, bool) {
	if len(d.TurnData) == 0 {
		return TurnData{}, false
	}
	return d.TurnData[len(d.TurnData)-1], true
}

// LatestSummary returns the active summary, if any.
func (d *GameData) LatestSummary() (Summary, bool) {
	if len(d.Summaries) == 0 {
		return Summary{}, false
	}
	return d.Summaries[len(d.Summaries)-1], true
}

// ClipAfterTurn drops every turn after completed turn k, along with any
// summary born after it. Image ids referenced by dropped turns simply become
// unreferenced.
func (d *GameData) ClipAfterTurn(k int) error {
	if k < 0 || k >= len(d.TurnData) {
		return fmt.Errorf("ClipAfterTurn: no completed turn %d (have %d)", k, len(d.TurnData))
	}
	d.TurnData = d.TurnData[:k+1]
	kept := d.Summaries[:0]
	for _, s := range d.Summaries {
		if s.Bday <= k {
			kept = append(kept, s)
		}
	}
	d.Summaries = kept
	return nil
}
