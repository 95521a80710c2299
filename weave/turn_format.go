package weave

import (
	"fmt"
	"strings"
)

// Wire delimiters of the structured turn protocol. A complete response
// contains each exactly once, except DelimAction which separates the
// proposed actions (ProposedActionCount-1 occurrences).
const (
	DelimImageDescription = "<<<EOID>>>"
	DelimImageCaption     = "<<<EOIC>>>"
	DelimOutput           = "<<<EOO>>>"
	DelimSecret           = "<<<EOS>>>"
	DelimAction           = "<<<EOA>>>"
)

// ParseError reports a structurally malformed completion. Raw carries the
// full response text for diagnostics; a turn that fails to parse is
// discarded.
type ParseError struct {
	// MissingDelimiter is the delimiter that did not occur, or DelimAction
	// when too few proposed actions were found.
	MissingDelimiter string
	// ActionCount is the number of action segments found when
	// MissingDelimiter is DelimAction.
	ActionCount int
	Raw         string
}

func (e *ParseError) Error() string {
	if e.MissingDelimiter == DelimAction && e.ActionCount > 0 {
		return fmt.Sprintf("expected %d proposed actions, found %d", ProposedActionCount, e.ActionCount)
	}
	return fmt.Sprintf("no %s in output", e.MissingDelimiter)
}

// EncodeTurnOutput renders a turn output back into the delimited wire format
// fed to the model as conversation history.
func EncodeTurnOutput(out TurnOutput) string {
	var b strings.Builder
	b.WriteString(out.ImageDescription)
	b.WriteString("\n" + DelimImageDescription + "\n")
	b.WriteString(out.ImageCaption)
	b.WriteString("\n" + DelimImageCaption + "\n")
	b.WriteString(out.Text)
	b.WriteString("\n" + DelimOutput + "\n")
	b.WriteString(out.SecretInfo)
	b.WriteString("\n" + DelimSecret + "\n")
	actions := out.ProposedNextActions
	b.WriteString(strings.Join(actions[:], "\n"+DelimAction+"\n"))
	return b.String()
}

// DecodeTurnOutput parses a complete raw response into its structured
// fields. Splits happen once per delimiter, left to right; every retained
// field is whitespace-trimmed. Token counts are left zero for the caller to
// fill in from usage data.
func DecodeTurnOutput(raw string) (TurnOutput, error) {
	var out TurnOutput

	head, tail, ok := splitOnce(raw, DelimImageDescription)
	if !ok {
		return out, &ParseError{MissingDelimiter: DelimImageDescription, Raw: raw}
	}
	out.ImageDescription = head

	head, tail, ok = splitOnce(tail, DelimImageCaption)
	if !ok {
		return out, &ParseError{MissingDelimiter: DelimImageCaption, Raw: raw}
	}
	out.ImageCaption = head

	head, tail, ok = splitOnce(tail, DelimOutput)
	if !ok {
		return out, &ParseError{MissingDelimiter: DelimOutput, Raw: raw}
	}
	out.Text = head

	head, tail, ok = splitOnce(tail, DelimSecret)
	if !ok {
		return out, &ParseError{MissingDelimiter: DelimSecret, Raw: raw}
	}
	out.SecretInfo = head

	segments := strings.Split(tail, DelimAction)
	if len(segments) < ProposedActionCount {
		return out, &ParseError{
			MissingDelimiter: DelimAction,
			ActionCount:      len(segments),
			Raw:              raw,
		}
	}
	// Trailing garbage after the Nth action is silently dropped.
	for i := 0; i < ProposedActionCount; i++ {
		out.ProposedNextActions[i] = strings.TrimSpace(segments[i])
	}

	return out, nil
}

func splitOnce(s, delim string) (before, after string, ok bool) {
	before, after, ok = strings.Cut(s, delim)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(before), after, true
}
