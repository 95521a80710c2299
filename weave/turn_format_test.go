package weave

import (
	"errors"
	"strings"
	"testing"
)

func sampleOutput() TurnOutput {
	return TurnOutput{
		Text:             "The gate creaks open onto a moonlit courtyard.",
		ImageDescription: "A moonlit courtyard behind a rusted iron gate, mist on the cobbles",
		ImageCaption:     "The courtyard at night",
		SecretInfo:       "The gatekeeper recognized the sigil but said nothing.",
		ProposedNextActions: [ProposedActionCount]string{
			"Cross the courtyard towards the tower",
			"Call out for the gatekeeper",
			"Inspect the sigil on the gate",
		},
	}
}

func TestTurnFormat_Roundtrip(t *testing.T) {
	t.Parallel()

	want := sampleOutput()
	got, err := DecodeTurnOutput(EncodeTurnOutput(want))
	if err != nil {
		t.Fatalf("DecodeTurnOutput: %v", err)
	}
	if got != want {
		t.Fatalf("roundtrip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestDecodeTurnOutput_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	raw := "  desc \n<<<EOID>>>\n caption \n<<<EOIC>>>\n\ntext body\n\n<<<EOO>>>\n secret \n<<<EOS>>>\n a1 \n<<<EOA>>>\n a2 \n<<<EOA>>>\n a3 \n"
	got, err := DecodeTurnOutput(raw)
	if err != nil {
		t.Fatalf("DecodeTurnOutput: %v", err)
	}
	if got.ImageDescription != "desc" || got.ImageCaption != "caption" || got.Text != "text body" || got.SecretInfo != "secret" {
		t.Fatalf("fields not trimmed: %+v", got)
	}
	if got.ProposedNextActions != [ProposedActionCount]string{"a1", "a2", "a3"} {
		t.Fatalf("actions = %v", got.ProposedNextActions)
	}
}

func TestDecodeTurnOutput_MissingDelimiters(t *testing.T) {
	t.Parallel()

	full := EncodeTurnOutput(sampleOutput())
	for _, delim := range []string{DelimImageDescription, DelimImageCaption, DelimOutput, DelimSecret} {
		raw := strings.Replace(full, delim, "", 1)
		_, err := DecodeTurnOutput(raw)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("without %s: err = %v, want ParseError", delim, err)
		}
		if parseErr.MissingDelimiter != delim {
			t.Fatalf("without %s: reported %s", delim, parseErr.MissingDelimiter)
		}
		if parseErr.Raw != raw {
			t.Fatalf("without %s: Raw does not carry the response text", delim)
		}
	}
}

func TestDecodeTurnOutput_ActionCount(t *testing.T) {
	t.Parallel()

	out := sampleOutput()
	full := EncodeTurnOutput(out)

	// Too few segments fails.
	short := strings.Replace(full, DelimAction, "", 1)
	_, err := DecodeTurnOutput(short)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.MissingDelimiter != DelimAction {
		t.Fatalf("err = %v, want action-count ParseError", err)
	}
	if parseErr.ActionCount != ProposedActionCount-1 {
		t.Fatalf("ActionCount = %d, want %d", parseErr.ActionCount, ProposedActionCount-1)
	}

	// Extra segments succeed with the first N; trailing garbage dropped.
	long := full + "\n" + DelimAction + "\ngarbage tail"
	got, err := DecodeTurnOutput(long)
	if err != nil {
		t.Fatalf("DecodeTurnOutput: %v", err)
	}
	if got.ProposedNextActions != out.ProposedNextActions {
		t.Fatalf("actions = %v, want %v", got.ProposedNextActions, out.ProposedNextActions)
	}
}

func TestEncodeTurnOutput_DelimiterOrder(t *testing.T) {
	t.Parallel()

	enc := EncodeTurnOutput(sampleOutput())
	order := []string{DelimImageDescription, DelimImageCaption, DelimOutput, DelimSecret, DelimAction, DelimAction}
	at := 0
	for _, delim := range order {
		i := strings.Index(enc[at:], delim)
		if i < 0 {
			t.Fatalf("missing %s after byte %d in %q", delim, at, enc)
		}
		at += i + len(delim)
	}
}
