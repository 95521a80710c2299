package weave

import (
	"strings"
	"testing"
)

func TestStreamFinder_StopTokenDetection(t *testing.T) {
	t.Parallel()

	f := NewStreamFinder("User:")

	res := f.Process("A User is an idiot")
	if res.Kind != CheckedOutput || res.Text != "A User is an idiot" {
		t.Fatalf("got %+v", res)
	}

	res = f.Process("A User")
	if res.Kind != CheckedOutput || res.Text != "A " {
		t.Fatalf("got %+v", res)
	}

	res = f.Process(" is")
	if res.Kind != CheckedOutput || res.Text != "User is" {
		t.Fatalf("got %+v", res)
	}

	res = f.Process("A User: is an")
	if res.Kind != StopTokenMatched || res.PreTokenText != "A " || res.PostTokenText != " is an" {
		t.Fatalf("got %+v", res)
	}

	res = f.Process("User:")
	if res.Kind != StopTokenMatched || res.PreTokenText != "" || res.PostTokenText != "" {
		t.Fatalf("got %+v", res)
	}

	res = f.Process("UsUser:")
	if res.Kind != StopTokenMatched || res.PreTokenText != "Us" || res.PostTokenText != "" {
		t.Fatalf("got %+v", res)
	}
}

func TestStreamFinder_Blocked(t *testing.T) {
	t.Parallel()

	f := NewStreamFinder("<<<EOO>>>")
	if res := f.Process("<<<EO"); res.Kind != Blocked {
		t.Fatalf("got %+v", res)
	}
	if res := f.Process("O>>"); res.Kind != Blocked {
		t.Fatalf("got %+v", res)
	}
	res := f.Process(">tail")
	if res.Kind != StopTokenMatched || res.PreTokenText != "" || res.PostTokenText != "tail" {
		t.Fatalf("got %+v", res)
	}
}

// A target with internal repetition must not lose the match when the
// mismatching character re-enters the token at a depth greater than one.
func TestStreamFinder_SelfOverlappingTarget(t *testing.T) {
	t.Parallel()

	f := NewStreamFinder("AAB")
	res := f.Process("AAAB")
	if res.Kind != StopTokenMatched || res.PreTokenText != "A" || res.PostTokenText != "" {
		t.Fatalf("got %+v", res)
	}

	f = NewStreamFinder("abab")
	res = f.Process("abaabab!")
	if res.Kind != StopTokenMatched || res.PreTokenText != "aba" || res.PostTokenText != "!" {
		t.Fatalf("got %+v", res)
	}
}

// For any chunking of an input containing the token once, the confirmed
// text plus the final pre-token text must equal the prefix before the
// token, and the post-token text the suffix after it.
func TestStreamFinder_AnyChunking(t *testing.T) {
	t.Parallel()

	const target = "<<<EOO>>>"
	const pre = "some narrative < with <<< tricky <<<EOO>> near-misses "
	const post = " trailing secret section"
	input := pre + target + post

	for chunkSize := 1; chunkSize <= len(input); chunkSize++ {
		f := NewStreamFinder(target)
		var confirmed strings.Builder
		matched := false

		for start := 0; start < len(input); start += chunkSize {
			end := start + chunkSize
			if end > len(input) {
				end = len(input)
			}
			res := f.Process(input[start:end])
			switch res.Kind {
			case CheckedOutput:
				confirmed.WriteString(res.Text)
			case StopTokenMatched:
				confirmed.WriteString(res.PreTokenText)
				matched = true
				if got := res.PostTokenText + input[end:]; got != post {
					t.Fatalf("chunk %d: post %q, want %q", chunkSize, got, post)
				}
			}
			if matched {
				break
			}
		}

		if !matched {
			t.Fatalf("chunk %d: token never matched", chunkSize)
		}
		if confirmed.String() != pre {
			t.Fatalf("chunk %d: pre %q, want %q", chunkSize, confirmed.String(), pre)
		}
	}
}

func TestStreamFinder_ResetsAfterMatch(t *testing.T) {
	t.Parallel()

	f := NewStreamFinder("XY")
	res := f.Process("aXYb")
	if res.Kind != StopTokenMatched || res.PreTokenText != "a" || res.PostTokenText != "b" {
		t.Fatalf("got %+v", res)
	}
	res = f.Process("cXYd")
	if res.Kind != StopTokenMatched || res.PreTokenText != "c" || res.PostTokenText != "d" {
		t.Fatalf("got %+v", res)
	}
}
