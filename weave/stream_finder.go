package weave

// StreamFinder locates a fixed stop token inside text that arrives in
// arbitrary chunks. Text that can no longer be part of a match is released
// as soon as possible; characters that might still turn into the token are
// held back until the match is either completed or broken.
//
// Matching uses the standard substring-search failure function, so targets
// with internal repetition (say "AAB" scanned over "AAAB") are handled
// correctly and no released character is ever part of the final match.
type StreamFinder struct {
	target []rune
	fail   []int
	// pos is the length of the current tentative match; the held-back
	// characters are exactly target[:pos].
	pos int
}

// MatchKind discriminates the outcome of one Process call.
type MatchKind int

const (
	// Blocked means the whole chunk was absorbed into a tentative match and
	// nothing is safe to emit yet.
	Blocked MatchKind = iota

	// CheckedOutput means Text holds characters confirmed not to belong to
	// the token; a partial match may still be pending internally.
	CheckedOutput

	// StopTokenMatched means the full token was found. PreTokenText holds
	// all confirmed text before it (including previously held-back
	// characters), PostTokenText the remainder of the chunk after it.
	StopTokenMatched
)

// MatchResult is the outcome of feeding one chunk to a StreamFinder.
type MatchResult struct {
	Kind          MatchKind
	Text          string
	PreTokenText  string
	PostTokenText string
}

// NewStreamFinder builds a finder for the given stop token, which must be
// non-empty.
func NewStreamFinder(target string) *StreamFinder {
	runes := []rune(target)
	if len(runes) == 0 {
		panic("weave: empty stop token")
	}

	fail := make([]int, len(runes))
	for i := 1; i < len(runes); i++ {
		k := fail[i-1]
		for k > 0 && runes[i] != runes[k] {
			k = fail[k-1]
		}
		if runes[i] == runes[k] {
			k++
		}
		fail[i] = k
	}

	return &StreamFinder{target: runes, fail: fail}
}

// Process consumes one chunk and reports what became safe to emit. After a
// StopTokenMatched result the finder is reset and may be reused for the next
// occurrence.
func (f *StreamFinder) Process(chunk string) MatchResult {
	var released []rune
	runes := []rune(chunk)

	for i, ch := range runes {
		prev := f.pos
		for f.pos > 0 && ch != f.target[f.pos] {
			f.pos = f.fail[f.pos-1]
		}
		if ch == f.target[f.pos] {
			f.pos++
		}

		// Everything held back beyond the surviving match prefix is
		// confirmed output: prev+1 characters were in flight (the held-back
		// prefix plus ch), and the last f.pos of them remain tentative.
		if n := prev + 1 - f.pos; n > 0 {
			released = append(released, f.target[:prev]...)
			released = append(released, ch)
			released = released[:len(released)-f.pos]
		}

		if f.pos == len(f.target) {
			f.pos = 0
			return MatchResult{
				Kind:          StopTokenMatched,
				PreTokenText:  string(released),
				PostTokenText: string(runes[i+1:]),
			}
		}
	}

	if len(released) == 0 {
		return MatchResult{Kind: Blocked}
	}
	return MatchResult{Kind: CheckedOutput, Text: string(released)}
}
