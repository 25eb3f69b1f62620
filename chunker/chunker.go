// Package chunker splits raw document text into bounded, overlapping
// pieces suitable for embedding and retrieval.
//
// Splitting cascades through progressively harder boundaries: paragraph
// breaks first, then line breaks, then sentence punctuation, then word
// boundaries, and finally arbitrary character positions. A harder
// boundary is used only when a candidate piece still exceeds the chunk
// size. The output is a pure function of the input text and parameters.
package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidParameters is returned for a non-positive chunk size or an
// overlap that is negative or not smaller than the chunk size.
var ErrInvalidParameters = errors.New("chunker: invalid chunk parameters")

// DefaultSeparators is the cascading boundary list, softest first. The
// trailing empty string is the character-level fallback and must always
// be last.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "。", " ", ""}

// Splitter produces overlapping text pieces bounded by ChunkSize.
// Sizes are measured in runes, not bytes, so multi-byte scripts chunk
// the same way as ASCII.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New returns a Splitter for the given size and overlap.
// Requires chunkSize > 0 and 0 <= chunkOverlap < chunkSize.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, ErrInvalidParameters
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split divides text into ordered overlapping pieces, each at most
// chunkSize runes. Empty or whitespace-only input yields no pieces.
// A final piece shorter than chunkSize is kept as-is.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

// Split is a convenience wrapper that validates parameters and runs a
// one-shot split.
func Split(text string, chunkSize, chunkOverlap int) ([]string, error) {
	sp, err := New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return sp.Split(text), nil
}

// split recursively divides text on the softest separator present,
// descending to harder separators only for fragments that still exceed
// the chunk size, then merges sibling fragments back together with
// overlap.
func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator that actually occurs in the text; the
	// empty-string fallback always matches.
	sep := separators[len(separators)-1]
	var harder []string
	for i, cand := range separators {
		if cand == "" {
			sep = ""
			harder = nil
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			harder = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, sep)

	var pieces []string
	var pending []string
	for _, frag := range splits {
		if utf8.RuneCountInString(frag) < s.chunkSize {
			pending = append(pending, frag)
			continue
		}
		// Fragment too large: flush what we have, then recurse with
		// harder separators.
		if len(pending) > 0 {
			pieces = append(pieces, s.merge(pending)...)
			pending = nil
		}
		if len(harder) == 0 {
			pieces = append(pieces, frag)
		} else {
			pieces = append(pieces, s.split(frag, harder)...)
		}
	}
	if len(pending) > 0 {
		pieces = append(pieces, s.merge(pending)...)
	}
	return pieces
}

// merge joins adjacent fragments into pieces of at most chunkSize
// runes. When a piece is emitted, trailing fragments totalling at most
// chunkOverlap runes are carried over to start the next piece.
// Fragments retain their separators, so concatenating a window
// reproduces a contiguous span of the original text.
func (s *Splitter) merge(splits []string) []string {
	var pieces []string
	var window []string
	total := 0

	emit := func() {
		piece := strings.TrimSpace(strings.Join(window, ""))
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}

	for _, frag := range splits {
		l := utf8.RuneCountInString(frag)
		if total+l > s.chunkSize && len(window) > 0 {
			emit()
			// Shrink the window to the overlap budget, and further if
			// the incoming fragment would not fit alongside it.
			for len(window) > 0 && (total > s.chunkOverlap || total+l > s.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, frag)
		total += l
	}
	if len(window) > 0 {
		emit()
	}
	return pieces
}

// splitKeepSeparator splits text on sep, keeping the separator attached
// to the end of the preceding fragment. An empty separator splits into
// individual runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for i, frag := range raw {
		if i < len(raw)-1 {
			frag += sep
		}
		if frag != "" {
			out = append(out, frag)
		}
	}
	return out
}
