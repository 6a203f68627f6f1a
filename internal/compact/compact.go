// Package compact provides the document compactor interface and the
// deterministic hard-trim fallback applied when a compactor either isn't
// wired in or fails to bring text under budget.
package compact

import "unicode/utf8"

// Result is what a Compactor returns for one document.
type Result struct {
	Text         string
	WasCompacted bool
}

// Compactor is the LLM-backed budget-enforcing transformer collaborator
// (spec §6). recordType is optional context a real implementation can use
// to tailor its prompt; targetBytes is the UTF-8 byte budget the returned
// text must not exceed.
type Compactor interface {
	Compact(id, text, recordType string, targetBytes int) (Result, error)
}

// HardTrim trims text to the last complete UTF-8 code point at or before
// targetBytes. Used both as the compactor-failure fallback and as the
// guaranteed backstop after any Compactor call, since implementations are
// not fully trusted to honor the budget exactly.
func HardTrim(text string, targetBytes int) string {
	if len(text) <= targetBytes {
		return text
	}
	end := targetBytes
	for end > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:end])
		if r == utf8.RuneError && size == 1 {
			end--
			continue
		}
		break
	}
	return text[:end]
}
