// Package truncate implements the token-budget truncation strategies
// applied to over-limit document text before it is embedded.
package truncate

import (
	"strings"

	"vectorpart/internal/tokencount"
)

// Strategy names a truncation strategy.
type Strategy string

const (
	End        Strategy = "end"
	Start      Strategy = "start"
	MiddleOut  Strategy = "middle_out"
	Sentences  Strategy = "sentences"
	Auto       Strategy = "auto"
)

const (
	endMarker       = "\n\n[... truncated ...]"
	startMarker     = "[... truncated ...]\n\n"
	middleOutMarker = "\n\n[... truncated ...]\n\n"
)

// Apply truncates text to fit within budget tokens (as measured by
// counter) using strategy, returning the resulting text, its token count,
// and whether truncation actually occurred (false if text already fit).
func Apply(text string, strategy Strategy, budget int, counter tokencount.Counter, recordType string, semanticFields []string) (string, int, bool) {
	if counter == nil {
		counter = tokencount.Approximate{}
	}
	if budget <= 0 {
		return "", 0, text != ""
	}
	if counter.Count(text) <= budget {
		return text, counter.Count(text), false
	}

	resolved := strategy
	if resolved == "" || resolved == Auto {
		resolved = suggestStrategy(text, recordType, semanticFields)
	}

	switch resolved {
	case Start:
		out := truncateStart(text, budget, counter)
		return out, counter.Count(out), true
	case MiddleOut:
		out := truncateMiddleOut(text, budget, counter)
		return out, counter.Count(out), true
	case Sentences:
		out, ok := truncateSentences(text, budget, counter)
		if !ok {
			out = truncateMiddleOut(text, budget, counter)
		}
		return out, counter.Count(out), true
	case End:
		fallthrough
	default:
		out := truncateEnd(text, budget, counter)
		return out, counter.Count(out), true
	}
}

// suggestStrategy implements the "auto" dispatch heuristic: `end` for
// Table-like record types, `sentences` when the semantic fields look like
// prose, `middle_out` for field/parameter-dense multi-line text, `middle_out`
// otherwise.
func suggestStrategy(text, recordType string, semanticFields []string) Strategy {
	lower := strings.ToLower(recordType)
	head := text
	if len(head) > 200 {
		head = head[:200]
	}
	if lower == "table" || strings.Contains(strings.ToLower(head), "table") {
		return End
	}
	for _, f := range semanticFields {
		switch strings.ToLower(f) {
		case "documentation", "help_text", "description":
			return Sentences
		}
	}
	if strings.Count(text, "\n") > 50 && (strings.Contains(text, "field") || strings.Contains(text, "parameter")) {
		return MiddleOut
	}
	return MiddleOut
}

// fitsPrefix reports whether runes[:n] followed by marker fits within
// budget tokens.
func fitsPrefix(runes []rune, n int, marker string, budget int, counter tokencount.Counter) bool {
	return counter.Count(string(runes[:n])+marker) <= budget
}

func fitsSuffix(runes []rune, n int, marker string, budget int, counter tokencount.Counter) bool {
	return counter.Count(marker+string(runes[len(runes)-n:])) <= budget
}

// truncateEnd keeps the longest fitting prefix, marker-suffixed.
func truncateEnd(text string, budget int, counter tokencount.Counter) string {
	if counter.Count(endMarker) > budget {
		return binarySearchPlain(text, budget, counter, true)
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fitsPrefix(runes, mid, endMarker, budget, counter) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + endMarker
}

// truncateStart keeps the longest fitting suffix, marker-prefixed.
func truncateStart(text string, budget int, counter tokencount.Counter) string {
	if counter.Count(startMarker) > budget {
		return binarySearchPlain(text, budget, counter, false)
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fitsSuffix(runes, mid, startMarker, budget, counter) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return startMarker + string(runes[len(runes)-lo:])
}

// truncateMiddleOut keeps an equal-length prefix and suffix joined by the
// middle-out marker, binary-searching the balanced half-length.
func truncateMiddleOut(text string, budget int, counter tokencount.Counter) string {
	if counter.Count(middleOutMarker) > budget {
		return binarySearchPlain(text, budget, counter, true)
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)/2+1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if mid > len(runes) {
			hi = mid - 1
			continue
		}
		prefix := string(runes[:mid])
		var suffix string
		if mid <= len(runes) {
			start := len(runes) - mid
			if start < mid {
				start = mid
			}
			suffix = string(runes[start:])
		}
		candidate := prefix + middleOutMarker + suffix
		if counter.Count(candidate) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	prefix := string(runes[:lo])
	start := len(runes) - lo
	if start < lo {
		start = lo
	}
	suffix := string(runes[start:])
	return prefix + middleOutMarker + suffix
}

// splitSentences finds sentence split points: the position right after
// '.', '!' or '?' followed by whitespace. Go's regexp has no lookbehind, so
// this walks the runes directly instead of matching a lookbehind pattern.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			j := i + 1
			if j < len(runes) && isSpace(runes[j]) {
				sentences = append(sentences, string(runes[start:j]))
				for j < len(runes) && isSpace(runes[j]) {
					j++
				}
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// truncateSentences greedily takes sentences from the start up to half the
// budget, then from the end until the remaining budget is exhausted,
// de-duplicating overlap. Returns ok=false if the text has no detectable
// sentence boundaries, signalling the caller to fall back to middle_out.
func truncateSentences(text string, budget int, counter tokencount.Counter) (string, bool) {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return "", false
	}

	half := budget / 2
	var head []string
	headTokens := 0
	i := 0
	for ; i < len(sentences); i++ {
		t := counter.Count(sentences[i])
		if headTokens+t > half {
			break
		}
		head = append(head, sentences[i])
		headTokens += t
	}

	var tail []string
	tailTokens := 0
	remaining := budget - headTokens
	j := len(sentences) - 1
	for ; j >= i; j-- {
		t := counter.Count(sentences[j])
		if tailTokens+t > remaining {
			break
		}
		tail = append([]string{sentences[j]}, tail...)
		tailTokens += t
	}

	if len(head) == 0 && len(tail) == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(head, ""))
	if len(head) > 0 && len(tail) > 0 {
		sb.WriteString(middleOutMarker)
	}
	sb.WriteString(strings.Join(tail, ""))
	return sb.String(), true
}

// binarySearchPlain truncates without a marker, used when even the marker
// text cannot fit within budget.
func binarySearchPlain(text string, budget int, counter tokencount.Counter, fromStart bool) string {
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		var candidate string
		if fromStart {
			candidate = string(runes[:mid])
		} else {
			candidate = string(runes[len(runes)-mid:])
		}
		if counter.Count(candidate) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if fromStart {
		return string(runes[:lo])
	}
	return string(runes[len(runes)-lo:])
}
