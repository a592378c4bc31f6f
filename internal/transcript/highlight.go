package transcript

import "strings"

const highlightLookahead = 3

// Token is one word of a corrected text.
type Token struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

// HighlightChanges marks the words of fixed that do not line up with
// original. A fixed word matches if it equals the current original word or
// one of the next few; skipped original words count as deleted.
func HighlightChanges(original, fixed string) []Token {
	originalWords := strings.Fields(original)
	fixedWords := strings.Fields(fixed)
	tokens := make([]Token, 0, len(fixedWords))

	oi := 0
	for _, word := range fixedWords {
		if oi < len(originalWords) && originalWords[oi] == word {
			tokens = append(tokens, Token{Text: word})
			oi++
			continue
		}

		matched := false
		for ahead := 1; ahead <= highlightLookahead && oi+ahead < len(originalWords); ahead++ {
			if originalWords[oi+ahead] == word {
				tokens = append(tokens, Token{Text: word})
				oi += ahead + 1
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		tokens = append(tokens, Token{Text: word, Changed: true})
		if oi < len(originalWords) {
			oi++
		}
	}
	return tokens
}
