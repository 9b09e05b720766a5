package search

import (
	"strings"
	"unicode"
)

const maxTokenLength = 80

// analyze runs the full pipeline: tokenize, drop stop words, stem.
func analyze(text string) []string {
	tokens := tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if stopWords[t] {
			continue
		}
		if stemmed := stem(t); stemmed != "" {
			out = append(out, stemmed)
		}
	}
	return out
}

// tokenize lowercases and splits on whitespace and hyphens, dropping
// oversized tokens that would bloat the trie for no search value.
func tokenize(text string) []string {
	var tokens []string
	var word strings.Builder

	flush := func() {
		if word.Len() == 0 {
			return
		}
		token := strings.ToLower(word.String())
		if token != "" && len(token) <= maxTokenLength {
			tokens = append(tokens, token)
		}
		word.Reset()
	}

	for _, r := range text {
		if unicode.IsSpace(r) || r == '-' {
			flush()
		} else {
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// stem reduces a word to an approximate root form by stripping common
// English suffixes, longest first within each group.
func stem(word string) string {
	if len(word) <= 2 {
		return word
	}
	word = strings.ToLower(word)

	plurals := []struct {
		suffix string
		minLen int
	}{
		{"ies", 3},
		{"es", 2},
		{"s", 1},
	}
	for _, s := range plurals {
		if strings.HasSuffix(word, s.suffix) && len(word) > len(s.suffix)+s.minLen {
			word = word[:len(word)-len(s.suffix)]
			break
		}
	}

	if strings.HasSuffix(word, "ed") && len(word) > 4 {
		word = word[:len(word)-2]
	} else if strings.HasSuffix(word, "ing") && len(word) > 5 {
		word = word[:len(word)-3]
	}

	derivational := []string{
		"tion", "sion", "ment", "ness", "ful", "less", "ity",
		"ous", "ive", "ent", "ant", "able", "ible", "ence", "ance",
	}
	for _, suffix := range derivational {
		if strings.HasSuffix(word, suffix) && len(word) > len(suffix)+2 {
			word = word[:len(word)-len(suffix)]
			break
		}
	}

	endings := []string{"ly", "er", "est"}
	for _, suffix := range endings {
		if strings.HasSuffix(word, suffix) && len(word) > len(suffix)+2 {
			word = word[:len(word)-len(suffix)]
			break
		}
	}
	return word
}

var stopWords = map[string]bool{
	"a": true, "able": true, "about": true, "across": true, "after": true,
	"all": true, "almost": true, "also": true, "am": true, "among": true,
	"an": true, "and": true, "any": true, "are": true, "as": true,
	"at": true, "be": true, "because": true, "been": true, "but": true,
	"by": true, "can": true, "cannot": true, "could": true, "dear": true,
	"did": true, "do": true, "does": true, "either": true, "else": true,
	"ever": true, "every": true, "for": true, "from": true, "get": true,
	"got": true, "had": true, "has": true, "have": true, "he": true,
	"her": true, "hers": true, "him": true, "his": true, "how": true,
	"however": true, "i": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "just": true, "least": true,
	"let": true, "like": true, "likely": true, "may": true, "me": true,
	"might": true, "most": true, "must": true, "my": true, "neither": true,
	"no": true, "nor": true, "not": true, "of": true, "off": true,
	"often": true, "on": true, "only": true, "or": true, "other": true,
	"our": true, "own": true, "rather": true, "said": true, "say": true,
	"says": true, "she": true, "should": true, "since": true, "so": true,
	"some": true, "than": true, "that": true, "the": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "tis": true, "to": true, "too": true, "twas": true,
	"us": true, "wants": true, "was": true, "we": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"who": true, "whom": true, "why": true, "will": true, "with": true,
	"would": true, "yet": true, "you": true, "your": true,
}
