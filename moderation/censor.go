// Package moderation masks banned words in message content before it is
// persisted. The match is accent- and spacing-tolerant: content is normalized
// for the search, then masking is applied to the original runes.
package moderation

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Censor struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewCensor builds the Aho-Corasick automaton over the normalized word list.
func NewCensor(words []string, mask rune) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		normalized, _ := normalize(word)
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: machine, mask: mask}, nil
}

// Apply replaces every banned span of content with the mask rune.
func (c *Censor) Apply(content string) string {
	normalized, originIdx := normalize(content)
	if len(normalized) == 0 {
		return content
	}

	spans := c.machine.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return content
	}

	runes := []rune(content)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(originIdx) {
			continue
		}
		for i := originIdx[start]; i <= originIdx[end-1]; i++ {
			runes[i] = c.mask
		}
	}
	return string(runes)
}

// LoadWords reads one banned word per line; blank lines and
// lines starting with '#' are skipped.
func LoadWords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// normalize lowercases, folds common leet substitutions and drops separators,
// keeping a mapping from normalized positions back to original rune indexes.
func normalize(input string) ([]rune, []int) {
	runes := []rune(input)
	normalized := make([]rune, 0, len(runes))
	originIdx := make([]int, 0, len(runes))

	for i, r := range runes {
		folded := foldLeet(r)
		if unicode.IsSpace(folded) || unicode.IsPunct(folded) || unicode.IsSymbol(folded) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(folded))
		originIdx = append(originIdx, i)
	}
	return normalized, originIdx
}

func foldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
