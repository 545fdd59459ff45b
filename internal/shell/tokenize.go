package shell

import "fmt"

// Tokenize splits a command line into words, honoring single and double
// quotes. An unterminated quote is a parse error.
func Tokenize(line string) ([]string, error) {
	var tokens []string
	var current []rune
	hasToken := false
	inQuote := false
	quoteChar := rune(0)

	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			if inQuote {
				if r == quoteChar {
					inQuote = false
					quoteChar = 0
				} else {
					current = append(current, r)
				}
			} else {
				inQuote = true
				quoteChar = r
				hasToken = true
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current = append(current, r)
			} else if hasToken {
				tokens = append(tokens, string(current))
				current = nil
				hasToken = false
			}
		default:
			current = append(current, r)
			hasToken = true
		}
	}

	if inQuote {
		return nil, fmt.Errorf("no closing quotation")
	}
	if hasToken {
		tokens = append(tokens, string(current))
	}
	return tokens, nil
}
