package core

import (
	"fmt"
	"strings"
)

// TranslatePattern converts a letter-style date pattern such as
// "yyyyMMdd" or "HH:mm:ss.SSS" into a Go reference layout.
//
// Supported letters: y M d H h m s S E a Z X. Text in single quotes is
// copied literally ('' is a quote). Fractional seconds (S) must follow a
// '.' or ','.
func TranslatePattern(pattern string) (string, error) {
	if pattern == "" {
		return "", &ConstructionError{Column: -1, Err: ErrBadPattern, Detail: "empty pattern"}
	}

	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		c := runes[i]

		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			end := i + 1
			for end < len(runes) && runes[end] != '\'' {
				end++
			}
			if end == len(runes) {
				return "", badPattern(pattern, "unterminated quote")
			}
			b.WriteString(string(runes[i+1 : end]))
			i = end + 1
			continue
		}

		if !isPatternLetter(c) {
			b.WriteRune(c)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}

		tok, err := layoutToken(c, n, b.String())
		if err != nil {
			return "", badPattern(pattern, err.Error())
		}
		b.WriteString(tok)
		i += n
	}

	return b.String(), nil
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func layoutToken(c rune, n int, sofar string) (string, error) {
	switch c {
	case 'y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch {
		case n == 1:
			return "1", nil
		case n == 2:
			return "01", nil
		case n == 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		if n == 1 {
			return "2", nil
		}
		return "02", nil
	case 'H':
		return "15", nil
	case 'h':
		if n == 1 {
			return "3", nil
		}
		return "03", nil
	case 'm':
		if n == 1 {
			return "4", nil
		}
		return "04", nil
	case 's':
		if n == 1 {
			return "5", nil
		}
		return "05", nil
	case 'S':
		if !strings.HasSuffix(sofar, ".") && !strings.HasSuffix(sofar, ",") {
			return "", fmt.Errorf("fractional seconds must follow '.' or ','")
		}
		return strings.Repeat("0", n), nil
	case 'E':
		if n >= 4 {
			return "Monday", nil
		}
		return "Mon", nil
	case 'a':
		return "PM", nil
	case 'Z':
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "-07", nil
		case 2:
			return "-0700", nil
		default:
			return "-07:00", nil
		}
	}
	return "", fmt.Errorf("unsupported letter %q", c)
}

func badPattern(pattern, detail string) error {
	return &ConstructionError{
		Column: -1,
		Err:    ErrBadPattern,
		Detail: fmt.Sprintf("%q: %s", pattern, detail),
	}
}
