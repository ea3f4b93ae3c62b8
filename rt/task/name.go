package task

import (
	"errors"
	"strings"
)

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// validateName accepts the empty name (unnamed task). Names are used as ops keys and
// tuning key segments, so they stay within [A-Za-z0-9._-].
func validateName(name string) error {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			return errors.New("contains whitespace (not allowed)")
		default:
			return errors.New("contains invalid char (allowed: [A-Za-z0-9._-])")
		}
	}
	return nil
}
