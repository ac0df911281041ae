// SPDX-License-Identifier: MPL-2.0

package environ

import (
	"fmt"
	"os"
	"strings"
)

// LoadDotenv reads a dotenv file into a new Env.
func LoadDotenv(path string) (*Env, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables file '%s': %w", path, err)
	}
	env := New()
	if err := ParseDotenv(env, content, path); err != nil {
		return nil, err
	}
	return env, nil
}

// ParseDotenv parses dotenv content and merges it into env, in file order.
// Supported format:
//   - Lines starting with # are comments
//   - Empty lines are ignored
//   - KEY=value (unquoted, " #" starts an inline comment)
//   - KEY="value" (escape sequences: \n, \r, \t, \\, \", \$)
//   - KEY='value' (literal)
//   - export KEY=value
//
// The filename is only used in error messages.
func ParseDotenv(env *Env, content []byte, filename string) error {
	for i, line := range strings.Split(string(content), "\n") {
		lineNum := i + 1

		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("%s:%d: invalid format (missing '=')", filename, lineNum)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%s:%d: empty variable name", filename, lineNum)
		}

		parsed, err := parseDotenvValue(value)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, lineNum, err)
		}
		env.Set(key, parsed)
	}
	return nil
}

func parseDotenvValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	switch value[0] {
	case '"':
		if len(value) < 2 || value[len(value)-1] != '"' {
			return "", fmt.Errorf("unterminated double quote")
		}
		return unescapeDoubleQuoted(value[1 : len(value)-1]), nil
	case '\'':
		if len(value) < 2 || value[len(value)-1] != '\'' {
			return "", fmt.Errorf("unterminated single quote")
		}
		return value[1 : len(value)-1], nil
	}

	if idx := strings.Index(value, " #"); idx != -1 {
		value = strings.TrimSpace(value[:idx])
	}
	return value, nil
}

func unescapeDoubleQuoted(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	for i := 0; i < len(value); i++ {
		if value[i] != '\\' || i+1 == len(value) {
			b.WriteByte(value[i])
			continue
		}
		i++
		switch next := value[i]; next {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\', '"', '$':
			b.WriteByte(next)
		default:
			b.WriteByte('\\')
			b.WriteByte(next)
		}
	}
	return b.String()
}
