// SPDX-License-Identifier: MPL-2.0

package environ

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LoadTOML reads build variables from a TOML document.
// Top-level scalars become variables as written. Nested tables are flattened
// into upper-cased names joined with '_', so [axis] python = "3.12" becomes
// AXIS_PYTHON=3.12. Arrays are rejected.
func LoadTOML(path string) (*Env, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables file '%s': %w", path, err)
	}
	return ParseTOML(content, path)
}

// ParseTOML parses TOML content into a new Env. Keys are inserted in sorted
// order within each table.
func ParseTOML(content []byte, filename string) (*Env, error) {
	var doc map[string]any
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	env := New()
	if err := flattenTOML(env, "", doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return env, nil
}

func flattenTOML(env *Env, prefix string, table map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(table)) {
		name := key
		if prefix != "" {
			name = prefix + "_" + strings.ToUpper(key)
		}
		switch v := table[key].(type) {
		case map[string]any:
			next := name
			if prefix == "" {
				next = strings.ToUpper(key)
			}
			if err := flattenTOML(env, next, v); err != nil {
				return err
			}
		case string:
			env.Set(name, v)
		case bool:
			env.Set(name, strconv.FormatBool(v))
		case int64:
			env.Set(name, strconv.FormatInt(v, 10))
		case float64:
			env.Set(name, strconv.FormatFloat(v, 'g', -1, 64))
		case time.Time:
			env.Set(name, v.Format(time.RFC3339))
		case toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
			env.Set(name, fmt.Sprint(v))
		default:
			return fmt.Errorf("variable %q: unsupported value of type %T", name, v)
		}
	}
	return nil
}
