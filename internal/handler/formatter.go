package handler

import (
	"path/filepath"
	"slices"
	"strings"
)

// Placeholders substituted in formatter commands.
const (
	PlaceholderFile   = "{file}"
	PlaceholderConfig = "{config}"
)

// Formatter is a lint/format pipeline applied to files with matching
// extensions after a file-mutating tool ran.
type Formatter struct {
	Name       string     `yaml:"name"`
	Extensions []string   `yaml:"extensions"`
	Config     string     `yaml:"config"`
	Commands   [][]string `yaml:"commands"`
}

// DefaultFormatters lints and formats Python files with ruff through uv.
func DefaultFormatters() []Formatter {
	return []Formatter{
		{
			Name:       "ruff",
			Extensions: []string{".py", ".pyi"},
			Commands: [][]string{
				{"uv", "run", "ruff", "check", "--fix", "--config", PlaceholderConfig, PlaceholderFile},
				{"uv", "run", "ruff", "format", "--config", PlaceholderConfig, PlaceholderFile},
			},
		},
	}
}

// Matches reports whether the formatter applies to path.
func (f Formatter) Matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(f.Extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// Expand substitutes placeholders in cmd. With no Config set, a {config}
// argument is dropped together with the flag right before it, so
// "--config {config}" disappears entirely.
func (f Formatter) Expand(cmd []string, file string) []string {
	out := make([]string, 0, len(cmd))
	for _, arg := range cmd {
		if arg == PlaceholderConfig && f.Config == "" {
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "-") {
				out = out[:n-1]
			}
			continue
		}
		arg = strings.ReplaceAll(arg, PlaceholderFile, file)
		arg = strings.ReplaceAll(arg, PlaceholderConfig, f.Config)
		out = append(out, arg)
	}
	return out
}
