// Package redact masks credentials in text and in decoded JSON values before
// they reach the terminal or the event log.
package redact

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// secretPatterns match credential values themselves, not variable names.
var secretPatterns = []*regexp.Regexp{
	// Anthropic keys: sk-ant-...
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
	// OpenAI keys: sk-...
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	// Groq keys: gsk_...
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),
	// GitHub tokens: ghp_, gho_, ghs_, ghu_, ghr_
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{30,}`),
	// AWS access key ids
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.=]{20,}`),
	// Long hex strings
	regexp.MustCompile(`\b[a-f0-9]{64,}\b`),
}

// credKV matches key=value and key: value pairs whose key names a secret.
var credKV = regexp.MustCompile(`(?i)\b((?:password|passwd|secret|token|api_key|apikey)[ \t]*[=:][ \t]*)\S+`)

// envLine matches exported environment lines for well-known secret variables.
var envLine = regexp.MustCompile(
	`(?im)^(?:declare -x |export )?` +
		`(\w*_API_KEY|\w*_SECRET\w*|\w*_TOKEN|ANTHROPIC_\w*|OPENAI_\w*|GROQ_\w*)` +
		`[= ].*$`,
)

// DefaultKeys are JSON object keys whose string values are masked outright.
var DefaultKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "access_token", "refresh_token", "private_key",
}

// String returns s with credentials replaced and the number of replacements.
func String(s string) (string, int) {
	count := 0
	result := s
	for _, re := range secretPatterns {
		if n := len(re.FindAllStringIndex(result, -1)); n > 0 {
			count += n
			result = re.ReplaceAllString(result, Placeholder)
		}
	}
	if n := len(credKV.FindAllStringIndex(result, -1)); n > 0 {
		count += n
		result = credKV.ReplaceAllString(result, "${1}"+Placeholder)
	}
	if n := len(envLine.FindAllStringIndex(result, -1)); n > 0 {
		count += n
		result = envLine.ReplaceAllString(result, Placeholder)
	}

	// Collapse runs of fully redacted lines.
	for strings.Contains(result, Placeholder+"\n"+Placeholder) {
		result = strings.ReplaceAll(result, Placeholder+"\n"+Placeholder, Placeholder)
	}
	return result, count
}

// Fields returns a deep copy of fields with every string scrubbed by String
// and the values of DefaultKeys plus extraKeys masked. Numbers, bools and
// nulls are preserved. The input is not modified.
func Fields(fields map[string]any, extraKeys ...string) (map[string]any, int) {
	keys := make(map[string]bool, len(DefaultKeys)+len(extraKeys))
	for _, k := range DefaultKeys {
		keys[k] = true
	}
	for _, k := range extraKeys {
		keys[strings.ToLower(k)] = true
	}
	count := 0
	out := redactMap(fields, keys, &count)
	return out, count
}

func redactMap(m map[string]any, keys map[string]bool, count *int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if keys[strings.ToLower(k)] && maskable(v) {
			*count++
			out[k] = Placeholder
			continue
		}
		out[k] = redactValue(v, keys, count)
	}
	return out
}

func redactValue(v any, keys map[string]bool, count *int) any {
	switch t := v.(type) {
	case string:
		s, n := String(t)
		*count += n
		return s
	case map[string]any:
		return redactMap(t, keys, count)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, keys, count)
		}
		return out
	default:
		return v
	}
}

// maskable reports whether a secret-keyed value is hidden. Numbers, bools
// and nulls carry nothing worth hiding.
func maskable(v any) bool {
	switch v.(type) {
	case float64, int, int64, json.Number, bool, nil:
		return false
	}
	return true
}
