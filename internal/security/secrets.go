// Package security redacts credentials from text that leaves the process and
// screens operator-supplied catalog text.
package security

import (
	"regexp"
	"strings"
)

// SecretMatch is one credential found in a string
type SecretMatch struct {
	Type  string
	Start int
	End   int
}

// SecretScanner finds and redacts credentials
type SecretScanner struct {
	patterns []*secretPattern
}

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"Google API Key", `AIza[0-9A-Za-z\-_]{35}`, "AIza****"},
	{"Key Query Parameter", `([?&]key=)[^&\s"']+`, "${1}****"},
	{"Bearer Token", `(?i)(bearer\s+)[0-9a-zA-Z\-_.=]{16,}`, "${1}****"},
	{"Generic API Key", `(?i)((?:api[_-]?key|x-goog-api-key)['"]?\s*[:=]\s*['"]?)[0-9a-zA-Z\-_]{16,}`, "${1}****"},
}

// NewSecretScanner compiles the default patterns
func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}

	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}

	return scanner
}

func (s *SecretScanner) Scan(input string) []SecretMatch {
	var matches []SecretMatch

	for _, pattern := range s.patterns {
		for _, loc := range pattern.regex.FindAllStringIndex(input, -1) {
			matches = append(matches, SecretMatch{
				Type:  pattern.name,
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	return matches
}

func (s *SecretScanner) HasSecrets(input string) bool {
	return len(s.Scan(input)) > 0
}

// Redact masks every known credential shape in input, plus any literal
// values passed as known
func (s *SecretScanner) Redact(input string, known ...string) string {
	result := input
	for _, k := range known {
		if len(k) >= 4 {
			result = strings.ReplaceAll(result, k, "****")
		}
	}

	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.redactWith)
	}

	return result
}

var defaultScanner = NewSecretScanner()

func HasSecrets(input string) bool {
	return defaultScanner.HasSecrets(input)
}

func RedactSecrets(input string, known ...string) string {
	return defaultScanner.Redact(input, known...)
}
