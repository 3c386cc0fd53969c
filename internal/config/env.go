package config

import (
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"
)

// envFilePaths lists the .env files read at startup, nearest first
func envFilePaths() []string {
	paths := []string{"./.env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".medtwin", ".env"),
			filepath.Join(home, ".config", "medtwin", ".env"),
		)
	}
	return paths
}

// LoadEnvFiles loads the .env files that exist from the working directory and
// the user config directories. Variables already set are left alone.
func LoadEnvFiles() error {
	return loadEnvFiles(envFilePaths()...)
}

func loadEnvFiles(paths ...string) error {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return gotenv.Load(existing...)
}

var envAliases = map[string][]string{
	"MEDTWIN_LLM_API_KEY": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"MEDTWIN_LLM_MODEL":   {"GEMINI_MODEL"},
	"MEDTWIN_SERVER_PORT": {"PORT"},
}

// ResolveEnvWithAliases returns the canonical variable or its first set alias
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}
	return ""
}
