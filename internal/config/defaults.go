package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "all-minilm"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// LLM defaults
	DefaultLLMProvider      = "ollama"
	DefaultOllamaLLMModel   = "llama3"
	DefaultOpenAILLMModel   = "gpt-4o-mini"
	DefaultAnthropicModel   = "claude-3-haiku-20240307"
	DefaultFallbackProvider = "ollama"
	DefaultFallbackLLMModel = "llama3.2"

	// Retrieval defaults
	DefaultCollectionName    = "menus"
	DefaultTopK              = 3
	DefaultMinScore          = 0.0
	DefaultPreviewChars      = 200
	DefaultMaxContextRecords = 5

	// Database
	DefaultDBFileName = "ragu.db"
)

// DefaultIgnorePatterns returns the default patterns skipped when bulk-loading
// a directory of documents.
func DefaultIgnorePatterns() []string {
	return []string{
		".git/",
		".svn/",
		"node_modules/",
		".venv/",
		"venv/",
		".idea/",
		".vscode/",
		".DS_Store",
		"*.log",
		"*.lock",
		"*.swp",
		"*~",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ragu"
	}
	return filepath.Join(home, ".config", "ragu")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/ragu"
	}
	return filepath.Join(home, ".local", "share", "ragu")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
