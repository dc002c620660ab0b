package domain

import (
	"sort"
	"strings"
)

type APIFamily string

const (
	APIFamilyAnthropic     APIFamily = "anthropic"
	APIFamilyGoogle        APIFamily = "google"
	APIFamilyOllama        APIFamily = "ollama"
	APIFamilyOpenRouter    APIFamily = "openrouter"
	APIFamilyAcademicCloud APIFamily = "academiccloud"
)

var KnownAPIFamilies = []APIFamily{
	APIFamilyAnthropic,
	APIFamilyGoogle,
	APIFamilyOllama,
	APIFamilyOpenRouter,
	APIFamilyAcademicCloud,
}

func (f APIFamily) Known() bool {
	for _, k := range KnownAPIFamilies {
		if f == k {
			return true
		}
	}
	return false
}

type ModelConfig struct {
	Name        string    `yaml:"-" json:"name"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	ModelID     string    `yaml:"model_id" json:"model_id"`
	APIFamily   APIFamily `yaml:"api_family" json:"api_family"`
	MaxTokens   int       `yaml:"max_tokens" json:"max_tokens"`
}

func (m ModelConfig) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// DirName is the on-disk directory for a model's runs. Slashes are kept, so
// "google/gemini-3-pro-preview" becomes the nested "google/gemini_3_pro_preview".
func (m ModelConfig) DirName() string {
	return SanitizeModelID(m.ModelID)
}

func SanitizeModelID(modelID string) string {
	return strings.NewReplacer(":", "_", ".", "_", "-", "_").Replace(modelID)
}

func DefaultModels() map[string]ModelConfig {
	models := map[string]ModelConfig{
		"claude": {
			DisplayName: "Claude Sonnet 4.5",
			ModelID:     "claude-sonnet-4-5-20250929",
			APIFamily:   APIFamilyAnthropic,
			MaxTokens:   2048,
		},
		"gemini": {
			DisplayName: "Gemini 3 Pro",
			ModelID:     "google/gemini-3-pro-preview",
			APIFamily:   APIFamilyOpenRouter,
			// room for reasoning tokens
			MaxTokens: 8192,
		},
		"gemini-flash": {
			DisplayName: "Gemini 3 Flash",
			ModelID:     "google/gemini-3-flash-preview",
			APIFamily:   APIFamilyOpenRouter,
			MaxTokens:   8192,
		},
		"gemini-direct": {
			DisplayName: "Gemini 2.5 Pro",
			ModelID:     "gemini-2.5-pro",
			APIFamily:   APIFamilyGoogle,
			MaxTokens:   8192,
		},
		"gemma": {
			DisplayName: "Gemma 3 27B",
			ModelID:     "gemma-3-27b-it",
			APIFamily:   APIFamilyAcademicCloud,
			MaxTokens:   2048,
		},
		"qwen": {
			DisplayName: "Qwen 2.5 VL 72B",
			ModelID:     "qwen2.5-vl-72b-instruct",
			APIFamily:   APIFamilyAcademicCloud,
			MaxTokens:   2048,
		},
		"gemma-local": {
			DisplayName: "Gemma 3 27B (local)",
			ModelID:     "gemma3:27b",
			APIFamily:   APIFamilyOllama,
			MaxTokens:   2048,
		},
	}
	for name, m := range models {
		m.Name = name
		models[name] = m
	}
	return models
}

func SortedModelNames(models map[string]ModelConfig) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
