package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"peircevlm/internal/domain"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 120 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
const defaultRequestDelaySeconds = 5

const (
	defaultAnthropicBaseURL     = "https://api.anthropic.com"
	defaultGoogleBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenRouterBaseURL    = "https://openrouter.ai/api/v1"
	defaultAcademicCloudBaseURL = "https://chat-ai.academiccloud.de/v1"
	defaultOllamaURL            = "http://localhost:11434"
)

// defaultSymbolicPromptFilter is the opening of the built-in symbolic prompt;
// it keeps older prompt variants out of symbolic consolidation.
const defaultSymbolicPromptFilter = "In Peirce's diagrammatic logic"

type Config struct {
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`
	GoogleAPIKey        string `yaml:"google_api_key"`
	OpenRouterAPIKey    string `yaml:"openrouter_api_key"`
	AcademicCloudAPIKey string `yaml:"academiccloud_api_key"`

	AnthropicBaseURL     string `yaml:"anthropic_base_url"`
	GoogleBaseURL        string `yaml:"google_base_url"`
	OpenRouterBaseURL    string `yaml:"openrouter_base_url"`
	AcademicCloudBaseURL string `yaml:"academiccloud_base_url"`
	OllamaURL            string `yaml:"ollama_url"`

	SegmentsIndexPath string `yaml:"segments_index_path"`
	CropsDir          string `yaml:"crops_dir"`
	EvaluationsDir    string `yaml:"evaluations_dir"`
	GroundTruthDir    string `yaml:"ground_truth_dir"`
	StatisticsDir     string `yaml:"statistics_dir"`
	DBPath            string `yaml:"db_path"`
	ManuscriptID      string `yaml:"manuscript_id"`
	PromptsPath       string `yaml:"prompts_path"`

	// RequestDelaySeconds is nil when unset; an explicit 0 disables the delay.
	RequestDelaySeconds        *int `yaml:"request_delay_seconds"`
	ExternalHTTPTimeoutSeconds int  `yaml:"external_http_timeout_seconds"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackChannelID  string `yaml:"slack_channel_id"`

	EvaluationSchedule string   `yaml:"evaluation_schedule"`
	ScheduleModels     []string `yaml:"schedule_models"`
	SchedulePrompt     string   `yaml:"schedule_prompt"`

	// PromptFilters maps a level to the prompt prefix consolidation keeps.
	// An explicit empty value disables the default for that level.
	PromptFilters map[domain.Level]string `yaml:"prompt_filters"`

	Models map[string]domain.ModelConfig `yaml:"models"`
}

// Load reads an optional YAML file, applies env overrides, fills defaults
// and validates. A missing file is not an error.
func Load(configPath string) (Config, error) {
	var cfg Config

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.GoogleAPIKey, "GOOGLE_API_KEY")
	envOverride(&cfg.OpenRouterAPIKey, "OPENROUTER_API_KEY")
	envOverride(&cfg.AcademicCloudAPIKey, "ACADEMICCLOUD_API_KEY")
	envOverride(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	envOverride(&cfg.GoogleBaseURL, "GOOGLE_BASE_URL")
	envOverride(&cfg.OpenRouterBaseURL, "OPENROUTER_BASE_URL")
	envOverride(&cfg.AcademicCloudBaseURL, "ACADEMICCLOUD_BASE_URL")
	envOverride(&cfg.OllamaURL, "OLLAMA_URL")
	envOverride(&cfg.SegmentsIndexPath, "SEGMENTS_INDEX_PATH")
	envOverride(&cfg.CropsDir, "CROPS_DIR")
	envOverride(&cfg.EvaluationsDir, "EVALUATIONS_DIR")
	envOverride(&cfg.GroundTruthDir, "GROUND_TRUTH_DIR")
	envOverride(&cfg.StatisticsDir, "STATISTICS_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ManuscriptID, "MANUSCRIPT_ID")
	envOverride(&cfg.PromptsPath, "PROMPTS_PATH")
	envOverride(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.EvaluationSchedule, "EVALUATION_SCHEDULE")
	envOverride(&cfg.SchedulePrompt, "SCHEDULE_PROMPT")
	if names := os.Getenv("SCHEDULE_MODELS"); names != "" {
		cfg.ScheduleModels = splitList(names)
	}

	var errs []error
	errs = append(errs, envOverrideOptionalInt(&cfg.RequestDelaySeconds, "REQUEST_DELAY_SECONDS"))
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AnthropicBaseURL == "" {
		cfg.AnthropicBaseURL = defaultAnthropicBaseURL
	}
	if cfg.GoogleBaseURL == "" {
		cfg.GoogleBaseURL = defaultGoogleBaseURL
	}
	if cfg.OpenRouterBaseURL == "" {
		cfg.OpenRouterBaseURL = defaultOpenRouterBaseURL
	}
	if cfg.AcademicCloudBaseURL == "" {
		cfg.AcademicCloudBaseURL = defaultAcademicCloudBaseURL
	}
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = defaultOllamaURL
	}
	if cfg.SegmentsIndexPath == "" {
		cfg.SegmentsIndexPath = "data/02_results/manuscripts_segments_index.csv"
	}
	if cfg.CropsDir == "" {
		cfg.CropsDir = "data/02_results/crops"
	}
	if cfg.EvaluationsDir == "" {
		cfg.EvaluationsDir = "data/02_results/diagram_evaluations"
	}
	if cfg.GroundTruthDir == "" {
		cfg.GroundTruthDir = "data/03_ground_truth"
	}
	if cfg.StatisticsDir == "" {
		cfg.StatisticsDir = "data/02_results/statistics"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/02_results/evaluations.db"
	}
	if cfg.ManuscriptID == "" {
		cfg.ManuscriptID = "hou02614c00458"
	}
	if cfg.RequestDelaySeconds == nil {
		delay := defaultRequestDelaySeconds
		cfg.RequestDelaySeconds = &delay
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.SchedulePrompt == "" {
		cfg.SchedulePrompt = "morphological"
	}

	if cfg.PromptFilters == nil {
		cfg.PromptFilters = make(map[domain.Level]string)
	}
	if _, ok := cfg.PromptFilters[domain.LevelSymbolic]; !ok {
		cfg.PromptFilters[domain.LevelSymbolic] = defaultSymbolicPromptFilter
	}

	// Entries in the yaml models table override built-ins field by field.
	models := domain.DefaultModels()
	for name, override := range cfg.Models {
		m, ok := models[name]
		if !ok {
			m = domain.ModelConfig{}
		}
		if override.DisplayName != "" {
			m.DisplayName = override.DisplayName
		}
		if override.ModelID != "" {
			m.ModelID = override.ModelID
		}
		if override.APIFamily != "" {
			m.APIFamily = override.APIFamily
		}
		if override.MaxTokens != 0 {
			m.MaxTokens = override.MaxTokens
		}
		m.Name = name
		models[name] = m
	}
	cfg.Models = models
}

func (c Config) validate() error {
	if c.RequestDelaySeconds != nil && *c.RequestDelaySeconds < 0 {
		return fmt.Errorf("invalid request_delay_seconds '%d': must be >= 0", *c.RequestDelaySeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	for _, name := range domain.SortedModelNames(c.Models) {
		m := c.Models[name]
		if m.ModelID == "" {
			return fmt.Errorf("model '%s': model_id is required", name)
		}
		if !m.APIFamily.Known() {
			return fmt.Errorf("model '%s': unknown api_family '%s'", name, m.APIFamily)
		}
		if m.MaxTokens < 1 {
			return fmt.Errorf("model '%s': max_tokens must be >= 1, got %d", name, m.MaxTokens)
		}
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	return nil
}

func (c Config) Model(name string) (domain.ModelConfig, error) {
	m, ok := c.Models[name]
	if !ok {
		return domain.ModelConfig{}, fmt.Errorf("unknown model '%s' (available: %s)", name, strings.Join(domain.SortedModelNames(c.Models), ", "))
	}
	return m, nil
}

func (c Config) Credential(family domain.APIFamily) string {
	switch family {
	case domain.APIFamilyAnthropic:
		return c.AnthropicAPIKey
	case domain.APIFamilyGoogle:
		return c.GoogleAPIKey
	case domain.APIFamilyOpenRouter:
		return c.OpenRouterAPIKey
	case domain.APIFamilyAcademicCloud:
		return c.AcademicCloudAPIKey
	}
	return ""
}

var credentialEnv = map[domain.APIFamily]string{
	domain.APIFamilyAnthropic:     "ANTHROPIC_API_KEY",
	domain.APIFamilyGoogle:        "GOOGLE_API_KEY",
	domain.APIFamilyOpenRouter:    "OPENROUTER_API_KEY",
	domain.APIFamilyAcademicCloud: "ACADEMICCLOUD_API_KEY",
}

// RequireCredential is the pre-flight check run before any request is sent.
// The local Ollama endpoint needs no key.
func (c Config) RequireCredential(family domain.APIFamily) error {
	if !family.Known() {
		return fmt.Errorf("unknown api_family '%s'", family)
	}
	if family == domain.APIFamilyOllama {
		return nil
	}
	if c.Credential(family) == "" {
		return fmt.Errorf("%s is not set (required for api_family=%s)", credentialEnv[family], family)
	}
	return nil
}

func (c Config) PromptFilter(level domain.Level) string {
	return c.PromptFilters[level]
}

func (c Config) RequestDelay() time.Duration {
	if c.RequestDelaySeconds == nil {
		return defaultRequestDelaySeconds * time.Second
	}
	return time.Duration(*c.RequestDelaySeconds) * time.Second
}

func (c Config) SlackConfigured() bool {
	return c.SlackWebhookURL != "" || (c.SlackBotToken != "" && c.SlackChannelID != "")
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideOptionalInt(field **int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
