package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	LogLevel string `json:"log_level"`
	Service  struct {
		Endpoint            string  `json:"endpoint"`
		APIKey              string  `json:"api_key"`
		Deployment          string  `json:"deployment"`
		AgentName           string  `json:"agent_name"`
		Temperature         float32 `json:"temperature"`
		TopP                float32 `json:"top_p"`
		MaxCompletionTokens int     `json:"max_completion_tokens"`
		MaxPromptTokens     int     `json:"max_prompt_tokens"`
	} `json:"service"`
	Instructions struct {
		Template string `json:"template"`
	} `json:"instructions"`
	Data struct {
		DatabasePath    string   `json:"database_path"`
		CorpusFiles     []string `json:"corpus_files"`
		FontsZip        string   `json:"fonts_zip"`
		VectorStoreName string   `json:"vector_store_name"`
	} `json:"data"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LogLevel = "warn"
	cfg.Service.AgentName = "Contoso Sales Agent"
	cfg.Service.Temperature = 0.1
	cfg.Service.TopP = 0.1
	cfg.Service.MaxCompletionTokens = 10240
	cfg.Service.MaxPromptTokens = 20480
	cfg.Data.DatabasePath = "database/contoso-sales.db"
	cfg.Data.CorpusFiles = []string{"datasheet/contoso-tents-datasheet.pdf"}
	cfg.Data.FontsZip = "fonts/fonts.zip"
	cfg.Data.VectorStoreName = "Contoso Product Information Vector Store"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if endpoint := os.Getenv("PROJECT_ENDPOINT"); endpoint != "" {
		cfg.Service.Endpoint = endpoint
	}
	if apiKey := os.Getenv("PROJECT_API_KEY"); apiKey != "" {
		cfg.Service.APIKey = apiKey
	}
	if deployment := os.Getenv("MODEL_DEPLOYMENT_NAME"); deployment != "" {
		cfg.Service.Deployment = deployment
	}
	if template := os.Getenv("INSTRUCTIONS_TEMPLATE"); template != "" {
		cfg.Instructions.Template = template
	}

	return cfg, nil
}

// Save writes the config atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts the config to a nested map via its JSON representation.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the config as a flat dot-keyed map. When mask is true,
// secret values are masked for display.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-keyed value from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates one dot-keyed value in the config file at path. The raw
// value is JSON-parsed when possible so numbers and booleans round-trip;
// otherwise it is stored as a string.
func SetValue(path, key, raw string) error {
	cfg, err := Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	flat := Flatten(m)

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	flat[key] = value

	nested := Unflatten(flat)
	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	updated := &Config{}
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("apply config value: %w", err)
	}
	return Save(path, updated)
}
