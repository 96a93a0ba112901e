package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"samplemind/utils"

	"gopkg.in/yaml.v3"
)

// Default models pinned by each adapter.
const (
	GeminiModel    = "gemini-2.5-flash"
	AnthropicModel = "claude-sonnet-4-20250514"
	OpenAIModel    = "gpt-4o"
)

// DefaultProviderConfigs returns the built-in provider table: gemini is
// primary, anthropic the specialist and openai the fallback.
func DefaultProviderConfigs() []ProviderConfig {
	return []ProviderConfig{
		{
			Provider:             ProviderGemini,
			Enabled:              true,
			Priority:             1,
			MaxRequestsPerMinute: 60,
			CostPerToken:         0.000015,
			Features:             []Kind{KindGenre, KindHarmonic, KindRhythmic, KindComprehensive},
		},
		{
			Provider:             ProviderAnthropic,
			Enabled:              true,
			Priority:             2,
			MaxRequestsPerMinute: 50,
			CostPerToken:         0.009,
			Features:             []Kind{KindCoaching, KindCreative, KindDAWIntegration, KindMixing, KindArrangement},
		},
		{
			Provider:             ProviderOpenAI,
			Enabled:              true,
			Priority:             3,
			MaxRequestsPerMinute: 60,
			CostPerToken:         0.00003,
			Features:             []Kind{KindQuick, KindLyrics},
		},
	}
}

type providerFile struct {
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadProviderConfigs reads the provider table at path and merges it over
// the defaults by provider id. A missing file yields the defaults.
func LoadProviderConfigs(path string) ([]ProviderConfig, error) {
	cfgs := DefaultProviderConfigs()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfgs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading provider config: %w", err)
	}

	var file providerFile
	if isYAML(path) {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding provider config %s: %w", path, err)
	}

	for _, loaded := range file.Providers {
		id, err := ParseProvider(string(loaded.Provider))
		if err != nil {
			return nil, err
		}
		loaded.Provider = id
		idx := slices.IndexFunc(cfgs, func(c ProviderConfig) bool { return c.Provider == id })
		if idx < 0 {
			cfgs = append(cfgs, loaded)
			continue
		}
		cfgs[idx] = loaded
	}
	return cfgs, nil
}

// SaveProviderConfigs writes the provider table to path as JSON, or YAML
// for .yaml and .yml paths. Credentials are never written.
func SaveProviderConfigs(path string, cfgs []ProviderConfig) error {
	file := providerFile{Providers: make([]ProviderConfig, len(cfgs))}
	for i, c := range cfgs {
		c.APIKey = ""
		file.Providers[i] = c
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(file)
	} else {
		data, err = json.MarshalIndent(file, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("error encoding provider config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing provider config: %w", err)
	}
	return os.Rename(tmp, path)
}
