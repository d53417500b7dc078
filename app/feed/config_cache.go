package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultGroupName = "rss"

// ConfigCache holds the source group definitions found in the sources
// directory, one YAML file per group.
type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		groupName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(groupName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "group", config.Name, "type", config.Type, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(fileName string) (*Config, error) {
	configFile := cc.getConfigFilePath(fileName)
	groupConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	if groupConfig.Name == "" {
		groupConfig.Name = fileName
	}
	if groupConfig.OPML != "" && !filepath.IsAbs(groupConfig.OPML) {
		if _, err := os.Stat(groupConfig.OPML); os.IsNotExist(err) {
			groupConfig.OPML = filepath.Join(cc.sourcesDir, groupConfig.OPML)
		}
	}

	if err := ValidateConfig(groupConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[groupConfig.Name] = groupConfig

	return groupConfig, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	groupConfig, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source group with name '%s' not found", name)
	}
	return groupConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns the enabled groups ordered by name.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	var enabled []*Config
	for _, v := range cc.cache {
		if v.Settings.Enabled {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].Name < enabled[j].Name
	})
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var groupConfig Config
	if err := yaml.Unmarshal(data, &groupConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&groupConfig)

	return &groupConfig, nil
}

// DefaultConfig is the single group used when no YAML groups exist.
func DefaultConfig(opmlPath string) *Config {
	config := &Config{
		Name: DefaultGroupName,
		OPML: opmlPath,
		Settings: ConfigSettings{
			Enabled: true,
		},
	}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Type == "" {
		config.Type = SourceTypeRSS
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = 30
	}
	if config.Settings.MaxItemsPerFeed == 0 {
		config.Settings.MaxItemsPerFeed = 2
	}
	if config.Settings.SubtitleMaxRunes == 0 {
		config.Settings.SubtitleMaxRunes = 100
	}
}

func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	requiredFields := map[string]string{
		"group name":        config.Name,
		"subscription list": config.OPML,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if config.Type != SourceTypeRSS {
		return fmt.Errorf("unsupported source type: %s", config.Type)
	}

	nonNegativeFields := map[string]int{
		"timeout":            config.Settings.Timeout,
		"max items per feed": config.Settings.MaxItemsPerFeed,
		"subtitle max runes": config.Settings.SubtitleMaxRunes,
	}
	if config.Settings.RequestIntervalMs != nil {
		nonNegativeFields["request interval"] = *config.Settings.RequestIntervalMs
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(fileName string) string {
	return filepath.Join(cc.sourcesDir, fileName+".yml")
}
