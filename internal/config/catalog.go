package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/spf13/viper"
)

//go:embed agents.json
var defaultCatalog []byte

// Catalog is the declarative agent and tool configuration.
type Catalog struct {
	DefaultAgent string                   `mapstructure:"defaultagent"`
	Agents       []domain.AgentDefinition `mapstructure:"agents"`
	Tools        []domain.ToolDefinition  `mapstructure:"tools"`
}

// LoadCatalog reads the agent catalog from path.
// An empty path loads the catalog embedded in the binary.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()

	if path == "" {
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(defaultCatalog)); err != nil {
			return nil, fmt.Errorf("failed to read embedded catalog: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("agents config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		v.SetConfigType(catalogType(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read agents config: %w", err)
		}
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agents config: %w", err)
	}
	return &cat, nil
}

func catalogType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}
