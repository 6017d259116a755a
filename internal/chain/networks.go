package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/chains.yaml.
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single network endpoint plus the
// Chainlink aggregator feeds known on it.
type NetworkDefinition struct {
	RPCURL      string            `yaml:"rpc_url"`
	ChainID     uint64            `yaml:"chain_id"`
	Description string            `yaml:"description"`
	Feeds       map[string]string `yaml:"feeds"`
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
// An empty path yields an empty registry rather than an error.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}

// Lookup returns the definition for a named network.
func (d NetworkDefinitions) Lookup(name string) (NetworkDefinition, bool) {
	def, ok := d.Networks[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}
