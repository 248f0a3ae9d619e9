package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ampiolux/lcs-gateway/internal/manager"
)

// agentSeed is one entry of a static agent-registry seed file.
type agentSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type agentsFile struct {
	Agents []agentSeed `yaml:"agents"`
}

// loadAgentsFile parses path and registers every entry on m. An entry
// missing id/host/port is rejected without registering any agent from the
// file.
func loadAgentsFile(path string, m *manager.Manager) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agents file: %w", err)
	}
	var f agentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse agents file: %w", err)
	}
	for i, a := range f.Agents {
		if a.ID == "" || a.Host == "" || a.Port == 0 {
			return fmt.Errorf("agents file entry %d: id, host and port are required", i)
		}
	}
	for _, a := range f.Agents {
		if err := m.AddAgent(a.ID, a.Host, a.Port, a.Name); err != nil {
			return fmt.Errorf("register agent %q: %w", a.ID, err)
		}
	}
	return nil
}
