// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the agentchat configuration from YAML
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/agentchat/pkg/a2a"
	"github.com/kadirpekel/agentchat/pkg/httpclient"
)

// Config is the root agentchat configuration.
type Config struct {
	// Logger configures structured logging output.
	Logger LoggerConfig `yaml:"logger,omitempty"`

	// Database configures the conversation store.
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Stream configures turn streaming and reconnection.
	Stream StreamConfig `yaml:"stream,omitempty"`

	// Agents lists the remote A2A agents available to chat with.
	Agents []AgentConfig `yaml:"agents"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
}

// StreamConfig controls streaming and reconnection behavior.
type StreamConfig struct {
	// MaxResubscribeAttempts caps consecutive fruitless reconnection
	// attempts after a dropped stream.
	MaxResubscribeAttempts int `yaml:"max_resubscribe_attempts,omitempty"`

	// RequestTimeout applies to non-streaming HTTP requests.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// AgentConfig describes one remote A2A agent.
type AgentConfig struct {
	// ID is the local identifier used to select the agent and key its
	// conversations.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to ID.
	Name string `yaml:"name,omitempty"`

	// URL is the agent's base URL.
	URL string `yaml:"url,omitempty"`

	// CardURL is the agent card location. Defaults to the well-known path
	// under URL.
	CardURL string `yaml:"card_url,omitempty"`

	// Model is an optional model hint forwarded with each message.
	Model string `yaml:"model,omitempty"`

	Auth *AuthConfig           `yaml:"auth,omitempty"`
	TLS  *httpclient.TLSConfig `yaml:"tls,omitempty"`
}

// AuthConfig carries agent credentials.
type AuthConfig struct {
	Type         string `yaml:"type"` // "bearer" or "apiKey"
	Token        string `yaml:"token,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	APIKeyHeader string `yaml:"api_key_header,omitempty"`
}

// Credentials converts the config into protocol client credentials.
func (a *AuthConfig) Credentials() *a2a.AuthCredentials {
	if a == nil {
		return nil
	}
	return &a2a.AuthCredentials{
		Type:         a.Type,
		Token:        a.Token,
		APIKey:       a.APIKey,
		APIKeyHeader: a.APIKeyHeader,
	}
}

// SetDefaults applies defaults across all sections.
func (c *Config) SetDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Database == "" {
		c.Database.Database = "agentchat.db"
	}
	c.Database.SetDefaults()
	if c.Stream.MaxResubscribeAttempts == 0 {
		c.Stream.MaxResubscribeAttempts = 5
	}
	if c.Stream.RequestTimeout == 0 {
		c.Stream.RequestTimeout = 60 * time.Second
	}
	for i := range c.Agents {
		if c.Agents[i].Name == "" {
			c.Agents[i].Name = c.Agents[i].ID
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Stream.MaxResubscribeAttempts < 0 {
		return fmt.Errorf("stream: max_resubscribe_attempts must be non-negative")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, agent := range c.Agents {
		if agent.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[agent.ID] {
			return fmt.Errorf("agents[%d]: duplicate agent id %q", i, agent.ID)
		}
		seen[agent.ID] = true
		if agent.URL == "" && agent.CardURL == "" {
			return fmt.Errorf("agents[%d]: one of url or card_url is required", i)
		}
	}
	return nil
}

// Agent returns the agent config with the given id, or nil.
func (c *Config) Agent(id string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// Load reads, expands and validates a config file. Environment files
// (.env.local, .env) are loaded first so references in the YAML resolve.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes config from raw YAML with env expansion applied.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded, err := yaml.Marshal(ExpandEnvVarsInData(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
