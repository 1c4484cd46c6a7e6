package agent

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/rica/internal/adapter/agentclient"
	"github.com/xiaot623/rica/internal/adapter/llm"
	"github.com/xiaot623/rica/internal/domain"
	"github.com/xiaot623/rica/internal/tools"
)

// Default agent ids used when no agents file is configured.
const (
	GeneralAgentID  = "general"
	FunctionAgentID = "functions"
)

// Definitions is the agents file layout.
type Definitions struct {
	Default string       `yaml:"default"`
	Agents  []Definition `yaml:"agents"`
}

// Definition describes one agent in the agents file.
type Definition struct {
	domain.AgentDescriptor `yaml:",inline"`

	// llm
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`

	// function
	Actions []ActionDefinition `yaml:"actions"`
	Denied  []string           `yaml:"denied"`

	// custom
	Endpoint string `yaml:"endpoint"`
}

// ActionDefinition declares a shell command the function agent may run.
type ActionDefinition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Command     []string `yaml:"command"`
}

// Dependencies are the collaborators Build wires into agents.
type Dependencies struct {
	LLM          llm.LLMClient
	Model        string
	Actions      *tools.Registry
	Policy       Policy
	RemoteClient *agentclient.Client
	Logger       zerolog.Logger
}

// DefaultDefinitions returns the general chat agent plus the function
// agent over the built-in actions.
func DefaultDefinitions() *Definitions {
	return &Definitions{
		Default: GeneralAgentID,
		Agents: []Definition{
			{AgentDescriptor: domain.AgentDescriptor{
				ID:           GeneralAgentID,
				Name:         "General Chat",
				Kind:         domain.AgentKindLLM,
				Capabilities: []string{domain.CapabilityGeneralChat},
			}},
			{AgentDescriptor: domain.AgentDescriptor{
				ID:           FunctionAgentID,
				Name:         "System Functions",
				Kind:         domain.AgentKindFunction,
				Capabilities: []string{domain.CapabilityFunctionCall},
				Priority:     10,
			}},
		},
	}
}

// LoadDefinitions reads an agents file. An empty path yields the defaults.
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse agents file: %w", err)
	}
	if len(defs.Agents) == 0 {
		return nil, fmt.Errorf("agents file %s defines no agents", path)
	}
	return &defs, nil
}

// Build constructs a registry from defs in file order.
func Build(defs *Definitions, deps Dependencies) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range defs.Agents {
		a, desc, err := buildAgent(def, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.ID, err)
		}
		if err := reg.Register(desc, a); err != nil {
			return nil, err
		}
		deps.Logger.Debug().Str("agent_id", desc.ID).Str("kind", string(desc.Kind)).
			Strs("capabilities", desc.Capabilities).Int("priority", desc.Priority).Msg("agent registered")
	}
	if defs.Default != "" {
		if err := reg.SetDefault(defs.Default); err != nil {
			return nil, fmt.Errorf("default agent: %w", err)
		}
	}
	return reg, nil
}

func buildAgent(def Definition, deps Dependencies) (Agent, domain.AgentDescriptor, error) {
	desc := def.AgentDescriptor
	switch desc.Kind {
	case domain.AgentKindLLM:
		if deps.LLM == nil {
			return nil, desc, fmt.Errorf("no LLM client configured")
		}
		model := def.Model
		if model == "" {
			model = deps.Model
		}
		return NewLLMAgent(deps.LLM, model, def.SystemPrompt), desc, nil

	case domain.AgentKindFunction:
		actions := deps.Actions
		if actions == nil {
			actions = tools.DefaultRegistry
		}
		if len(def.Actions) > 0 {
			actions = actions.Clone()
			for _, ad := range def.Actions {
				if err := actions.Register(tools.Action{
					Name:        ad.Name,
					Description: ad.Description,
					Keywords:    ad.Keywords,
					Exec:        tools.CommandExecutor(ad.Command),
				}); err != nil {
					return nil, desc, err
				}
			}
		}
		fa := NewFunctionAgent(desc.ID, actions, deps.Policy, def.Denied)
		if len(desc.Keywords) == 0 {
			desc.Keywords = fa.Keywords()
		}
		return fa, desc, nil

	case domain.AgentKindCustom:
		if def.Endpoint == "" {
			return nil, desc, fmt.Errorf("custom agent requires an endpoint")
		}
		client := deps.RemoteClient
		if client == nil {
			client = agentclient.NewClient(5 * time.Minute)
		}
		return NewRemoteAgent(desc.ID, def.Endpoint, client), desc, nil
	}
	return nil, desc, fmt.Errorf("unknown agent kind %q", desc.Kind)
}
