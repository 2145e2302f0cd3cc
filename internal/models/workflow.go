// -----------------------------------------------------------------------
// Workflow configuration - flows, role map and note schemas
// Loaded from <CONFIG_DIR>/.workflow/*.yaml, read-only at runtime
// -----------------------------------------------------------------------

package models

import (
	"fmt"
)

// Flow is an ordered status sequence selected by tag match. An empty
// MatchTags makes the flow eligible as the default.
type Flow struct {
	Name      string   `yaml:"name" json:"name"`
	MatchTags []string `yaml:"match_tags,omitempty" json:"match_tags,omitempty"`
	Sequence  []string `yaml:"sequence" json:"sequence"`
	Terminal  []string `yaml:"terminal" json:"terminal"`
	Emergency []string `yaml:"emergency,omitempty" json:"emergency,omitempty"`
}

// IndexOf returns the position of a status in the flow sequence, -1 if absent.
func (f *Flow) IndexOf(status string) int {
	for i, s := range f.Sequence {
		if s == status {
			return i
		}
	}
	return -1
}

// IsTerminalStatus reports whether the status is one of the flow's terminals.
func (f *Flow) IsTerminalStatus(status string) bool {
	for _, s := range f.Terminal {
		if s == status {
			return true
		}
	}
	return false
}

// CascadeSettings controls upward cascade propagation.
type CascadeSettings struct {
	Enabled  bool `yaml:"enabled" json:"enabled"`
	MaxDepth int  `yaml:"max_depth" json:"max_depth"`
}

// WorkflowConfig is the parsed .workflow/config.yaml.
type WorkflowConfig struct {
	Flows       []Flow          `yaml:"flows" json:"flows"`
	StatusRoles map[string]Role `yaml:"status_roles" json:"status_roles"`
	AutoCascade CascadeSettings `yaml:"auto_cascade" json:"auto_cascade"`
}

// RoleFor maps a status string to its semantic role via the global table.
func (c *WorkflowConfig) RoleFor(status string) (Role, bool) {
	role, ok := c.StatusRoles[status]
	return role, ok
}

// Validate enforces the config invariants: every status of every flow is in
// the role map, every flow declares at least one terminal status, and the
// cancelled status used by the cancel trigger maps to role terminal.
func (c *WorkflowConfig) Validate() error {
	if len(c.Flows) == 0 {
		return fmt.Errorf("workflow config declares no flows")
	}
	for name, role := range c.StatusRoles {
		if !role.IsValid() {
			return fmt.Errorf("status %q maps to unknown role %q", name, role)
		}
	}
	for _, flow := range c.Flows {
		if flow.Name == "" {
			return fmt.Errorf("flow with empty name")
		}
		if len(flow.Sequence) == 0 {
			return fmt.Errorf("flow %q has an empty sequence", flow.Name)
		}
		if len(flow.Terminal) == 0 {
			return fmt.Errorf("flow %q declares no terminal status", flow.Name)
		}
		for _, status := range flow.Sequence {
			if _, ok := c.StatusRoles[status]; !ok {
				return fmt.Errorf("flow %q status %q missing from status_roles", flow.Name, status)
			}
		}
		for _, status := range flow.Terminal {
			if role, ok := c.StatusRoles[status]; !ok || role != RoleTerminal {
				return fmt.Errorf("flow %q terminal status %q must map to role terminal", flow.Name, status)
			}
		}
		for _, status := range flow.Emergency {
			if role, ok := c.StatusRoles[status]; !ok || role != RoleBlocked {
				return fmt.Errorf("flow %q emergency status %q must map to role blocked", flow.Name, status)
			}
		}
	}
	if role, ok := c.StatusRoles[StatusCancelled]; !ok || role != RoleTerminal {
		return fmt.Errorf("status_roles must map %q to role terminal", StatusCancelled)
	}
	return nil
}

// StatusCancelled is the always-available terminal status reached by the
// cancel trigger. It bypasses gates and dependency prerequisites.
const StatusCancelled = "cancelled"

// StatusOnHold is the emergency status targeted by the hold trigger.
const StatusOnHold = "on-hold"

// SchemaEntry declares one expected note for items matching a schema.
type SchemaEntry struct {
	Key         string `yaml:"key" json:"key"`
	Phase       Role   `yaml:"phase" json:"phase"`
	Required    bool   `yaml:"required" json:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// NoteSchema matches items whose tag set contains all MatchTags.
type NoteSchema struct {
	MatchTags []string      `yaml:"match_tags" json:"match_tags"`
	Entries   []SchemaEntry `yaml:"entries" json:"entries"`
}

// SchemaConfig is the parsed .workflow/schemas.yaml.
type SchemaConfig struct {
	Schemas []NoteSchema `yaml:"schemas" json:"schemas"`
}

// Validate checks schema entries for valid phases and non-empty keys.
func (c *SchemaConfig) Validate() error {
	for i, schema := range c.Schemas {
		for _, entry := range schema.Entries {
			if entry.Key == "" {
				return fmt.Errorf("schema %d has an entry with empty key", i)
			}
			if !entry.Phase.IsValid() {
				return fmt.Errorf("schema %d entry %q has invalid phase %q", i, entry.Key, entry.Phase)
			}
		}
	}
	return nil
}

// ExpectedNote is a schema entry augmented with whether the note exists on
// a concrete item. Used to enrich create/get responses.
type ExpectedNote struct {
	SchemaEntry
	Exists bool `json:"exists"`
}
