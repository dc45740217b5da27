package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dyluth/ldew/pkg/clinical"
	"gopkg.in/yaml.v3"
)

var (
	// formNamePattern matches host instrument names
	formNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

	// eventIDPattern matches event identifiers (unique names or numeric IDs)
	eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ProjectConfig represents the top-level project.yml configuration
type ProjectConfig struct {
	Version   string      `yaml:"version" toml:"version"`
	ProjectID string      `yaml:"project_id" toml:"project_id"`
	BaseURL   string      `yaml:"base_url,omitempty" toml:"base_url,omitempty"` // Host URL prefix for redirects
	Arms      []ArmConfig `yaml:"arms" toml:"arms"`

	Exceptions           []string `yaml:"exceptions,omitempty" toml:"exceptions,omitempty"`
	ExceptionsGateChain  bool     `yaml:"exceptions_gate_chain,omitempty" toml:"exceptions_gate_chain,omitempty"` // Exception forms still pass their own status down the chain
	HideNextRecordButton bool     `yaml:"hide_next_record_button,omitempty" toml:"hide_next_record_button,omitempty"`
	RolesToLock          []string `yaml:"roles_to_lock,omitempty" toml:"roles_to_lock,omitempty"`

	FDEC             *FDECConfig             `yaml:"fdec,omitempty" toml:"fdec,omitempty"`
	CopyValues       []CopyValue             `yaml:"copy_values,omitempty" toml:"copy_values,omitempty"`
	ConflictResolver *ConflictResolverConfig `yaml:"conflict_resolver,omitempty" toml:"conflict_resolver,omitempty"`

	arms map[string]*clinical.Arm
}

// ArmConfig declares one arm and its events in timeline order
type ArmConfig struct {
	Name   string        `yaml:"name" toml:"name"`
	Events []EventConfig `yaml:"events" toml:"events"`
}

// EventConfig declares one event and its forms in gating order
type EventConfig struct {
	ID    string   `yaml:"id" toml:"id"`
	Name  string   `yaml:"name,omitempty" toml:"name,omitempty"`
	Forms []string `yaml:"forms" toml:"forms"`
}

// FDECConfig controls required-field enforcement
type FDECConfig struct {
	Enabled        bool      `yaml:"enabled" toml:"enabled"`
	BypassStatuses *[]string `yaml:"bypass_statuses,omitempty" toml:"bypass_statuses,omitempty"` // nil = default (incomplete, unverified, empty)
}

// CopyValue maps a trigger form to the field copied from the previous event
type CopyValue struct {
	Form  string `yaml:"form" toml:"form"`
	Field string `yaml:"field" toml:"field"`
}

// ConflictResolverConfig enables merging denials published by another module
type ConflictResolverConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Validate performs strict validation on the configuration and applies defaults
func (c *ProjectConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: project_id
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}

	// Required: at least one arm
	if len(c.Arms) == 0 {
		return fmt.Errorf("no arms defined")
	}

	declared := make(map[string]bool)
	c.arms = make(map[string]*clinical.Arm, len(c.Arms))
	for i := range c.Arms {
		arm, err := c.Arms[i].build()
		if err != nil {
			return err
		}
		if _, dup := c.arms[arm.Name]; dup {
			return fmt.Errorf("duplicate arm '%s'", arm.Name)
		}
		c.arms[arm.Name] = arm
		for _, f := range arm.Forms() {
			declared[f] = true
		}
	}

	for _, form := range c.Exceptions {
		if !declared[form] {
			return fmt.Errorf("exception form '%s' is not assigned to any event", form)
		}
	}

	copyForms := make(map[string]bool)
	for i, cv := range c.CopyValues {
		if !declared[cv.Form] {
			return fmt.Errorf("copy_values[%d]: form '%s' is not assigned to any event", i, cv.Form)
		}
		if cv.Field == "" {
			return fmt.Errorf("copy_values[%d]: field is required", i)
		}
		if copyForms[cv.Form] {
			return fmt.Errorf("copy_values[%d]: form '%s' is mapped more than once", i, cv.Form)
		}
		copyForms[cv.Form] = true
	}

	if c.FDEC != nil && c.FDEC.BypassStatuses != nil {
		for _, s := range *c.FDEC.BypassStatuses {
			st := clinical.CompletionStatus(s)
			if err := st.Validate(); err != nil {
				return fmt.Errorf("fdec.bypass_statuses: %w", err)
			}
			if st == clinical.StatusComplete {
				return fmt.Errorf("fdec.bypass_statuses: complete status cannot bypass required fields")
			}
		}
	}

	return nil
}

// build validates an arm declaration and converts it to the domain type
func (a *ArmConfig) build() (*clinical.Arm, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("arm name is required")
	}
	if len(a.Events) == 0 {
		return nil, fmt.Errorf("arm '%s': no events defined", a.Name)
	}

	arm := &clinical.Arm{Name: a.Name, Events: make([]clinical.Event, 0, len(a.Events))}
	seenEvents := make(map[string]bool)
	for _, ev := range a.Events {
		if !eventIDPattern.MatchString(ev.ID) {
			return nil, fmt.Errorf("arm '%s': invalid event id '%s' (letters, digits, '_' and '-' only)", a.Name, ev.ID)
		}
		if seenEvents[ev.ID] {
			return nil, fmt.Errorf("arm '%s': duplicate event '%s'", a.Name, ev.ID)
		}
		seenEvents[ev.ID] = true

		seenForms := make(map[string]bool)
		for _, f := range ev.Forms {
			if !formNamePattern.MatchString(f) {
				return nil, fmt.Errorf("arm '%s' event '%s': invalid form name '%s'", a.Name, ev.ID, f)
			}
			if seenForms[f] {
				return nil, fmt.Errorf("arm '%s' event '%s': form '%s' listed twice", a.Name, ev.ID, f)
			}
			seenForms[f] = true
		}

		forms := make([]string, len(ev.Forms))
		copy(forms, ev.Forms)
		arm.Events = append(arm.Events, clinical.Event{ID: ev.ID, Name: ev.Name, Forms: forms})
	}

	return arm, nil
}

// Arm returns the validated arm with the given name. An empty name selects
// the first declared arm, matching the host's default arm.
func (c *ProjectConfig) Arm(name string) (*clinical.Arm, error) {
	if c.arms == nil {
		return nil, fmt.Errorf("configuration has not been validated")
	}
	if name == "" {
		name = c.Arms[0].Name
	}
	arm, ok := c.arms[name]
	if !ok {
		return nil, fmt.Errorf("arm '%s' is not configured", name)
	}
	return arm, nil
}

// ExceptionSet returns the forms exempt from sequential gating
func (c *ProjectConfig) ExceptionSet() clinical.FormSet {
	return clinical.NewFormSet(c.Exceptions...)
}

// CopyMapping returns trigger form -> source field
func (c *ProjectConfig) CopyMapping() map[string]string {
	m := make(map[string]string, len(c.CopyValues))
	for _, cv := range c.CopyValues {
		m[cv.Form] = cv.Field
	}
	return m
}

// FDECEnabled reports whether required-field enforcement is on
func (c *ProjectConfig) FDECEnabled() bool {
	return c.FDEC != nil && c.FDEC.Enabled
}

// BypassStatuses returns the statuses that skip required-field enforcement.
// Defaults to incomplete, unverified and empty.
func (c *ProjectConfig) BypassStatuses() []clinical.CompletionStatus {
	if c.FDEC == nil || c.FDEC.BypassStatuses == nil {
		return []clinical.CompletionStatus{clinical.StatusIncomplete, clinical.StatusUnverified, clinical.StatusEmpty}
	}
	out := make([]clinical.CompletionStatus, 0, len(*c.FDEC.BypassStatuses))
	for _, s := range *c.FDEC.BypassStatuses {
		out = append(out, clinical.CompletionStatus(s))
	}
	return out
}

// ConflictResolverEnabled reports whether external denials are merged
func (c *ProjectConfig) ConflictResolverEnabled() bool {
	return c.ConflictResolver != nil && c.ConflictResolver.Enabled
}

// Parse decodes and validates project.yml contents
func Parse(data []byte) (*ProjectConfig, error) {
	var config ProjectConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ParseTOML decodes and validates the TOML form of the configuration
func ParseTOML(data []byte) (*ProjectConfig, error) {
	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads and validates the configuration from the specified path.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}
