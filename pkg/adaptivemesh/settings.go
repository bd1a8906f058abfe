package adaptivemesh

import (
	_ "embed"
	"encoding/json"
)

// Setting keys exposed to the host.
const (
	SettingXOffset = "x_offset"
	SettingYOffset = "y_offset"
)

// SettingsProvider supplies the user-tunable offsets. Implementations may
// fail; callers fall back to zero offsets through ResolveOffsets.
type SettingsProvider interface {
	Offsets() (Offsets, error)
}

// StaticSettings is a SettingsProvider with fixed values.
type StaticSettings Offsets

// Offsets implements SettingsProvider.
func (s StaticSettings) Offsets() (Offsets, error) {
	return Offsets(s), nil
}

// ResolveOffsets asks p for offsets and returns zero offsets when p is nil
// or fails. The error is returned alongside for logging only.
func ResolveOffsets(p SettingsProvider) (Offsets, error) {
	if p == nil {
		return Offsets{}, nil
	}
	off, err := p.Offsets()
	if err != nil {
		return Offsets{}, err
	}
	return off, nil
}

//go:embed settings.json
var settingsDefinition []byte

// SettingDefinition describes one user setting.
type SettingDefinition struct {
	Label        string `json:"label"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	DefaultValue int    `json:"default_value"`
}

// SettingsDefinition is the settings declaration handed to hosts.
type SettingsDefinition struct {
	Name     string                       `json:"name"`
	Key      string                       `json:"key"`
	Metadata map[string]any               `json:"metadata"`
	Version  int                          `json:"version"`
	Settings map[string]SettingDefinition `json:"settings"`
}

// Definition returns the settings declaration.
func Definition() SettingsDefinition {
	var def SettingsDefinition
	// The document is embedded and covered by tests.
	if err := json.Unmarshal(settingsDefinition, &def); err != nil {
		panic(err)
	}
	return def
}

// DefinitionJSON returns the raw settings declaration document.
func DefinitionJSON() []byte {
	out := make([]byte, len(settingsDefinition))
	copy(out, settingsDefinition)
	return out
}
