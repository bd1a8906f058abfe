// Package postprocess runs the adaptive mesh filter over G-code files
// and streams and reports each run.
package postprocess

import (
	"adaptive-mesh/pkg/adaptivemesh"
	"adaptive-mesh/pkg/config"
	hosterrors "adaptive-mesh/pkg/errors"
)

// ConfigSettings reads offsets from the [adaptive_mesh] section of a
// loaded configuration. Missing options default to 0.
type ConfigSettings struct {
	Config *config.Config
}

// Offsets implements adaptivemesh.SettingsProvider.
func (s ConfigSettings) Offsets() (adaptivemesh.Offsets, error) {
	if s.Config == nil {
		return adaptivemesh.Offsets{}, nil
	}
	sec := s.Config.Section(config.SectionAdaptiveMesh)
	x, err := sec.GetInt(adaptivemesh.SettingXOffset, 0)
	if err != nil {
		return adaptivemesh.Offsets{}, hosterrors.SettingsError(s.source(), err)
	}
	y, err := sec.GetInt(adaptivemesh.SettingYOffset, 0)
	if err != nil {
		return adaptivemesh.Offsets{}, hosterrors.SettingsError(s.source(), err)
	}
	return adaptivemesh.Offsets{X: x, Y: y}, nil
}

func (s ConfigSettings) source() string {
	if src := s.Config.Source(); src != "" {
		return src
	}
	return "config"
}

// Overrides replaces individual offsets from a base provider. A nil
// field keeps the base value. When the base fails and both fields are
// set the overrides are used as is.
type Overrides struct {
	Base adaptivemesh.SettingsProvider
	X    *int
	Y    *int
}

// Offsets implements adaptivemesh.SettingsProvider.
func (o Overrides) Offsets() (adaptivemesh.Offsets, error) {
	var off adaptivemesh.Offsets
	if o.Base != nil && (o.X == nil || o.Y == nil) {
		var err error
		off, err = o.Base.Offsets()
		if err != nil {
			return adaptivemesh.Offsets{}, err
		}
	}
	if o.X != nil {
		off.X = *o.X
	}
	if o.Y != nil {
		off.Y = *o.Y
	}
	return off, nil
}
