package config

// Section names understood by the tools.
const (
	SectionAdaptiveMesh = "adaptive_mesh"
	SectionLog          = "log"
	SectionHistory      = "history"
	SectionServer       = "server"
)

// LogSettings mirrors the [log] section.
type LogSettings struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// ToolSettings collects the sections shared by the CLI and the server.
// The [adaptive_mesh] offsets are read per run through a settings
// provider and are not part of this struct.
type ToolSettings struct {
	Log         LogSettings
	HistoryPath string
	ServerAddr  string
	GCodesDir   string
}

// DefaultToolSettings returns the values used when a section or option
// is absent.
func DefaultToolSettings() ToolSettings {
	return ToolSettings{
		Log: LogSettings{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		},
		ServerAddr: ":7125",
		GCodesDir:  "gcodes",
	}
}

// ToolSettings reads the [log], [history] and [server] sections. A nil
// Config yields the defaults.
func (c *Config) ToolSettings() (ToolSettings, error) {
	ts := DefaultToolSettings()
	if c == nil {
		return ts, nil
	}

	var err error
	logSec := c.Section(SectionLog)
	if ts.Log.Level, err = logSec.GetChoice("level", []string{"debug", "info", "warn", "warning", "error"}, ts.Log.Level); err != nil {
		return ts, err
	}
	if ts.Log.Format, err = logSec.GetChoice("format", []string{"text", "json"}, ts.Log.Format); err != nil {
		return ts, err
	}
	if ts.Log.File, err = logSec.Get("file", ts.Log.File); err != nil {
		return ts, err
	}
	if ts.Log.MaxSize, err = logSec.GetIntMin("max_size", 1, ts.Log.MaxSize); err != nil {
		return ts, err
	}
	if ts.Log.MaxBackups, err = logSec.GetIntMin("max_backups", 0, ts.Log.MaxBackups); err != nil {
		return ts, err
	}
	if ts.Log.MaxAge, err = logSec.GetIntMin("max_age", 0, ts.Log.MaxAge); err != nil {
		return ts, err
	}
	if ts.Log.Compress, err = logSec.GetBool("compress", ts.Log.Compress); err != nil {
		return ts, err
	}

	if ts.HistoryPath, err = c.Section(SectionHistory).Get("path", ts.HistoryPath); err != nil {
		return ts, err
	}

	srv := c.Section(SectionServer)
	if ts.ServerAddr, err = srv.Get("addr", ts.ServerAddr); err != nil {
		return ts, err
	}
	if ts.GCodesDir, err = srv.Get("gcodes", ts.GCodesDir); err != nil {
		return ts, err
	}
	return ts, nil
}
