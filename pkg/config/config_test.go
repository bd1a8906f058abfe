package config

import (
	"os"
	"path/filepath"
	"testing"

	hosterrors "adaptive-mesh/pkg/errors"
)

const sampleINI = `
# adaptive mesh tool config
[adaptive_mesh]
x_offset: 5
y_offset = -3   ; shift toward the front

[log]
level: debug
compress: yes

[server]
addr: :8080
`

func TestLoadString(t *testing.T) {
	cfg, err := LoadString(sampleINI)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !cfg.HasSection("adaptive_mesh") {
		t.Error("expected [adaptive_mesh] section to exist")
	}
	if cfg.HasSection("history") {
		t.Error("expected [history] section to not exist")
	}
	names := cfg.SectionNames()
	if len(names) != 3 || names[0] != "adaptive_mesh" || names[2] != "server" {
		t.Errorf("unexpected section order: %v", names)
	}

	mesh, err := cfg.GetSection("adaptive_mesh")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}
	x, err := mesh.GetInt("x_offset")
	if err != nil || x != 5 {
		t.Errorf("x_offset = %d, %v; want 5", x, err)
	}
	y, err := mesh.GetInt("Y_OFFSET")
	if err != nil || y != -3 {
		t.Errorf("y_offset = %d, %v; want -3", y, err)
	}

	addr, err := cfg.Section("server").Get("addr")
	if err != nil || addr != ":8080" {
		t.Errorf("addr = %q, %v", addr, err)
	}
}

func TestSectionErrors(t *testing.T) {
	cfg, err := LoadString("[adaptive_mesh]\nx_offset: abc\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec := cfg.Section("adaptive_mesh")

	_, err = sec.GetInt("x_offset")
	if !hosterrors.Is(err, hosterrors.ErrConfigType) {
		t.Errorf("expected CONFIG_TYPE error, got %v", err)
	}

	_, err = sec.GetInt("y_offset")
	if !hosterrors.Is(err, hosterrors.ErrConfigOption) {
		t.Errorf("expected CONFIG_OPTION error for missing option, got %v", err)
	}

	v, err := sec.GetInt("y_offset", 7)
	if err != nil || v != 7 {
		t.Errorf("fallback not used: %d, %v", v, err)
	}

	_, err = cfg.GetSection("server")
	if !hosterrors.Is(err, hosterrors.ErrConfigSection) {
		t.Errorf("expected CONFIG_SECTION error, got %v", err)
	}
	if got := cfg.Section("server"); got == nil || got.HasOption("addr") {
		t.Error("Section should return an empty section for a missing name")
	}
}

func TestGetBoolAndChoice(t *testing.T) {
	cfg, _ := LoadString("[t]\na: on\nb: 0\nc: maybe\nfmt: JSON\n")
	sec := cfg.Section("t")

	if v, err := sec.GetBool("a"); err != nil || !v {
		t.Errorf("a = %v, %v", v, err)
	}
	if v, err := sec.GetBool("b"); err != nil || v {
		t.Errorf("b = %v, %v", v, err)
	}
	if _, err := sec.GetBool("c"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if v, err := sec.GetChoice("fmt", []string{"text", "json"}); err != nil || v != "json" {
		t.Errorf("fmt = %q, %v", v, err)
	}
	if _, err := sec.GetChoice("c", []string{"text", "json"}); err == nil {
		t.Error("expected error for invalid choice")
	}
}

func TestUnusedOptions(t *testing.T) {
	cfg, _ := LoadString("[a]\nused: 1\nunused: 2\n[b]\nother: 3\n")
	cfg.Section("a").Get("used")

	unused := cfg.UnusedOptions()
	if len(unused) != 2 || unused[0] != "a.unused" || unused[1] != "b.other" {
		t.Errorf("unexpected unused options: %v", unused)
	}
}

func TestSavedConfigLines(t *testing.T) {
	cfg, err := LoadString("[adaptive_mesh]\nx_offset: 1\n#*# [adaptive_mesh]\n#*# x_offset: 9\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	if v, _ := cfg.Section("adaptive_mesh").GetInt("x_offset"); v != 9 {
		t.Errorf("saved config should override, got %d", v)
	}
}

func TestEmptySectionHeader(t *testing.T) {
	if _, err := LoadString("[]\nkey: value\n"); err == nil {
		t.Error("expected error for empty section header")
	}
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mesh.cfg", "[adaptive_mesh]\nx_offset: 4\n")
	main := writeFile(t, dir, "tool.cfg", "[include mesh.cfg]\n[history]\npath: runs.db\n")

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v, _ := cfg.Section("adaptive_mesh").GetInt("x_offset"); v != 4 {
		t.Errorf("included option not loaded, got %d", v)
	}
	if cfg.Source() != main {
		t.Errorf("Source() = %q", cfg.Source())
	}
}

func TestLoadRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cfg", "[include b.cfg]\n")
	writeFile(t, dir, "b.cfg", "[include a.cfg]\n")

	if _, err := Load(filepath.Join(dir, "a.cfg")); err == nil {
		t.Error("expected recursive include error")
	}
}

func TestLoadMissingInclude(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "tool.cfg", "[include missing.cfg]\n")
	if _, err := Load(main); err == nil {
		t.Error("expected error for missing include")
	}
	// Globs may match nothing.
	main = writeFile(t, dir, "glob.cfg", "[include extra/*.cfg]\n")
	if _, err := Load(main); err != nil {
		t.Errorf("empty glob should not fail: %v", err)
	}
}

func TestToolSettings(t *testing.T) {
	cfg, err := LoadString(sampleINI)
	if err != nil {
		t.Fatal(err)
	}
	ts, err := cfg.ToolSettings()
	if err != nil {
		t.Fatalf("ToolSettings failed: %v", err)
	}
	if ts.Log.Level != "debug" || !ts.Log.Compress || ts.Log.Format != "text" {
		t.Errorf("unexpected log settings: %+v", ts.Log)
	}
	if ts.ServerAddr != ":8080" || ts.GCodesDir != "gcodes" {
		t.Errorf("unexpected server settings: %+v", ts)
	}

	var nilCfg *Config
	ts, err = nilCfg.ToolSettings()
	if err != nil || ts != DefaultToolSettings() {
		t.Errorf("nil config should yield defaults: %+v, %v", ts, err)
	}

	bad, _ := LoadString("[log]\nmax_size: 0\n")
	if _, err := bad.ToolSettings(); err == nil {
		t.Error("expected error for max_size below minimum")
	}
}
