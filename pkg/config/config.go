package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config holds parsed sections in file order.
type Config struct {
	mu       sync.RWMutex
	source   string
	sections map[string]*Section
	order    []string
}

// New creates a new empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads a configuration file. Files ending in .yaml or .yml are
// parsed as YAML and validated against the embedded schema; anything
// else is read as a Klipper-style INI file with [include] support.
func Load(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	}

	c := New()
	c.source = path
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses INI configuration text. Include directives are
// not followed.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "<string>", "", nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Source returns the path the config was loaded from, if any.
func (c *Config) Source() string {
	return c.source
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if visited[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	return c.parse(f, path, filepath.Dir(abs), visited)
}

// parse reads INI text from r. A nil visited map disables includes.
func (c *Config) parse(r io.Reader, name, dir string, visited map[string]bool) error {
	var section string
	var options map[string]string
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at line %d in %s", lineNum, name)
			}

			if rest, ok := strings.CutPrefix(header, "include "); ok {
				if visited == nil {
					return fmt.Errorf("config: include not supported at line %d in %s", lineNum, name)
				}
				if err := c.include(dir, strings.TrimSpace(rest), visited); err != nil {
					return fmt.Errorf("config: line %d in %s: %w", lineNum, name, err)
				}
				section, options = "", nil
				continue
			}

			section = header
			options = make(map[string]string)
			continue
		}

		// Options before the first section are ignored.
		if section == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			continue
		}
		options[key] = value
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	return nil
}

func (c *Config) include(dir, pattern string, visited map[string]bool) error {
	if pattern == "" {
		return fmt.Errorf("empty include")
	}
	glob := filepath.Join(dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return fmt.Errorf("include file does not exist: %s", glob)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := c.parseFile(m, visited); err != nil {
			return err
		}
	}
	return nil
}

// stripComment removes '#' and ';' comments. Lines starting with "#*#"
// carry saved config and are kept with the prefix removed.
func stripComment(line string) string {
	if rest, ok := strings.CutPrefix(line, "#*#"); ok {
		return strings.TrimSpace(rest)
	}
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	return line
}

// splitOption splits "key: value" or "key = value".
func splitOption(line string) (string, string, bool) {
	idx := strings.IndexAny(line, ":=")
	if idx < 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

// addSection adds a section, merging into an existing one of the same name.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec, ok := c.sections[name]
	if !ok {
		return nil, ErrMissingSection(name)
	}
	return sec, nil
}

// Section returns the named section, or an empty section when absent so
// callers can read options with fallbacks unconditionally.
func (c *Config) Section(name string) *Section {
	if sec, err := c.GetSection(name); err == nil {
		return sec
	}
	return newSection(name, nil)
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// SectionNames returns all section names in order.
func (c *Config) SectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// UnusedOptions lists "section.option" for every option never read.
func (c *Config) UnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []string
	for _, name := range c.order {
		for _, opt := range c.sections[name].UnusedOptions() {
			result = append(result, name+"."+opt)
		}
	}
	return result
}
