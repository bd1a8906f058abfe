package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Section is one named group of options. Option names are case
// insensitive and every read is recorded.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{
		name:     name,
		options:  opts,
		accessed: make(map[string]struct{}),
	}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.accessed[key] = struct{}{}
	s.mu.Unlock()
	v, ok := s.options[key]
	return v, ok
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// UnusedOptions returns the sorted names of options never read.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			result = append(result, opt)
		}
	}
	sort.Strings(result)
	return result
}

// Get returns a string option value. Without a fallback a missing
// option is an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", ErrMissingOption(s.name, option)
}

// GetInt returns an integer option value.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, ErrMissingOption(s.name, option)
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, ErrInvalidValue(s.name, option, v, "integer", err)
	}
	return i, nil
}

// GetIntMin returns an integer option value no smaller than minVal.
func (s *Section) GetIntMin(option string, minVal int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < minVal {
		return 0, ErrOutOfRange(s.name, option, v, "must have minimum of "+strconv.Itoa(minVal))
	}
	return v, nil
}

// GetBool returns a boolean option value.
// Accepts: 1, true, yes, on (true) and 0, false, no, off (false).
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, ErrMissingOption(s.name, option)
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, ErrInvalidValue(s.name, option, v, "boolean", nil)
}

// GetChoice returns a string option that must be one of the valid choices.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", ErrInvalidChoice(s.name, option, v, choices)
}
