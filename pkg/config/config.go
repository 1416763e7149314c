// Package config loads and persists the user preference file that drives
// the confirmation gate. The file is human-editable JSON under the Angela
// config root; edits take effect on the next Reload.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/angela-cli/angela/pkg/safety"
)

const (
	configDirName  = ".angela"
	configFileName = "config.json"
)

// Preferences is the authoritative user preference schema.
type Preferences struct {
	// AutoExecute controls which risk levels run without prompting.
	AutoExecute map[string]bool `json:"auto_execute"`
	// ConfirmAllActions overrides everything to require confirmation.
	ConfirmAllActions bool `json:"confirm_all_actions"`
	// TrustedCommands are exact command strings auto-executed regardless
	// of risk (refusals still apply).
	TrustedCommands []string `json:"trusted_commands"`
	// UntrustedCommands always require confirmation.
	UntrustedCommands []string `json:"untrusted_commands"`
}

// DefaultPreferences returns the documented defaults: safe and low risk
// auto-execute, everything else prompts.
func DefaultPreferences() Preferences {
	return Preferences{
		AutoExecute: map[string]bool{
			safety.RiskSafe.String():     true,
			safety.RiskLow.String():      true,
			safety.RiskMedium.String():   false,
			safety.RiskHigh.String():     false,
			safety.RiskCritical.String(): false,
		},
	}
}

// AutoExecuteLevel reports whether the given level auto-executes. Levels
// missing from the file fall back to the defaults.
func (p Preferences) AutoExecuteLevel(level safety.RiskLevel) bool {
	if v, ok := p.AutoExecute[level.String()]; ok {
		return v
	}
	return level <= safety.RiskLow
}

// IsTrusted reports whether the exact command string is trusted.
func (p Preferences) IsTrusted(command string) bool {
	for _, c := range p.TrustedCommands {
		if c == command {
			return true
		}
	}
	return false
}

// IsUntrusted reports whether the exact command string is untrusted.
func (p Preferences) IsUntrusted(command string) bool {
	for _, c := range p.UntrustedCommands {
		if c == command {
			return true
		}
	}
	return false
}

// Store owns the preference file. Reads are concurrent; reloads and saves
// take the single writer lock.
type Store struct {
	mu    sync.RWMutex
	path  string
	prefs Preferences
}

// ConfigRoot returns the Angela config directory, creating it if needed.
func ConfigRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	root := filepath.Join(home, configDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return root, nil
}

// Load opens the preference store rooted at dir, creating the file with
// defaults when it does not exist yet.
func Load(dir string) (*Store, error) {
	s := &Store{path: filepath.Join(dir, configFileName)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the preference file from disk.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.prefs = DefaultPreferences()
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := DefaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("failed to parse preferences: %w", err)
	}
	s.prefs = prefs
	return nil
}

// Preferences returns a snapshot of the current preferences.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update replaces the preferences and persists them.
func (s *Store) Update(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
