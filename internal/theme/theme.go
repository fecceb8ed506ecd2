// Package theme persists the UI color palette preference.
package theme

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"bookworm/pkg/kv"
)

// Palette is a named color scheme. Colors are hex strings.
type Palette struct {
	Name            string `json:"name"`
	Primary         string `json:"primary"`
	Background      string `json:"background"`
	CardBackground  string `json:"cardBackground"`
	Text            string `json:"text"`
	TextSecondary   string `json:"textSecondary"`
	PlaceholderText string `json:"placeholderText"`
	Border          string `json:"border"`
}

// Built-in palettes. Ocean is the default.
var (
	Ocean = Palette{
		Name:            "ocean",
		Primary:         "#1976d2",
		Background:      "#e3f2fd",
		CardBackground:  "#f5f9ff",
		Text:            "#1a4971",
		TextSecondary:   "#6d93b8",
		PlaceholderText: "#767676",
		Border:          "#bbdefb",
	}
	Forest = Palette{
		Name:            "forest",
		Primary:         "#4caf50",
		Background:      "#e8f5e9",
		CardBackground:  "#f1f8f2",
		Text:            "#2e5a2e",
		TextSecondary:   "#688f68",
		PlaceholderText: "#767676",
		Border:          "#c8e6c9",
	}
	Sunset = Palette{
		Name:            "sunset",
		Primary:         "#ff7043",
		Background:      "#fff3e0",
		CardBackground:  "#fff8f1",
		Text:            "#5d4037",
		TextSecondary:   "#a1887f",
		PlaceholderText: "#767676",
		Border:          "#ffccbc",
	}
	Midnight = Palette{
		Name:            "midnight",
		Primary:         "#7c4dff",
		Background:      "#121212",
		CardBackground:  "#1e1e1e",
		Text:            "#e0e0e0",
		TextSecondary:   "#9e9e9e",
		PlaceholderText: "#767676",
		Border:          "#2c2c2c",
	}
)

// PaletteByName resolves a built-in palette.
func PaletteByName(name string) (Palette, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ocean":
		return Ocean, true
	case "forest":
		return Forest, true
	case "sunset":
		return Sunset, true
	case "midnight":
		return Midnight, true
	}
	return Palette{}, false
}

// Store holds the active palette and persists changes.
type Store struct {
	kv     kv.Store
	logger *slog.Logger

	mu     sync.RWMutex
	colors Palette
}

// NewStore starts on the default palette.
func NewStore(kvStore kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kvStore, logger: logger, colors: Ocean}
}

// Load hydrates the palette from persistence. Absent or corrupt data keeps
// the default; errors are logged, never surfaced.
func (s *Store) Load(ctx context.Context) {
	raw, found, err := s.kv.Get(ctx, kv.KeyColors)
	if err != nil {
		s.logger.Warn("read persisted palette failed", "err", err)
		return
	}
	if !found {
		return
	}
	var p Palette
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Name == "" {
		s.logger.Warn("corrupt persisted palette, keeping default", "err", err)
		return
	}
	s.mu.Lock()
	s.colors = p
	s.mu.Unlock()
}

// Colors returns the active palette.
func (s *Store) Colors() Palette {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colors
}

// SetColors persists the palette, then makes it active.
func (s *Store) SetColors(ctx context.Context, p Palette) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, kv.KeyColors, string(raw)); err != nil {
		return err
	}
	s.mu.Lock()
	s.colors = p
	s.mu.Unlock()
	return nil
}
