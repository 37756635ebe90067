// Package languages describes the embedded languages that may appear inside
// a Quarto document and how their virtual documents are materialized.
package languages

import (
	"slices"
	"strings"
)

// Strategy selects how a virtual document is materialized. The set of
// strategies is closed: ContentAddressed and TempFileBacked.
type Strategy interface {
	// Extension is the file extension (without dot) downstream tooling uses
	// to detect the language.
	Extension() string
	// Name is the configuration spelling of the strategy.
	Name() string
	isStrategy()
}

// ContentAddressed documents travel inside their address. Nothing is written
// to disk.
type ContentAddressed struct {
	Ext string
}

// Extension implements Strategy.
func (s ContentAddressed) Extension() string { return s.Ext }

// Name implements Strategy.
func (ContentAddressed) Name() string { return StrategyContent }

func (ContentAddressed) isStrategy() {}

// TempFileBacked documents are written to a real file for tools that only
// read from disk.
type TempFileBacked struct {
	Ext string
}

// Extension implements Strategy.
func (s TempFileBacked) Extension() string { return s.Ext }

// Name implements Strategy.
func (TempFileBacked) Name() string { return StrategyTempFile }

func (TempFileBacked) isStrategy() {}

// Strategy names as they appear in configuration.
const (
	StrategyContent  = "content"
	StrategyTempFile = "tempfile"
)

// ParseStrategy builds a strategy from its configuration name.
func ParseStrategy(name, ext string) (Strategy, bool) {
	switch strings.ToLower(name) {
	case StrategyContent, "":
		return ContentAddressed{Ext: ext}, true
	case StrategyTempFile:
		return TempFileBacked{Ext: ext}, true
	}
	return nil, false
}

// EmbeddedLanguage describes one embedded language. Descriptors are
// immutable once registered.
type EmbeddedLanguage struct {
	// IDs are the info-string spellings that select this language. IDs[0]
	// is the primary id.
	IDs      []string
	Strategy Strategy
	// Inject, when set, replaces line 0 of every virtual document.
	Inject string
	// Trigger lists completion trigger characters.
	Trigger []string
}

// ID returns the primary id.
func (l *EmbeddedLanguage) ID() string {
	if l == nil || len(l.IDs) == 0 {
		return ""
	}
	return l.IDs[0]
}

// Extension returns the strategy's file extension.
func (l *EmbeddedLanguage) Extension() string {
	if l == nil || l.Strategy == nil {
		return ""
	}
	return l.Strategy.Extension()
}

// HasID reports whether id is one of the language's aliases.
func (l *EmbeddedLanguage) HasID(id string) bool {
	if l == nil {
		return false
	}
	return slices.Contains(l.IDs, strings.ToLower(id))
}

// define builds a descriptor with lower-cased ids.
func define(strategy Strategy, ids ...string) *EmbeddedLanguage {
	lower := make([]string, len(ids))
	for i, id := range ids {
		lower[i] = strings.ToLower(id)
	}
	return &EmbeddedLanguage{IDs: lower, Strategy: strategy}
}
