package languages

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateAlias is returned when two languages claim the same id.
var ErrDuplicateAlias = errors.New("duplicate language alias")

// ErrInvalidLanguage is returned for descriptors that cannot be registered.
var ErrInvalidLanguage = errors.New("invalid embedded language")

// Registry maps info-string identifiers to language descriptors. A Registry
// is immutable; With returns a new one.
type Registry struct {
	// langs keeps registration order for listing.
	langs []*EmbeddedLanguage

	// byID maps every alias (lower-case) to its descriptor.
	byID map[string]*EmbeddedLanguage
}

// NewRegistry validates and indexes the given languages.
func NewRegistry(langs ...*EmbeddedLanguage) (*Registry, error) {
	r := &Registry{
		langs: make([]*EmbeddedLanguage, 0, len(langs)),
		byID:  make(map[string]*EmbeddedLanguage),
	}
	for _, lang := range langs {
		if err := r.add(lang); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(lang *EmbeddedLanguage) error {
	if err := validate(lang); err != nil {
		return err
	}
	for _, id := range lang.IDs {
		if existing, ok := r.byID[id]; ok {
			return fmt.Errorf("%w: %q is claimed by %q and %q", ErrDuplicateAlias, id, existing.ID(), lang.ID())
		}
	}
	for _, id := range lang.IDs {
		r.byID[id] = lang
	}
	r.langs = append(r.langs, lang)
	return nil
}

func validate(lang *EmbeddedLanguage) error {
	if lang == nil || len(lang.IDs) == 0 {
		return fmt.Errorf("%w: no ids", ErrInvalidLanguage)
	}
	for _, id := range lang.IDs {
		if id == "" || id != strings.ToLower(id) {
			return fmt.Errorf("%w: id %q must be non-empty and lower-case", ErrInvalidLanguage, id)
		}
	}
	if lang.Strategy == nil {
		return fmt.Errorf("%w: %q has no strategy", ErrInvalidLanguage, lang.ID())
	}
	if ext := lang.Strategy.Extension(); ext == "" || strings.ContainsAny(ext, "./\\") {
		return fmt.Errorf("%w: %q has invalid extension %q", ErrInvalidLanguage, lang.ID(), ext)
	}
	if strings.ContainsAny(lang.Inject, "\r\n") {
		return fmt.Errorf("%w: %q inject must be a single line", ErrInvalidLanguage, lang.ID())
	}
	return nil
}

// Lookup resolves an identifier against every language's aliases.
func (r *Registry) Lookup(id string) (*EmbeddedLanguage, bool) {
	if r == nil {
		return nil, false
	}
	lang, ok := r.byID[strings.ToLower(id)]
	return lang, ok
}

// Languages returns the registered descriptors in registration order.
func (r *Registry) Languages() []*EmbeddedLanguage {
	out := make([]*EmbeddedLanguage, len(r.langs))
	copy(out, r.langs)
	return out
}

// Len returns the number of registered languages.
func (r *Registry) Len() int {
	return len(r.langs)
}

// With returns a registry where each override replaces the language with the
// same primary id, or is appended when there is none.
func (r *Registry) With(overrides ...*EmbeddedLanguage) (*Registry, error) {
	langs := r.Languages()
	for _, o := range overrides {
		if o == nil {
			continue
		}
		replaced := false
		for i, lang := range langs {
			if lang.ID() == o.ID() {
				langs[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			langs = append(langs, o)
		}
	}
	return NewRegistry(langs...)
}

// TriggerCharacters is the sorted union of every language's triggers.
func (r *Registry) TriggerCharacters() []string {
	seen := make(map[string]struct{})
	for _, lang := range r.langs {
		for _, t := range lang.Trigger {
			seen[t] = struct{}{}
		}
	}
	triggers := make([]string, 0, len(seen))
	for t := range seen {
		triggers = append(triggers, t)
	}
	sort.Strings(triggers)
	return triggers
}
