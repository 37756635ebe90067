package markdown

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header of a document.
type FrontMatter struct {
	// Lines covers both delimiters.
	Lines LineRange
	// Raw is the YAML between the delimiters.
	Raw string
}

// Reference is an inline bibliography entry from the front matter.
type Reference struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Type  string `yaml:"type"`
}

type frontMatterFields struct {
	References []Reference `yaml:"references"`
}

// SplitFrontMatter finds a front matter block opened by "---" on the first
// line and closed by "---" or "...".
func SplitFrontMatter(src string) (*FrontMatter, bool) {
	lines := strings.Split(src, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "---" {
		return nil, false
	}
	for i := 1; i < len(lines); i++ {
		delim := strings.TrimRight(lines[i], "\r")
		if delim == "---" || delim == "..." {
			return &FrontMatter{
				Lines: LineRange{Start: 0, End: i + 1},
				Raw:   strings.Join(lines[1:i], "\n"),
			}, true
		}
	}
	return nil, false
}

// References decodes the inline references list.
func (fm *FrontMatter) References() ([]Reference, error) {
	if fm == nil || strings.TrimSpace(fm.Raw) == "" {
		return nil, nil
	}
	var fields frontMatterFields
	if err := yaml.Unmarshal([]byte(fm.Raw), &fields); err != nil {
		return nil, fmt.Errorf("invalid front matter: %w", err)
	}

	refs := make([]Reference, 0, len(fields.References))
	for _, ref := range fields.References {
		if ref.ID != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
