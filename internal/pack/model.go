package pack

import (
	"sort"
	"strings"
	"time"
)

// Pack is the root document: metadata, lifecycle fields and ordered sections.
type Pack struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Title         string    `json:"title,omitempty"`
	Brief         string    `json:"brief,omitempty"`
	Status        Status    `json:"status"`
	Tags          []string  `json:"tags"`
	Sections      []Section `json:"sections"`
	Revision      int64     `json:"revision"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Section groups refs and diagrams under a key. Slice order is render order.
type Section struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Verdict     string    `json:"verdict,omitempty"`
	Refs        []Ref     `json:"refs"`
	Diagrams    []Diagram `json:"diagrams"`
}

// Ref anchors a line range in a file under the source root.
type Ref struct {
	Key       string `json:"key"`
	Path      string `json:"path"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Title     string `json:"title,omitempty"`
	Why       string `json:"why,omitempty"`
	Group     string `json:"group,omitempty"`
}

// Diagram is raw mermaid source attached to a section.
type Diagram struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Mermaid string `json:"mermaid"`
	Why     string `json:"why,omitempty"`
}

const defaultRefGroup = "ungrouped"

// NewPack builds a draft pack at revision 1.
func NewPack(id, name string, now time.Time, ttl time.Duration) *Pack {
	now = now.UTC()
	return &Pack{
		SchemaVersion: CurrentSchemaVersion,
		ID:            id,
		Name:          name,
		Status:        StatusDraft,
		Tags:          []string{},
		Sections:      []Section{},
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

// HasSubstance reports whether the section carries any content.
func (s *Section) HasSubstance() bool {
	return strings.TrimSpace(s.Description) != "" || len(s.Refs) > 0 || len(s.Diagrams) > 0
}

// Clone returns a deep copy.
func (p *Pack) Clone() *Pack {
	c := *p
	c.Tags = append([]string{}, p.Tags...)
	c.Sections = make([]Section, len(p.Sections))
	for i, s := range p.Sections {
		s.Refs = append([]Ref{}, s.Refs...)
		s.Diagrams = append([]Diagram{}, s.Diagrams...)
		c.Sections[i] = s
	}
	return &c
}

// DisplayTitle is the title, else the name, else "Untitled".
func (p *Pack) DisplayTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	if p.Name != "" {
		return p.Name
	}
	return "Untitled"
}

func (p *Pack) sectionIndex(key string) int {
	for i := range p.Sections {
		if p.Sections[i].Key == key {
			return i
		}
	}
	return -1
}

// Section returns the section with the given key.
func (p *Pack) Section(key string) (*Section, bool) {
	i := p.sectionIndex(key)
	if i < 0 {
		return nil, false
	}
	return &p.Sections[i], true
}

func (p *Pack) assertMutable() error {
	if p.Status == StatusFinalized {
		return InvalidState("pack %s is finalized and immutable; set status to draft first", p.ID)
	}
	return nil
}

func (p *Pack) mustSection(key string) (*Section, error) {
	s, ok := p.Section(key)
	if !ok {
		return nil, NotFound("section '%s' not found in pack %s", key, p.ID)
	}
	return s, nil
}

// upsertSection inserts or replaces a section. Existing refs and diagrams are kept.
// A nil description or verdict keeps the stored value.
func (p *Pack) upsertSection(key, title string, description, verdict *string, order *int) {
	existing := p.sectionIndex(key)
	section := Section{Key: key, Refs: []Ref{}, Diagrams: []Diagram{}}
	if existing >= 0 {
		section = p.Sections[existing]
		p.Sections = append(p.Sections[:existing], p.Sections[existing+1:]...)
	}
	section.Title = title
	if description != nil {
		section.Description = *description
	}
	if verdict != nil {
		section.Verdict = *verdict
	}

	at := len(p.Sections)
	switch {
	case order != nil:
		at = min(max(*order, 0), len(p.Sections))
	case existing >= 0:
		at = min(existing, len(p.Sections))
	}
	p.Sections = append(p.Sections, Section{})
	copy(p.Sections[at+1:], p.Sections[at:])
	p.Sections[at] = section
}

func (p *Pack) deleteSection(key string) error {
	i := p.sectionIndex(key)
	if i < 0 {
		return NotFound("section '%s' not found in pack %s", key, p.ID)
	}
	p.Sections = append(p.Sections[:i], p.Sections[i+1:]...)
	return nil
}

func (s *Section) upsertRef(r Ref) {
	for i := range s.Refs {
		if s.Refs[i].Key == r.Key {
			s.Refs[i] = r
			return
		}
	}
	s.Refs = append(s.Refs, r)
}

func (s *Section) deleteRef(key string) bool {
	for i := range s.Refs {
		if s.Refs[i].Key == key {
			s.Refs = append(s.Refs[:i], s.Refs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Section) upsertDiagram(d Diagram) {
	for i := range s.Diagrams {
		if s.Diagrams[i].Key == d.Key {
			s.Diagrams[i] = d
			return
		}
	}
	s.Diagrams = append(s.Diagrams, d)
}

// refGroup is one named group of refs inside a section.
type refGroup struct {
	name string
	refs []Ref
}

// groupedRefs returns the section refs grouped by group name, groups sorted by name,
// refs in insertion order within a group.
func (s *Section) groupedRefs() []refGroup {
	byName := make(map[string][]Ref)
	for _, r := range s.Refs {
		g := r.Group
		if g == "" {
			g = defaultRefGroup
		}
		byName[g] = append(byName[g], r)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	groups := make([]refGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, refGroup{name: name, refs: byName[name]})
	}
	return groups
}
