package toggle

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateFeature is returned when a definition set names a feature twice.
var ErrDuplicateFeature = errors.New("duplicate feature name")

// Snapshot is an immutable, versioned set of toggle definitions.
type Snapshot struct {
	features map[string]*FeatureToggle
	revision string
}

var empty = &Snapshot{features: map[string]*FeatureToggle{}}

// EmptySnapshot is the value readers see before the first install.
func EmptySnapshot() *Snapshot { return empty }

// NewSnapshot builds a snapshot from an ordered definition list.
func NewSnapshot(features []FeatureToggle, revision string) (*Snapshot, error) {
	m := make(map[string]*FeatureToggle, len(features))
	for i := range features {
		f := features[i]
		if _, dup := m[f.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFeature, f.Name)
		}
		m[f.Name] = &f
	}
	return &Snapshot{features: m, revision: revision}, nil
}

// Lookup returns the named toggle.
func (s *Snapshot) Lookup(name string) (*FeatureToggle, bool) {
	f, ok := s.features[name]
	return f, ok
}

// Revision is the server's version marker (ETag) for this snapshot.
func (s *Snapshot) Revision() string { return s.revision }

func (s *Snapshot) Len() int { return len(s.features) }

// Names lists toggle names in lexical order.
func (s *Snapshot) Names() []string {
	out := make([]string, 0, len(s.features))
	for name := range s.features {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
