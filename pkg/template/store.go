package template

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/agentcore/platform/pkg/agenterrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Store loads, validates, and resolves templates by name (spec §4.3). It is
// read-mostly: writes happen only in LoadDir and Put under a write lock,
// readers use snapshot semantics (spec §5).
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Template
	resolved  map[string]*Template // memoized resolve() results, invalidated on Load
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		templates: make(map[string]*Template),
		resolved:  make(map[string]*Template),
	}
}

// LoadDir parses every *.yaml/*.yml/*.json file under root (recursively,
// via doublestar globbing) into the Store, replacing any prior contents.
func (s *Store) LoadDir(root string) error {
	patterns := []string{"**/*.yaml", "**/*.yml", "**/*.json"}
	var files []string
	for _, pat := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pat)
		if err != nil {
			return agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"root": root, "pattern": pat})
		}
		for _, m := range matches {
			files = append(files, filepath.Join(root, m))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]*Template, len(files))
	for _, f := range files {
		t, err := loadFile(f)
		if err != nil {
			return err
		}
		if _, dup := fresh[t.Name]; dup {
			return agenterrors.New(agenterrors.KindTemplateInvalid, "duplicate template name", map[string]any{"name": t.Name})
		}
		fresh[t.Name] = t
	}
	s.templates = fresh
	s.resolved = make(map[string]*Template)
	return nil
}

// Put registers a single in-memory template (used by tests and programmatic
// callers that don't read from a filesystem).
func (s *Store) Put(t *Template) error {
	if err := validate.Struct(t); err != nil {
		return agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"name": t.Name})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	delete(s.resolved, t.Name)
	s.resolved = make(map[string]*Template) // any descendant's resolve() may change
	return nil
}

func loadFile(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"path": path})
	}
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"path": path})
	}
	t.sourcePath = path
	if err := validate.Struct(&t); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"path": path})
	}
	return &t, nil
}

// Get returns the raw (unresolved) template by name.
func (s *Store) Get(name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, agenterrors.New(agenterrors.KindTemplateExtendsUnknown, "template not found", map[string]any{"name": name})
	}
	return t, nil
}

// Resolve returns the fully merged template for name: root-to-leaf chain of
// `extends` merged additively (spec §3). Cycles fail with
// TemplateExtendsCycle. Results are memoized; repeated calls with the same
// Store contents return equal values (spec §8 property 8).
func (s *Store) Resolve(name string) (*Template, error) {
	s.mu.RLock()
	if r, ok := s.resolved[name]; ok {
		s.mu.RUnlock()
		return r, nil
	}
	s.mu.RUnlock()

	chain, err := s.ancestryChain(name, map[string]bool{})
	if err != nil {
		return nil, err
	}
	merged := chain[0]
	for _, next := range chain[1:] {
		merged, err = mergeTemplates(merged, next)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.resolved[name] = merged
	s.mu.Unlock()
	return merged, nil
}

// ancestryChain returns [root, ..., leaf] for name, detecting extends cycles.
func (s *Store) ancestryChain(name string, seen map[string]bool) ([]*Template, error) {
	if seen[name] {
		return nil, agenterrors.New(agenterrors.KindTemplateExtendsCycle, "extends cycle detected", map[string]any{"at": name})
	}
	seen[name] = true

	t, err := s.Get(name)
	if err != nil {
		return nil, agenterrors.New(agenterrors.KindTemplateExtendsUnknown, "extends points to unknown template", map[string]any{"name": name})
	}
	if t.BaseTemplate == "" {
		return []*Template{t}, nil
	}
	parentChain, err := s.ancestryChain(t.BaseTemplate, seen)
	if err != nil {
		return nil, err
	}
	return append(parentChain, t), nil
}

// List returns all raw template names currently loaded.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	return names
}
