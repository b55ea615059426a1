// Package dbtest provides an in-memory stand-in for the Postgres repositories.
package dbtest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/template"
)

// MemStore implements the template and provider app repository methods over
// maps. Every read and write copies, so callers never share state with the store.
type MemStore struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*template.Template
	apps      map[string]*db.ProviderApp
	seq       int

	// Writes counts committed template writes (creates, updates and deletes).
	Writes int

	// Failure injection.
	FailApplySync error
	FailMutate    error
	FailDelete    error
}

func NewMemStore() *MemStore {
	return &MemStore{
		templates: make(map[uuid.UUID]*template.Template),
		apps:      make(map[string]*db.ProviderApp),
	}
}

// Put seeds a template without counting a write.
func (s *MemStore) Put(t *template.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Rehash()
	s.templates[t.ID] = t.Clone()
}

// PutApp seeds a provider app.
func (s *MemStore) PutApp(app *db.ProviderApp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.AppID] = &cp
}

// Get returns a copy of the stored template, or nil.
func (s *MemStore) Get(id uuid.UUID) *template.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// Len returns the number of stored templates.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.templates)
}

func (s *MemStore) GetTemplate(_ context.Context, id uuid.UUID, orgID, appID string) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.OrgID != orgID || t.AppID != appID {
		return nil, db.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemStore) GetByProviderID(_ context.Context, pid string) (*template.Template, error) {
	return s.findLatest(func(t *template.Template) bool { return t.ProviderTemplateID == pid })
}

func (s *MemStore) GetByNameLanguage(_ context.Context, name, lang string) (*template.Template, error) {
	return s.findLatest(func(t *template.Template) bool {
		return t.ElementName == name && t.LanguageCode == lang
	})
}

func (s *MemStore) findLatest(match func(*template.Template) bool) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *template.Template
	for _, t := range s.templates {
		if match(t) && (best == nil || t.UpdatedAt.After(best.UpdatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, db.ErrNotFound
	}
	return best.Clone(), nil
}

func (s *MemStore) ListByApp(_ context.Context, appID string) ([]*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*template.Template
	for _, t := range s.templates {
		if t.AppID == appID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Create(_ context.Context, t *template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(t)
	return nil
}

func (s *MemStore) Mutate(_ context.Context, id uuid.UUID, fn func(*template.Template) error) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMutate != nil {
		return nil, s.FailMutate
	}
	t, ok := s.templates[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	c := t.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	s.save(c)
	return c.Clone(), nil
}

func (s *MemStore) ApplySync(_ context.Context, creates, updates []*template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApplySync != nil {
		return s.FailApplySync
	}
	for _, t := range creates {
		s.save(t)
	}
	for _, t := range updates {
		s.save(t)
	}
	return nil
}

func (s *MemStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	if _, ok := s.templates[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.templates, id)
	s.Writes++
	return nil
}

func (s *MemStore) GetProviderApp(_ context.Context, appID, orgID string) (*db.ProviderApp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok || app.OrgID != orgID {
		return nil, db.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

// save stamps, rehashes and stores a copy of t. Callers hold mu.
func (s *MemStore) save(t *template.Template) {
	t.Rehash()
	s.seq++
	if existing, ok := s.templates[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = stamp(s.seq)
	}
	t.UpdatedAt = stamp(s.seq)
	s.templates[t.ID] = t.Clone()
	s.Writes++
}
