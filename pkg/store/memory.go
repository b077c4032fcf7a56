package store

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryStore is an in-process Store. Documents are copied on the way in and
// out, so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]models.Document
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]models.Document),
		now:  time.Now,
	}
}

// WithClock sets the clock used for document timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Seed stores documents as-is, assigning revisions where missing.
func (s *MemoryStore) Seed(docs ...models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		stored := doc.Clone()
		if stored.Rev() == "" {
			stored[models.FieldRev] = NewRevision()
		}
		s.docs[stored.ID()] = stored
	}
}

// Get returns a copy of a stored document, or nil.
func (s *MemoryStore) Get(id string) models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[id].Clone()
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) FetchOne(ctx context.Context, q Query) (models.Document, error) {
	q.Limit = 1
	docs, err := s.FetchMany(ctx, q)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (s *MemoryStore) FetchMany(ctx context.Context, q Query) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.Document
	if len(q.IDs) > 0 {
		for _, id := range q.IDs {
			if doc, ok := s.docs[id]; ok {
				candidates = append(candidates, doc)
			}
		}
	} else {
		ids := make([]string, 0, len(s.docs))
		for id := range s.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			candidates = append(candidates, s.docs[id])
		}
	}

	results := make([]models.Document, 0)
	for _, doc := range candidates {
		if !matches(doc, q) {
			continue
		}
		results = append(results, Project(doc, q.Fields))
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryStore) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID()]; exists {
		return nil, AlreadyExists(doc.ID())
	}
	return s.put(doc, ""), nil
}

func (s *MemoryStore) CreateOrReplace(ctx context.Context, doc models.Document) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := ""
	if existing, ok := s.docs[doc.ID()]; ok {
		createdAt = existing.String(models.FieldCreatedAt)
	}
	return s.put(doc, createdAt), nil
}

func (s *MemoryStore) Patch(ctx context.Context, req PatchRequest) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[req.ID]
	if !ok {
		return nil, NotFound(req.ID)
	}
	if req.IfRevision != "" && existing.Rev() != req.IfRevision {
		return nil, RevisionMismatch(req.ID)
	}

	patched := existing.Clone()
	for k, v := range models.Document(req.Set).Clone() {
		if IsReserved(k) {
			continue
		}
		patched[k] = v
	}
	patched[models.FieldRev] = NewRevision()
	patched[models.FieldUpdatedAt] = s.timestamp()
	s.docs[req.ID] = patched
	return patched.Clone(), nil
}

// put must be called with the write lock held.
func (s *MemoryStore) put(doc models.Document, createdAt string) models.Document {
	stored := doc.Clone()
	now := s.timestamp()
	if createdAt == "" {
		createdAt = now
	}
	stored[models.FieldCreatedAt] = createdAt
	stored[models.FieldUpdatedAt] = now
	stored[models.FieldRev] = NewRevision()
	s.docs[stored.ID()] = stored
	return stored.Clone()
}

func (s *MemoryStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Validate checks that a document carries an id and a type.
func Validate(doc models.Document) error {
	if doc.ID() == "" {
		return InvalidDocument("document _id is required")
	}
	if doc.Type() == "" {
		return InvalidDocument("document _type is required")
	}
	return nil
}

// IsReserved reports whether field is managed by the store.
func IsReserved(field string) bool {
	switch field {
	case models.FieldID, models.FieldType, models.FieldRev, models.FieldCreatedAt, models.FieldUpdatedAt:
		return true
	}
	return false
}

func matches(doc models.Document, q Query) bool {
	if q.Type != "" && doc.Type() != q.Type {
		return false
	}
	for path, expected := range q.Where {
		actual := extractor.Extract(doc, path)
		if reflect.DeepEqual(actual, expected) {
			continue
		}
		a, e := extractor.ToString(actual), extractor.ToString(expected)
		if a == "" || a != e {
			return false
		}
	}
	if q.Prefix != nil && !strings.HasPrefix(extractor.ExtractString(doc, q.Prefix.Field), q.Prefix.Value) {
		return false
	}
	return true
}

// Project keeps _id, _type and fields of doc.
func Project(doc models.Document, fields []string) models.Document {
	if len(fields) == 0 {
		return doc.Clone()
	}
	out := models.Document{
		models.FieldID:   doc[models.FieldID],
		models.FieldType: doc[models.FieldType],
	}
	for _, field := range fields {
		if v, ok := doc[field]; ok {
			out[field] = v
		}
	}
	return out.Clone()
}

// NewRevision returns a fresh revision id.
func NewRevision() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:22]
}
