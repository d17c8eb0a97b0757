package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory implements Store with process-local maps. It mirrors the
// transactional guarantees of the SQL store, including the CAS in
// CommitSignature, so the service behaves identically against either.
type InMemory struct {
	mu         sync.RWMutex
	documents  map[string]*Document
	signatures map[string][]*Signature // keyed by document id
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		documents:  make(map[string]*Document),
		signatures: make(map[string][]*Signature),
	}
}

func (s *InMemory) Documents(ctx context.Context) DocumentStore { return (*memDocuments)(s) }
func (s *InMemory) Signatures(ctx context.Context) SignatureStore {
	return (*memSignatures)(s)
}

type memDocuments InMemory

func (s *memDocuments) Create(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; ok {
		return fmt.Errorf("document %s already exists", d.ID)
	}
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *memDocuments) Find(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memDocuments) List(ctx context.Context, f Filter, p Page) ([]*Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Document, 0, len(s.documents))
	for _, d := range s.documents {
		if f.UploaderID != "" && d.UploaderID != f.UploaderID {
			continue
		}
		if f.SignerID != "" && d.SignerID != f.SignerID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if p.Offset >= total {
		return []*Document{}, total, nil
	}
	end := p.Offset + p.Limit
	if p.Limit <= 0 || end > total {
		end = total
	}
	out := make([]*Document, 0, end-p.Offset)
	for _, d := range matched[p.Offset:end] {
		cp := *d
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *memDocuments) Update(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *memDocuments) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	delete(s.signatures, id)
	return nil
}

func (s *memDocuments) CommitSignature(ctx context.Context, d *Document, sig *Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.documents[d.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != StatusPending {
		return ErrAlreadySigned
	}
	dcp := *d
	scp := *sig
	s.documents[d.ID] = &dcp
	s.signatures[d.ID] = append(s.signatures[d.ID], &scp)
	return nil
}

type memSignatures InMemory

func (s *memSignatures) ListByDocument(ctx context.Context, documentID string) ([]*Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.signatures[documentID]
	out := make([]*Signature, 0, len(records))
	for _, r := range records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
