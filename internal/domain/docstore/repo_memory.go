package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type documentRepoMemory struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*Document
}

// NewRepoMemory returns a Repository kept in process memory.
func NewRepoMemory() Repository {
	return &documentRepoMemory{docs: make(map[uuid.UUID]*Document)}
}

func (r *documentRepoMemory) Create(_ context.Context, d *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[d.EncounterID]; exists {
		return fmt.Errorf("document for encounter %s already exists", d.EncounterID)
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	r.docs[d.EncounterID] = cloneDocument(d)
	return nil
}

func (r *documentRepoMemory) GetByEncounter(_ context.Context, encounterID uuid.UUID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[encounterID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return cloneDocument(d), nil
}

func (r *documentRepoMemory) ListByEncounters(_ context.Context, handler string, encounterIDs []uuid.UUID) (map[uuid.UUID]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make(map[uuid.UUID]*Document, len(encounterIDs))
	for _, id := range encounterIDs {
		if d, ok := r.docs[id]; ok && d.Handler == handler {
			docs[id] = cloneDocument(d)
		}
	}
	return docs, nil
}

func cloneDocument(d *Document) *Document {
	cp := *d
	if d.Meta != nil {
		cp.Meta = make(map[string]string, len(d.Meta))
		for k, v := range d.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}
