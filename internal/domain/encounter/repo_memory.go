package encounter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type encounterRepoMemory struct {
	mu         sync.RWMutex
	types      []*EncounterType
	roles      map[uuid.UUID]*EncounterRole
	encounters map[uuid.UUID]*Encounter
}

// NewRepoMemory returns a Repository kept in process memory.
func NewRepoMemory() Repository {
	return &encounterRepoMemory{
		roles:      make(map[uuid.UUID]*EncounterRole),
		encounters: make(map[uuid.UUID]*Encounter),
	}
}

func (r *encounterRepoMemory) FindTypeByName(_ context.Context, name string) (*EncounterType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.types {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *encounterRepoMemory) CreateType(_ context.Context, t *EncounterType) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	r.mu.Lock()
	r.types = append(r.types, &cp)
	r.mu.Unlock()
	return nil
}

func (r *encounterRepoMemory) GetRole(_ context.Context, id uuid.UUID) (*EncounterRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r *encounterRepoMemory) CreateRole(_ context.Context, role *EncounterRole) error {
	role.ID = uuid.New()
	role.CreatedAt = time.Now()
	cp := *role
	r.mu.Lock()
	r.roles[role.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *encounterRepoMemory) Create(_ context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	enc.CreatedAt = time.Now()
	r.mu.Lock()
	r.encounters[enc.ID] = cloneEncounter(enc)
	r.mu.Unlock()
	return nil
}

func (r *encounterRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEncounter(enc), nil
}

func (r *encounterRepoMemory) ListByPatient(_ context.Context, patientID uuid.UUID, from, to *time.Time) ([]*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Encounter
	for _, enc := range r.encounters {
		if enc.PatientID != patientID {
			continue
		}
		if from != nil && enc.Datetime.Before(*from) {
			continue
		}
		if to != nil && enc.Datetime.After(*to) {
			continue
		}
		result = append(result, cloneEncounter(enc))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Datetime.Equal(result[j].Datetime) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Datetime.Before(result[j].Datetime)
	})
	return result, nil
}

func cloneEncounter(enc *Encounter) *Encounter {
	cp := *enc
	cp.Participants = append([]Participant(nil), enc.Participants...)
	return &cp
}
