package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// -- Patient Repository --

type patientRepoMemory struct {
	mu       sync.RWMutex
	types    []*IdentifierType
	patients map[uuid.UUID]*Patient
}

// NewPatientRepoMemory returns a PatientRepository kept in process memory.
func NewPatientRepoMemory() PatientRepository {
	return &patientRepoMemory{patients: make(map[uuid.UUID]*Patient)}
}

func (r *patientRepoMemory) FindIdentifierType(_ context.Context, name string) (*IdentifierType, error) {
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

func (r *patientRepoMemory) CreateIdentifierType(_ context.Context, t *IdentifierType) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	r.mu.Lock()
	r.types = append(r.types, &cp)
	r.mu.Unlock()
	return nil
}

func (r *patientRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (r *patientRepoMemory) FindByIdentifier(_ context.Context, typeID uuid.UUID, value string) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Patient
	for _, p := range r.patients {
		for _, ident := range p.Identifiers {
			if ident.IdentifierTypeID == typeID && ident.Value == value {
				result = append(result, clonePatient(p))
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *patientRepoMemory) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	for _, ident := range p.Identifiers {
		ident.ID = uuid.New()
		ident.PatientID = p.ID
		ident.CreatedAt = p.CreatedAt
	}
	r.mu.Lock()
	r.patients[p.ID] = clonePatient(p)
	r.mu.Unlock()
	return nil
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	cp.Identifiers = make([]*PatientIdentifier, len(p.Identifiers))
	for i, ident := range p.Identifiers {
		c := *ident
		cp.Identifiers[i] = &c
	}
	return &cp
}

// -- Provider Repository --

type providerRepoMemory struct {
	mu        sync.RWMutex
	types     []*ProviderAttributeType
	providers map[uuid.UUID]*Provider
}

// NewProviderRepoMemory returns a ProviderRepository kept in process memory.
func NewProviderRepoMemory() ProviderRepository {
	return &providerRepoMemory{providers: make(map[uuid.UUID]*Provider)}
}

func (r *providerRepoMemory) FindAttributeType(_ context.Context, name string) (*ProviderAttributeType, error) {
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

func (r *providerRepoMemory) CreateAttributeType(_ context.Context, t *ProviderAttributeType) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	r.mu.Lock()
	r.types = append(r.types, &cp)
	r.mu.Unlock()
	return nil
}

func (r *providerRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProvider(p), nil
}

func (r *providerRepoMemory) FindByAttribute(_ context.Context, typeID uuid.UUID, value string) ([]*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Provider
	for _, p := range r.providers {
		for _, a := range p.Attributes {
			if a.AttributeTypeID == typeID && a.Value == value {
				result = append(result, cloneProvider(p))
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *providerRepoMemory) Create(_ context.Context, p *Provider) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	for _, a := range p.Attributes {
		a.ID = uuid.New()
		a.ProviderID = p.ID
		a.CreatedAt = p.CreatedAt
	}
	r.mu.Lock()
	r.providers[p.ID] = cloneProvider(p)
	r.mu.Unlock()
	return nil
}

func cloneProvider(p *Provider) *Provider {
	cp := *p
	cp.Attributes = make([]*ProviderAttribute, len(p.Attributes))
	for i, a := range p.Attributes {
		c := *a
		cp.Attributes[i] = &c
	}
	return &cp
}
