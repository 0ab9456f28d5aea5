package encounter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/domain/settings"
)

type Service struct {
	repo        Repository
	defaultRole *DefaultRole
	logger      zerolog.Logger
}

func NewService(repo Repository, store settings.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		defaultRole: NewDefaultRole(repo, store, logger),
		logger:      logger,
	}
}

// GetOrCreateType returns the encounter type called name, creating it on
// first use. Names are matched exactly.
func (s *Service) GetOrCreateType(ctx context.Context, name string) (identity.Resolved[*EncounterType], error) {
	if name == "" {
		return identity.Resolved[*EncounterType]{}, fmt.Errorf("encounter type name is required")
	}
	t, err := s.repo.FindTypeByName(ctx, name)
	if err == nil {
		return identity.Resolved[*EncounterType]{Entity: t, Outcome: identity.Found}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return identity.Resolved[*EncounterType]{}, fmt.Errorf("find encounter type %q: %w", name, err)
	}

	t = &EncounterType{Name: name, Description: GeneratedDescription}
	if err := s.repo.CreateType(ctx, t); err != nil {
		return identity.Resolved[*EncounterType]{}, fmt.Errorf("create encounter type %q: %w", name, err)
	}
	s.logger.Info().Str("encounter_type", name).Msg("created encounter type")
	return identity.Resolved[*EncounterType]{Entity: t, Outcome: identity.Created}, nil
}

// DefaultRole returns the process-wide default encounter role.
func (s *Service) DefaultRole(ctx context.Context) (*EncounterRole, error) {
	return s.defaultRole.Get(ctx)
}

func (s *Service) Create(ctx context.Context, enc *Encounter) error {
	if enc.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if enc.EncounterTypeID == uuid.Nil {
		return fmt.Errorf("encounter_type_id is required")
	}
	if enc.Datetime.IsZero() {
		enc.Datetime = time.Now()
	}
	return s.repo.Create(ctx, enc)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]*Encounter, error) {
	return s.repo.ListByPatient(ctx, patientID, from, to)
}

// DefaultRole resolves the encounter role used for submitted documents.
// The role id lives in the DefaultRoleProperty global property; the first
// writer wins and the result is cached for the life of the process.
type DefaultRole struct {
	repo   Repository
	store  settings.Store
	logger zerolog.Logger

	mu     sync.Mutex
	cached *EncounterRole
}

func NewDefaultRole(repo Repository, store settings.Store, logger zerolog.Logger) *DefaultRole {
	return &DefaultRole{repo: repo, store: store, logger: logger}
}

func (d *DefaultRole) Get(ctx context.Context) (*EncounterRole, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached != nil {
		return d.cached, nil
	}

	role, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	d.cached = role
	return role, nil
}

// Reset drops the cached role so the next Get consults the store again.
func (d *DefaultRole) Reset() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *DefaultRole) load(ctx context.Context) (*EncounterRole, error) {
	value, ok, err := d.store.Get(ctx, DefaultRoleProperty)
	if err != nil {
		return nil, fmt.Errorf("read default encounter role: %w", err)
	}

	if ok {
		role, err := d.lookup(ctx, value)
		if err != nil {
			return nil, err
		}
		if role != nil {
			return role, nil
		}
		// property points at a missing role
		role, err = d.create(ctx)
		if err != nil {
			return nil, err
		}
		if err := d.store.Set(ctx, DefaultRoleProperty, role.ID.String()); err != nil {
			return nil, fmt.Errorf("store default encounter role: %w", err)
		}
		d.logger.Warn().Str("previous", value).Str("role_uuid", role.ID.String()).
			Msg("default encounter role was missing, created a replacement")
		return role, nil
	}

	role, err := d.create(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := d.store.SetIfAbsent(ctx, DefaultRoleProperty, role.ID.String())
	if err != nil {
		return nil, fmt.Errorf("store default encounter role: %w", err)
	}
	if stored == role.ID.String() {
		d.logger.Info().Str("role_uuid", stored).Msg("created default encounter role")
		return role, nil
	}

	// another process won the race
	winner, err := d.lookup(ctx, stored)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("default encounter role %s: %w", stored, ErrNotFound)
	}
	return winner, nil
}

func (d *DefaultRole) lookup(ctx context.Context, value string) (*EncounterRole, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, nil
	}
	role, err := d.repo.GetRole(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get encounter role %s: %w", id, err)
	}
	return role, nil
}

func (d *DefaultRole) create(ctx context.Context) (*EncounterRole, error) {
	role := &EncounterRole{Name: DefaultRoleName, Description: GeneratedDescription}
	if err := d.repo.CreateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("create default encounter role: %w", err)
	}
	return role, nil
}
