package encounter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/domain/settings"
)

func newTestService() (*Service, Repository, settings.Store) {
	repo := NewRepoMemory()
	store := settings.NewMemoryStore()
	return NewService(repo, store, zerolog.Nop()), repo, store
}

func TestGetOrCreateType(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	first, err := svc.GetOrCreateType(ctx, "Clinical Document")
	require.NoError(t, err)
	assert.Equal(t, identity.Created, first.Outcome)
	assert.Equal(t, "Created by the SHR", first.Entity.Description)

	second, err := svc.GetOrCreateType(ctx, "Clinical Document")
	require.NoError(t, err)
	assert.Equal(t, identity.Found, second.Outcome)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)

	other, err := svc.GetOrCreateType(ctx, "clinical document")
	require.NoError(t, err)
	assert.Equal(t, identity.Created, other.Outcome)
	assert.NotEqual(t, first.Entity.ID, other.Entity.ID)
}

func TestGetOrCreateType_EmptyName(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetOrCreateType(context.Background(), "")
	assert.Error(t, err)
}

func TestDefaultRole_CreatedOnceAndPersisted(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService()

	role, err := svc.DefaultRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Default Encounter Role", role.Name)

	again, err := svc.DefaultRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, role.ID, again.ID)

	stored, ok, err := store.Get(ctx, DefaultRoleProperty)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, role.ID.String(), stored)
}

func TestDefaultRole_ReusesStoredRole(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMemory()
	store := settings.NewMemoryStore()

	existing := &EncounterRole{Name: "Attending"}
	require.NoError(t, repo.CreateRole(ctx, existing))
	require.NoError(t, store.Set(ctx, DefaultRoleProperty, existing.ID.String()))

	role, err := NewDefaultRole(repo, store, zerolog.Nop()).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, role.ID)
	assert.Equal(t, "Attending", role.Name)
}

func TestDefaultRole_ReplacesDanglingProperty(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMemory()
	store := settings.NewMemoryStore()

	dangling := uuid.New().String()
	require.NoError(t, store.Set(ctx, DefaultRoleProperty, dangling))

	role, err := NewDefaultRole(repo, store, zerolog.Nop()).Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, dangling, role.ID.String())

	stored, _, _ := store.Get(ctx, DefaultRoleProperty)
	assert.Equal(t, role.ID.String(), stored)
}

func TestDefaultRole_ConcurrentProcessesAgree(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMemory()
	store := settings.NewMemoryStore()

	// Separate DefaultRole values model separate processes sharing one store.
	ids := make([]uuid.UUID, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role, err := NewDefaultRole(repo, store, zerolog.Nop()).Get(ctx)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = role.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestDefaultRole_Reset(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMemory()
	store := settings.NewMemoryStore()
	d := NewDefaultRole(repo, store, zerolog.Nop())

	first, err := d.Get(ctx)
	require.NoError(t, err)

	replacement := &EncounterRole{Name: "Other"}
	require.NoError(t, repo.CreateRole(ctx, replacement))
	require.NoError(t, store.Set(ctx, DefaultRoleProperty, replacement.ID.String()))

	cached, _ := d.Get(ctx)
	assert.Equal(t, first.ID, cached.ID)

	d.Reset()
	fresh, err := d.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, fresh.ID)
}

type failingStore struct{ settings.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("db down")
}

func TestDefaultRole_StoreError(t *testing.T) {
	_, err := NewDefaultRole(NewRepoMemory(), failingStore{}, zerolog.Nop()).Get(context.Background())
	assert.Error(t, err)
}

func TestListByPatient_DateBounds(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	patient := &identity.Patient{ID: uuid.New()}
	encType, err := svc.GetOrCreateType(ctx, "visit")
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		enc := NewEncounter(patient, encType.Entity, nil, base.AddDate(0, 0, i))
		require.NoError(t, svc.Create(ctx, enc))
	}
	require.NoError(t, svc.Create(ctx, NewEncounter(&identity.Patient{ID: uuid.New()}, encType.Entity, nil, base)))

	all, err := svc.ListByPatient(ctx, patient.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.True(t, all[0].Datetime.Before(all[4].Datetime))

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 3)
	bounded, err := svc.ListByPatient(ctx, patient.ID, &from, &to)
	require.NoError(t, err)
	assert.Len(t, bounded, 3)

	open, err := svc.ListByPatient(ctx, patient.ID, &to, nil)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestNewEncounter_DeduplicatesAssignments(t *testing.T) {
	patient := &identity.Patient{ID: uuid.New()}
	encType := &EncounterType{ID: uuid.New()}
	provider := &identity.Provider{ID: uuid.New()}
	role := &EncounterRole{ID: uuid.New()}

	enc := NewEncounter(patient, encType, []ProviderAssignment{
		{Provider: provider, Role: role},
		{Provider: provider, Role: role},
		{Provider: nil, Role: role},
	}, time.Now())

	require.Len(t, enc.Participants, 1)
	assert.Equal(t, provider.ID, enc.Participants[0].ProviderID)
	assert.Equal(t, role.ID, enc.Participants[0].RoleID)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	assert.Error(t, svc.Create(ctx, &Encounter{EncounterTypeID: uuid.New()}))
	assert.Error(t, svc.Create(ctx, &Encounter{PatientID: uuid.New()}))

	enc := &Encounter{PatientID: uuid.New(), EncounterTypeID: uuid.New()}
	require.NoError(t, svc.Create(ctx, enc))
	assert.False(t, enc.Datetime.IsZero())

	got, err := svc.Get(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, enc.ID, got.ID)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}
