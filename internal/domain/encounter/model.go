package encounter

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openhie/shr/internal/domain/identity"
)

const (
	// DefaultRoleProperty is the global property caching the default role id.
	DefaultRoleProperty = "shr.contenthandler.encounterrole.uuid"

	DefaultRoleName      = "Default Encounter Role"
	GeneratedDescription = "Created by the SHR"
)

var ErrNotFound = errors.New("encounter: not found")

// EncounterType maps to the encounter_type table.
type EncounterType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EncounterRole maps to the encounter_role table.
type EncounterRole struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProviderAssignment links a provider to an encounter in a role.
type ProviderAssignment struct {
	Provider *identity.Provider
	Role     *EncounterRole
}

// Participant is a persisted provider assignment.
type Participant struct {
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	RoleID     uuid.UUID `db:"role_id" json:"role_id"`
}

// Encounter maps to the encounter table.
type Encounter struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	PatientID       uuid.UUID     `db:"patient_id" json:"patient_id"`
	EncounterTypeID uuid.UUID     `db:"encounter_type_id" json:"encounter_type_id"`
	Datetime        time.Time     `db:"encounter_datetime" json:"encounter_datetime"`
	Participants    []Participant `json:"participants,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// NewEncounter builds an unsaved encounter for patient with the given
// provider assignments. Assignments missing a provider or role are skipped.
func NewEncounter(patient *identity.Patient, encType *EncounterType, assignments []ProviderAssignment, at time.Time) *Encounter {
	enc := &Encounter{
		PatientID:       patient.ID,
		EncounterTypeID: encType.ID,
		Datetime:        at,
	}
	seen := make(map[Participant]bool)
	for _, a := range assignments {
		if a.Provider == nil || a.Role == nil {
			continue
		}
		p := Participant{ProviderID: a.Provider.ID, RoleID: a.Role.ID}
		if seen[p] {
			continue
		}
		seen[p] = true
		enc.Participants = append(enc.Participants, p)
	}
	return enc
}
