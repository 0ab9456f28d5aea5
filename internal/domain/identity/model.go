package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	PlaceholderGivenName    = "Auto"
	PlaceholderFamilyName   = "Generated"
	PlaceholderGender       = "unknown"
	PlaceholderProviderName = "Auto-generated provider"

	// FreeTextDatatype is the datatype recorded on generated provider attribute types.
	FreeTextDatatype = "free_text"
)

var (
	ErrNotFound = errors.New("identity: not found")
	ErrConflict = errors.New("identity: ambiguous identifier")
)

// ExternalIdentity is an identifier assigned by an external system.
type ExternalIdentity struct {
	Value    string `json:"value"`
	TypeName string `json:"type"`
}

func (e ExternalIdentity) String() string {
	return e.TypeName + "-" + e.Value
}

// IdentifierType maps to the identifier_type table. Names are matched
// exactly and case-sensitively.
type IdentifierType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	GivenName   string               `db:"given_name" json:"given_name"`
	FamilyName  string               `db:"family_name" json:"family_name"`
	Gender      string               `db:"gender" json:"gender"`
	Identifiers []*PatientIdentifier `json:"identifiers,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// PatientIdentifier maps to the patient_identifier table.
type PatientIdentifier struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	IdentifierTypeID uuid.UUID `db:"identifier_type_id" json:"identifier_type_id"`
	Value            string    `db:"value" json:"value"`
	Preferred        bool      `db:"preferred" json:"preferred"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ProviderAttributeType maps to the provider_attribute_type table.
type ProviderAttributeType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Datatype    string    `db:"datatype" json:"datatype"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Provider maps to the provider table.
type Provider struct {
	ID         uuid.UUID            `db:"id" json:"id"`
	Name       string               `db:"name" json:"name"`
	Attributes []*ProviderAttribute `json:"attributes,omitempty"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}

// ProviderAttribute maps to the provider_attribute table.
type ProviderAttribute struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ProviderID      uuid.UUID `db:"provider_id" json:"provider_id"`
	AttributeTypeID uuid.UUID `db:"attribute_type_id" json:"attribute_type_id"`
	Value           string    `db:"value" json:"value"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Outcome tells whether a resolution found an existing entity or created one.
type Outcome int

const (
	Found Outcome = iota
	Created
)

func (o Outcome) String() string {
	if o == Created {
		return "created"
	}
	return "found"
}

// Resolved is the result of a resolve-or-create call.
type Resolved[T any] struct {
	Entity  T
	Outcome Outcome
}

// ConflictError reports that an external identity matches more than one
// internal entity.
type ConflictError struct {
	Kind     string
	Identity ExternalIdentity
	Count    int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Multiple %ss found for identifier %s", e.Kind, e.Identity)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func identifierTypeDescription(name string) string {
	return fmt.Sprintf("SHR generated patient identifier type for '%s'", name)
}

func attributeTypeDescription(name string) string {
	return fmt.Sprintf("SHR generated provider attribute type for '%s'", name)
}
