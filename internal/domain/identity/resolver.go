package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Resolver maps external identifiers onto internal patients and providers,
// creating placeholder entities on first sight.
type Resolver struct {
	patients  PatientRepository
	providers ProviderRepository
	cache     Cache
	logger    zerolog.Logger
}

func NewResolver(patients PatientRepository, providers ProviderRepository, cache Cache, logger zerolog.Logger) *Resolver {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Resolver{patients: patients, providers: providers, cache: cache, logger: logger}
}

// ResolvePatient returns the single patient holding id under typeName.
// An unknown type or identifier yields ErrNotFound and more than one match
// yields a *ConflictError.
func (r *Resolver) ResolvePatient(ctx context.Context, id, typeName string) (*Patient, error) {
	ext := ExternalIdentity{Value: id, TypeName: typeName}
	p, _, err := r.lookupPatient(ctx, ext)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("patient %s: %w", ext, ErrNotFound)
	}
	return p, nil
}

// ResolveOrCreatePatient behaves like ResolvePatient but creates the
// identifier type and a placeholder patient when nothing matches.
func (r *Resolver) ResolveOrCreatePatient(ctx context.Context, id, typeName string) (Resolved[*Patient], error) {
	ext := ExternalIdentity{Value: id, TypeName: typeName}
	p, typeID, err := r.lookupPatient(ctx, ext)
	if err != nil {
		return Resolved[*Patient]{}, err
	}
	if p != nil {
		return Resolved[*Patient]{Entity: p, Outcome: Found}, nil
	}

	if typeID == uuid.Nil {
		idType := &IdentifierType{Name: typeName, Description: identifierTypeDescription(typeName)}
		if err := r.patients.CreateIdentifierType(ctx, idType); err != nil {
			return Resolved[*Patient]{}, fmt.Errorf("create identifier type %q: %w", typeName, err)
		}
		typeID = idType.ID
		r.remember(ctx, kindPatient, typeName, typeID)
		r.logger.Info().Str("identifier_type", typeName).Msg("created patient identifier type")
	}

	p = &Patient{
		GivenName:  PlaceholderGivenName,
		FamilyName: PlaceholderFamilyName,
		Gender:     PlaceholderGender,
		Identifiers: []*PatientIdentifier{{
			IdentifierTypeID: typeID,
			Value:            id,
			Preferred:        true,
		}},
	}
	if err := r.patients.Create(ctx, p); err != nil {
		return Resolved[*Patient]{}, fmt.Errorf("create patient %s: %w", ext, err)
	}
	r.logger.Info().Str("patient_id_type", typeName).Str("patient_id", id).
		Str("patient_uuid", p.ID.String()).Msg("created placeholder patient")

	return Resolved[*Patient]{Entity: p, Outcome: Created}, nil
}

// ResolveOrCreateProvider returns the single provider carrying id as an
// attribute of type typeName, creating the attribute type and a placeholder
// provider when nothing matches.
func (r *Resolver) ResolveOrCreateProvider(ctx context.Context, id, typeName string) (Resolved[*Provider], error) {
	ext := ExternalIdentity{Value: id, TypeName: typeName}
	p, typeID, err := r.lookupProvider(ctx, ext)
	if err != nil {
		return Resolved[*Provider]{}, err
	}
	if p != nil {
		return Resolved[*Provider]{Entity: p, Outcome: Found}, nil
	}

	if typeID == uuid.Nil {
		attrType := &ProviderAttributeType{
			Name:        typeName,
			Datatype:    FreeTextDatatype,
			Description: attributeTypeDescription(typeName),
		}
		if err := r.providers.CreateAttributeType(ctx, attrType); err != nil {
			return Resolved[*Provider]{}, fmt.Errorf("create provider attribute type %q: %w", typeName, err)
		}
		typeID = attrType.ID
		r.remember(ctx, kindProvider, typeName, typeID)
		r.logger.Info().Str("attribute_type", typeName).Msg("created provider attribute type")
	}

	p = &Provider{
		Name: PlaceholderProviderName,
		Attributes: []*ProviderAttribute{{
			AttributeTypeID: typeID,
			Value:           id,
		}},
	}
	if err := r.providers.Create(ctx, p); err != nil {
		return Resolved[*Provider]{}, fmt.Errorf("create provider %s: %w", ext, err)
	}
	r.logger.Info().Str("provider_id_type", typeName).Str("provider_id", id).
		Str("provider_uuid", p.ID.String()).Msg("created placeholder provider")

	return Resolved[*Provider]{Entity: p, Outcome: Created}, nil
}

// lookupPatient returns the single matching patient, or nil with the
// identifier type id (uuid.Nil when the type itself is unknown). Matches are
// always counted in the store; a cached type id only saves the type lookup,
// and a miss under a cached id is confirmed against the store.
func (r *Resolver) lookupPatient(ctx context.Context, ext ExternalIdentity) (*Patient, uuid.UUID, error) {
	typeID, cached, err := r.patientType(ctx, ext.TypeName, true)
	if err != nil {
		return nil, uuid.Nil, err
	}
	matches, err := r.findPatients(ctx, ext, typeID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(matches) == 0 && cached {
		if typeID, _, err = r.patientType(ctx, ext.TypeName, false); err != nil {
			return nil, uuid.Nil, err
		}
		if matches, err = r.findPatients(ctx, ext, typeID); err != nil {
			return nil, uuid.Nil, err
		}
	}

	switch len(matches) {
	case 0:
		return nil, typeID, nil
	case 1:
		return matches[0], typeID, nil
	default:
		cerr := &ConflictError{Kind: kindPatient, Identity: ext, Count: len(matches)}
		r.logger.Error().Str("patient_id_type", ext.TypeName).Str("patient_id", ext.Value).
			Int("matches", len(matches)).Msg(cerr.Error())
		return nil, uuid.Nil, cerr
	}
}

func (r *Resolver) patientType(ctx context.Context, name string, useCache bool) (uuid.UUID, bool, error) {
	if useCache {
		if id, ok := r.cached(ctx, kindPatient, name); ok {
			return id, true, nil
		}
	}
	t, err := r.patients.FindIdentifierType(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find identifier type %q: %w", name, err)
	}
	r.remember(ctx, kindPatient, name, t.ID)
	return t.ID, false, nil
}

func (r *Resolver) findPatients(ctx context.Context, ext ExternalIdentity, typeID uuid.UUID) ([]*Patient, error) {
	if typeID == uuid.Nil {
		return nil, nil
	}
	matches, err := r.patients.FindByIdentifier(ctx, typeID, ext.Value)
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", ext, err)
	}
	return matches, nil
}

func (r *Resolver) lookupProvider(ctx context.Context, ext ExternalIdentity) (*Provider, uuid.UUID, error) {
	typeID, cached, err := r.providerType(ctx, ext.TypeName, true)
	if err != nil {
		return nil, uuid.Nil, err
	}
	matches, err := r.findProviders(ctx, ext, typeID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(matches) == 0 && cached {
		if typeID, _, err = r.providerType(ctx, ext.TypeName, false); err != nil {
			return nil, uuid.Nil, err
		}
		if matches, err = r.findProviders(ctx, ext, typeID); err != nil {
			return nil, uuid.Nil, err
		}
	}

	switch len(matches) {
	case 0:
		return nil, typeID, nil
	case 1:
		return matches[0], typeID, nil
	default:
		cerr := &ConflictError{Kind: kindProvider, Identity: ext, Count: len(matches)}
		r.logger.Error().Str("provider_id_type", ext.TypeName).Str("provider_id", ext.Value).
			Int("matches", len(matches)).Msg(cerr.Error())
		return nil, uuid.Nil, cerr
	}
}

func (r *Resolver) providerType(ctx context.Context, name string, useCache bool) (uuid.UUID, bool, error) {
	if useCache {
		if id, ok := r.cached(ctx, kindProvider, name); ok {
			return id, true, nil
		}
	}
	t, err := r.providers.FindAttributeType(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find provider attribute type %q: %w", name, err)
	}
	r.remember(ctx, kindProvider, name, t.ID)
	return t.ID, false, nil
}

func (r *Resolver) findProviders(ctx context.Context, ext ExternalIdentity, typeID uuid.UUID) ([]*Provider, error) {
	if typeID == uuid.Nil {
		return nil, nil
	}
	matches, err := r.providers.FindByAttribute(ctx, typeID, ext.Value)
	if err != nil {
		return nil, fmt.Errorf("find provider %s: %w", ext, err)
	}
	return matches, nil
}

func (r *Resolver) cached(ctx context.Context, kind, typeName string) (uuid.UUID, bool) {
	id, ok, err := r.cache.Get(ctx, kind, typeName)
	if err != nil {
		r.logger.Warn().Err(err).Str("kind", kind).Str("type", typeName).Msg("identity cache lookup failed")
		return uuid.Nil, false
	}
	return id, ok
}

func (r *Resolver) remember(ctx context.Context, kind, typeName string, id uuid.UUID) {
	if err := r.cache.Set(ctx, kind, typeName, id); err != nil {
		r.logger.Warn().Err(err).Str("kind", kind).Str("type", typeName).Msg("identity cache store failed")
	}
}
