package docstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openhie/shr/internal/domain/content"
)

var ErrDocumentNotFound = fmt.Errorf("docstore: %w", content.ErrNotFound)

// Document maps to the document table. The payload itself lives in the
// blob store under BlobKey.
type Document struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	EncounterID        uuid.UUID         `db:"encounter_id" json:"encounter_id"`
	UniqueID           string            `db:"unique_id" json:"unique_id"`
	Handler            string            `db:"handler" json:"handler"`
	BlobKey            string            `db:"blob_key" json:"blob_key"`
	BlobHash           string            `db:"blob_hash" json:"blob_hash"`
	MimeType           string            `db:"mime_type" json:"mime_type"`
	Encoding           string            `db:"encoding" json:"encoding"`
	Representation     string            `db:"representation" json:"representation"`
	IsURL              bool              `db:"is_url" json:"is_url"`
	TypeCode           string            `db:"type_code" json:"type_code"`
	TypeCodingScheme   string            `db:"type_coding_scheme" json:"type_coding_scheme"`
	TypeDisplayName    string            `db:"type_display_name" json:"type_display_name"`
	FormatCode         string            `db:"format_code" json:"format_code"`
	FormatCodingScheme string            `db:"format_coding_scheme" json:"format_coding_scheme"`
	FormatDisplayName  string            `db:"format_display_name" json:"format_display_name"`
	Meta               map[string]string `db:"meta" json:"meta,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// newDocument describes c stored against encounterID.
func newDocument(encounterID uuid.UUID, handler, blobKey, blobHash string, c *content.Content) *Document {
	f := c.Fields()
	return &Document{
		EncounterID:        encounterID,
		UniqueID:           f.UniqueID,
		Handler:            handler,
		BlobKey:            blobKey,
		BlobHash:           blobHash,
		MimeType:           f.MimeType,
		Encoding:           f.Encoding,
		Representation:     string(f.Representation),
		IsURL:              f.IsURL,
		TypeCode:           f.TypeCode.Code,
		TypeCodingScheme:   f.TypeCode.CodingScheme,
		TypeDisplayName:    f.TypeCode.DisplayName,
		FormatCode:         f.FormatCode.Code,
		FormatCodingScheme: f.FormatCode.CodingScheme,
		FormatDisplayName:  f.FormatCode.DisplayName,
		Meta:               f.Meta,
	}
}

// Content rebuilds the content value from the row and its payload.
func (d *Document) Content(payload []byte) (*content.Content, error) {
	created := d.CreatedAt
	return content.New(content.Fields{
		UniqueID: d.UniqueID,
		Payload:  payload,
		IsURL:    d.IsURL,
		TypeCode: content.CodedValue{
			Code:         d.TypeCode,
			CodingScheme: d.TypeCodingScheme,
			DisplayName:  d.TypeDisplayName,
		},
		FormatCode: content.CodedValue{
			Code:         d.FormatCode,
			CodingScheme: d.FormatCodingScheme,
			DisplayName:  d.FormatDisplayName,
		},
		MimeType:       d.MimeType,
		Encoding:       d.Encoding,
		Representation: content.Representation(d.Representation),
		CreatedAt:      &created,
		Meta:           d.Meta,
	})
}
