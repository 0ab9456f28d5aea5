package content

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Representation is the encoding family of a content payload.
type Representation string

const (
	TXT    Representation = "TXT"
	B64    Representation = "B64"
	BINARY Representation = "BINARY"
)

func (r Representation) Valid() bool {
	switch r {
	case TXT, B64, BINARY:
		return true
	}
	return false
}

// CodedValue is a code qualified by its coding scheme.
type CodedValue struct {
	Code         string `json:"code" validate:"required"`
	CodingScheme string `json:"codingScheme" validate:"required"`
	DisplayName  string `json:"displayName,omitempty"`
}

// Fields holds the attributes of a Content value.
type Fields struct {
	UniqueID       string
	Payload        []byte
	IsURL          bool
	TypeCode       CodedValue
	FormatCode     CodedValue
	MimeType       string
	Encoding       string
	Representation Representation
	CreatedAt      *time.Time
	Meta           map[string]string
}

// Content is one submitted or retrieved document. It is immutable: all
// accessors return copies.
type Content struct {
	f Fields
}

// New rebuilds a Content value from stored fields. Submissions go through
// Build, which picks the representation; New only accepts one of TXT, B64
// and BINARY and rejects anything else with ErrInvalidContent.
func New(f Fields) (*Content, error) {
	if !f.Representation.Valid() {
		return nil, fmt.Errorf("%w: unknown representation %q", ErrInvalidContent, f.Representation)
	}
	return newContent(f), nil
}

func newContent(f Fields) *Content {
	return &Content{f: copyFields(f)}
}

func (c *Content) UniqueID() string               { return c.f.UniqueID }
func (c *Content) Payload() []byte                { return append([]byte(nil), c.f.Payload...) }
func (c *Content) IsURL() bool                    { return c.f.IsURL }
func (c *Content) TypeCode() CodedValue           { return c.f.TypeCode }
func (c *Content) FormatCode() CodedValue         { return c.f.FormatCode }
func (c *Content) MimeType() string               { return c.f.MimeType }
func (c *Content) Encoding() string               { return c.f.Encoding }
func (c *Content) Representation() Representation { return c.f.Representation }
func (c *Content) PayloadSize() int               { return len(c.f.Payload) }
func (c *Content) Fields() Fields                 { return copyFields(c.f) }

func (c *Content) CreatedAt() *time.Time {
	if c.f.CreatedAt == nil {
		return nil
	}
	t := *c.f.CreatedAt
	return &t
}

func (c *Content) Meta() map[string]string {
	return copyMeta(c.f.Meta)
}

// WithCreatedAt returns a copy of c stamped with t.
func (c *Content) WithCreatedAt(t time.Time) *Content {
	f := copyFields(c.f)
	f.CreatedAt = &t
	return &Content{f: f}
}

// WithMeta returns a copy of c with meta merged over its existing entries.
func (c *Content) WithMeta(meta map[string]string) *Content {
	f := copyFields(c.f)
	if f.Meta == nil && len(meta) > 0 {
		f.Meta = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		f.Meta[k] = v
	}
	return &Content{f: f}
}

type contentJSON struct {
	UniqueID       string            `json:"uniqueId"`
	Payload        string            `json:"payload"`
	IsURL          bool              `json:"url"`
	TypeCode       CodedValue        `json:"typeCode"`
	FormatCode     CodedValue        `json:"formatCode"`
	ContentType    string            `json:"contentType"`
	Encoding       string            `json:"encoding,omitempty"`
	Representation Representation    `json:"representation"`
	Created        *time.Time        `json:"created,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// MarshalJSON renders the payload as a string: it is already in its
// textual form for every representation.
func (c *Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{
		UniqueID:       c.f.UniqueID,
		Payload:        string(c.f.Payload),
		IsURL:          c.f.IsURL,
		TypeCode:       c.f.TypeCode,
		FormatCode:     c.f.FormatCode,
		ContentType:    c.f.MimeType,
		Encoding:       c.f.Encoding,
		Representation: c.f.Representation,
		Created:        c.f.CreatedAt,
		Meta:           c.f.Meta,
	})
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var j contentJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if !j.Representation.Valid() {
		return fmt.Errorf("%w: unknown representation %q", ErrInvalidContent, j.Representation)
	}
	c.f = Fields{
		UniqueID:       j.UniqueID,
		Payload:        []byte(j.Payload),
		IsURL:          j.IsURL,
		TypeCode:       j.TypeCode,
		FormatCode:     j.FormatCode,
		MimeType:       j.ContentType,
		Encoding:       j.Encoding,
		Representation: j.Representation,
		CreatedAt:      j.Created,
		Meta:           j.Meta,
	}
	return nil
}

func copyFields(f Fields) Fields {
	f.Payload = append([]byte(nil), f.Payload...)
	f.Meta = copyMeta(f.Meta)
	if f.CreatedAt != nil {
		t := *f.CreatedAt
		f.CreatedAt = &t
	}
	return f
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
