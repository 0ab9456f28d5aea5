package content

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Representation(t *testing.T) {
	body := []byte("some bytes \x00\x01")
	b64 := base64.StdEncoding.EncodeToString(body)

	tests := []struct {
		name     string
		mimeType string
		isURL    bool
		wantRep  Representation
		wantBody string
	}{
		{"plain text", "text/plain", false, TXT, string(body)},
		{"text with charset", "text/xml; charset=UTF-8", false, TXT, string(body)},
		{"upper case text", "TEXT/PLAIN", false, TXT, string(body)},
		{"xml", "application/xml", false, TXT, string(body)},
		{"xml variant", "application/xml+cda", false, TXT, string(body)},
		{"json", "application/json", false, TXT, string(body)},
		{"json variant", "application/json-patch", false, TXT, string(body)},
		{"text wins over url", "text/uri-list", true, TXT, string(body)},
		{"binary url", "application/pdf", true, BINARY, string(body)},
		{"binary", "application/pdf", false, B64, b64},
		{"image", "image/png", false, B64, b64},
		{"vendor xml is binary", "application/vnd.foo+xml", false, B64, b64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Build(BuildRequest{MimeType: tt.mimeType, Body: body, IsURL: tt.isURL})
			assert.Equal(t, tt.wantRep, c.Representation())
			assert.Equal(t, tt.wantBody, string(c.Payload()))
			assert.Equal(t, tt.isURL, c.IsURL())
			assert.Equal(t, tt.mimeType, c.MimeType())
		})
	}
}

func TestBuild_JSONExample(t *testing.T) {
	c := Build(BuildRequest{MimeType: "application/json", Body: []byte(`{"a":1}`)})
	assert.Equal(t, TXT, c.Representation())
	assert.Equal(t, []byte(`{"a":1}`), c.Payload())
}

func TestBuild_UniqueID(t *testing.T) {
	c := Build(BuildRequest{MimeType: "text/plain"})
	_, err := uuid.Parse(c.UniqueID())
	require.NoError(t, err)

	other := Build(BuildRequest{MimeType: "text/plain", UniqueID: "  "})
	assert.NotEqual(t, c.UniqueID(), other.UniqueID())

	given := Build(BuildRequest{MimeType: "text/plain", UniqueID: "doc-1"})
	assert.Equal(t, "doc-1", given.UniqueID())
}

func TestBuild_PassesCodesAndCharset(t *testing.T) {
	typeCode := CodedValue{Code: "34133-9", CodingScheme: "LOINC", DisplayName: "Summary"}
	formatCode := CodedValue{Code: "urn:ihe:pcc:xphr:2007", CodingScheme: "IHE"}

	c := Build(BuildRequest{
		MimeType:   "text/xml; charset=ISO-8859-1",
		Body:       []byte("<x/>"),
		TypeCode:   typeCode,
		FormatCode: formatCode,
		Charset:    "ISO-8859-1",
	})

	assert.Equal(t, typeCode, c.TypeCode())
	assert.Equal(t, formatCode, c.FormatCode())
	assert.Equal(t, "ISO-8859-1", c.Encoding())
	assert.Nil(t, c.CreatedAt())
}

func TestCharsetOf(t *testing.T) {
	assert.Equal(t, "UTF-8", CharsetOf("text/plain; charset=UTF-8"))
	assert.Equal(t, "utf-8", CharsetOf(`text/xml;charset="utf-8"`))
	assert.Equal(t, "", CharsetOf("application/pdf"))
	assert.Equal(t, "", CharsetOf(""))
}
