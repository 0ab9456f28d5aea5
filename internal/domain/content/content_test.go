package content

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_Immutable(t *testing.T) {
	payload := []byte("hello")
	meta := map[string]string{"k": "v"}
	c, err := New(Fields{Payload: payload, Representation: TXT, Meta: meta})
	require.NoError(t, err)

	payload[0] = 'J'
	meta["k"] = "changed"
	assert.Equal(t, "hello", string(c.Payload()))
	assert.Equal(t, "v", c.Meta()["k"])

	got := c.Payload()
	got[0] = 'Y'
	assert.Equal(t, "hello", string(c.Payload()))

	m := c.Meta()
	m["new"] = "x"
	assert.NotContains(t, c.Meta(), "new")
}

func TestContent_WithCreatedAtAndMeta(t *testing.T) {
	c, err := New(Fields{UniqueID: "u1", Representation: TXT})
	require.NoError(t, err)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	stamped := c.WithCreatedAt(ts).WithMeta(map[string]string{"cda.title": "CCD"})
	assert.Nil(t, c.CreatedAt())
	assert.Nil(t, c.Meta())
	require.NotNil(t, stamped.CreatedAt())
	assert.True(t, ts.Equal(*stamped.CreatedAt()))
	assert.Equal(t, "CCD", stamped.Meta()["cda.title"])
	assert.Equal(t, "u1", stamped.UniqueID())
}

func TestContent_JSON(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c, err := New(Fields{
		UniqueID:       "u1",
		Payload:        []byte("aGVsbG8="),
		TypeCode:       CodedValue{Code: "t", CodingScheme: "ts"},
		FormatCode:     CodedValue{Code: "f", CodingScheme: "fs", DisplayName: "Format"},
		MimeType:       "application/pdf",
		Representation: B64,
		CreatedAt:      &ts,
	})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"uniqueId": "u1",
		"payload": "aGVsbG8=",
		"url": false,
		"typeCode": {"code": "t", "codingScheme": "ts"},
		"formatCode": {"code": "f", "codingScheme": "fs", "displayName": "Format"},
		"contentType": "application/pdf",
		"representation": "B64",
		"created": "2024-05-01T10:00:00Z"
	}`, string(data))

	var decoded Content
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.Fields(), decoded.Fields())
}

func TestRepresentation_Valid(t *testing.T) {
	assert.True(t, TXT.Valid())
	assert.True(t, B64.Valid())
	assert.True(t, BINARY.Valid())
	assert.False(t, Representation("HEX").Valid())
}

func TestNew_RejectsUnknownRepresentation(t *testing.T) {
	for _, rep := range []Representation{"", "HEX", "txt"} {
		_, err := New(Fields{UniqueID: "u1", Representation: rep})
		assert.ErrorIs(t, err, ErrInvalidContent, string(rep))
	}
}

func TestContent_UnmarshalRejectsUnknownRepresentation(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"uniqueId":"u1","payload":"x","representation":"HEX"}`), &c)
	assert.ErrorIs(t, err, ErrInvalidContent)
}
