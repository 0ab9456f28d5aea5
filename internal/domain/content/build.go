package content

import (
	"encoding/base64"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// BuildRequest carries a raw submission before a representation is chosen.
type BuildRequest struct {
	UniqueID   string
	MimeType   string
	Body       []byte
	IsURL      bool
	TypeCode   CodedValue
	FormatCode CodedValue
	Charset    string
}

// Build selects the payload representation for req and assembles the
// Content value:
//
//   - text/*, application/xml* and application/json* are kept verbatim as TXT
//   - other types flagged as URL are kept verbatim as BINARY
//   - everything else is base64 encoded as B64
//
// An empty UniqueID is replaced with a random UUID.
func Build(req BuildRequest) *Content {
	uniqueID := strings.TrimSpace(req.UniqueID)
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	}

	var (
		payload []byte
		rep     Representation
	)
	switch {
	case IsTextBased(req.MimeType):
		payload, rep = req.Body, TXT
	case req.IsURL:
		payload, rep = req.Body, BINARY
	default:
		payload = make([]byte, base64.StdEncoding.EncodedLen(len(req.Body)))
		base64.StdEncoding.Encode(payload, req.Body)
		rep = B64
	}

	return newContent(Fields{
		UniqueID:       uniqueID,
		Payload:        payload,
		IsURL:          req.IsURL,
		TypeCode:       req.TypeCode,
		FormatCode:     req.FormatCode,
		MimeType:       req.MimeType,
		Encoding:       req.Charset,
		Representation: rep,
	})
}

// IsTextBased reports whether a declared content type carries text.
func IsTextBased(mimeType string) bool {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(t, "text/") ||
		strings.HasPrefix(t, "application/xml") ||
		strings.HasPrefix(t, "application/json")
}

// CharsetOf returns the charset parameter of a Content-Type header value.
func CharsetOf(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
