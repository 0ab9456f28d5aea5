package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit answers 413 for submissions larger than limit, a size such as
// "512K", "10M", "1G" or a plain byte count. A declared Content-Length is
// checked up front; chunked bodies fail on the read that crosses the limit.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch {
			case req.Body == nil || req.Body == http.NoBody:
			case req.ContentLength > maxBytes:
				return tooLarge(maxBytes)
			default:
				req.Body = &cappedBody{ReadCloser: req.Body, max: maxBytes}
			}
			return next(c)
		}
	}
}

// cappedBody reads at most max bytes; the read that would pass it fails.
type cappedBody struct {
	io.ReadCloser
	max  int64
	read int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.read > b.max {
		return 0, tooLarge(b.max)
	}
	if room := b.max - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return 0, tooLarge(b.max)
	}
	return n, err
}

func tooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", limit))
}

// parseLimit parses a size string into bytes. Unparseable input falls back
// to 10 MB.
func parseLimit(s string) int64 {
	const fallback = 10 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}

	return n * multiplier
}
