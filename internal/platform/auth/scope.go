package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireScope checks that the client was granted resource.operation, for
// example RequireScope("shr/document", "write").
func RequireScope(resource, operation string) echo.MiddlewareFunc {
	required := resource + "." + operation
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, scope := range ScopesFromContext(c.Request().Context()) {
				if matchScope(scope, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required scope: %s", required))
		}
	}
}

// matchScope reports whether granted covers required. "shr/*.read" covers
// any read under shr/ and "shr/*.*" covers everything.
func matchScope(granted, required string) bool {
	if granted == required {
		return true
	}

	gRes, gOp, ok := strings.Cut(granted, ".")
	if !ok {
		return false
	}
	rRes, rOp, ok := strings.Cut(required, ".")
	if !ok {
		return false
	}

	resMatch := gRes == rRes
	if prefix, found := strings.CutSuffix(gRes, "*"); found {
		resMatch = strings.HasPrefix(rRes, prefix)
	}
	opMatch := gOp == rOp || gOp == "*"

	return resMatch && opMatch
}
