package api

import (
	"net/http"
	"strings"

	"logalert/internal/session"
)

const grantAll = "*"

// HeaderAuthorizer grants permissions listed in one request header.
// Params: comma separated permission names; "*" grants everything.
// Returns: session.Authorizer for one request.
type HeaderAuthorizer struct {
	all         bool
	permissions map[string]struct{}
}

// ParsePermissions builds authorizer from header value.
func ParsePermissions(value string) HeaderAuthorizer {
	out := HeaderAuthorizer{permissions: make(map[string]struct{})}
	for _, part := range strings.Split(value, ",") {
		permission := strings.TrimSpace(part)
		switch permission {
		case "":
		case grantAll:
			out.all = true
		default:
			out.permissions[permission] = struct{}{}
		}
	}
	return out
}

// IsPermitted reports whether the header granted permission.
func (a HeaderAuthorizer) IsPermitted(permission string) bool {
	if a.all {
		return true
	}
	_, ok := a.permissions[permission]
	return ok
}

func (h *Handler) authorizer(request *http.Request) session.Authorizer {
	return ParsePermissions(request.Header.Get(h.permissionsHeader))
}
