package server

import "net/http"

// Caller roles, as resolved by the upstream identity collaborator.
const (
	RoleAdmin          = "admin"
	RoleDoctor         = "doctor"
	RoleInactiveDoctor = "inactive_doctor"
)

// Identity is the already-resolved caller. This service never parses
// credentials; the gateway in front of it sets these headers after
// authentication.
type Identity struct {
	ID   string
	Role string
}

// IsAdmin reports whether the caller sees all doctors' data.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// CanWrite reports whether the caller may use the write endpoints.
// Inactive doctors keep read access to their historical data only.
func (id Identity) CanWrite() bool {
	return id.Role == RoleAdmin || id.Role == RoleDoctor
}

// identityHandler receives the resolved caller alongside the request.
type identityHandler func(w http.ResponseWriter, r *http.Request, id Identity)

// withIdentity extracts the resolved caller from the gateway headers.
// Requests without an identity are rejected; role defaults to doctor
// when the gateway omits it.
func (s *Server) withIdentity(h identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			ID:   r.Header.Get("X-Caller-ID"),
			Role: r.Header.Get("X-Caller-Role"),
		}
		if id.ID == "" {
			writeError(w, http.StatusUnauthorized,
				"missing caller identity")
			return
		}
		if id.Role == "" {
			id.Role = RoleDoctor
		}
		h(w, r, id)
	}
}

// scopeDoctor returns the doctor id the caller's reads are scoped to:
// "" (all doctors) for admins, the caller's own id otherwise.
func scopeDoctor(id Identity) string {
	if id.IsAdmin() {
		return ""
	}
	return id.ID
}
