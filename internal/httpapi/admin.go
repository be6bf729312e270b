package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var errAdminRequired = errors.New("admin credentials required")

// AdminGate checks the shared admin secret carried in the X-Admin-Pass
// header. When a bcrypt hash is configured it takes precedence over the
// plaintext secret; the plaintext path compares in constant time.
type AdminGate struct {
	password     string
	passwordHash string
}

func NewAdminGate(password string, passwordHash string) *AdminGate {
	return &AdminGate{
		password:     password,
		passwordHash: strings.TrimSpace(passwordHash),
	}
}

func (g *AdminGate) Authorize(r *http.Request) error {
	candidate := strings.TrimSpace(r.Header.Get("X-Admin-Pass"))
	if candidate == "" {
		return errAdminRequired
	}

	if g.passwordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(candidate)); err != nil {
			return errAdminRequired
		}
		return nil
	}

	if g.password == "" {
		return errAdminRequired
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(g.password)) != 1 {
		return errAdminRequired
	}
	return nil
}

func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if err := a.admin.Authorize(r); err != nil {
		a.writeError(w, http.StatusForbidden, err)
		return false
	}
	return true
}
