package handlers

import (
	"net/http"
)

// AuthHandler handles authentication-related endpoints. Tokens are issued
// elsewhere; this service only verifies them.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// VerifyToken reports the identity carried by the caller's bearer token.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "user not found")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"user_id": identity.UserID,
		"email":   identity.Email,
	})
}
