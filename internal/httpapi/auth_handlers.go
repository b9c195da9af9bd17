package httpapi

import (
	"net/http"
	"time"

	"padisave.org/internal/audit"
	"padisave.org/internal/auth"
	"padisave.org/internal/user"
)

// tokenTTL matches the mobile client's session length.
const tokenTTL = 24 * time.Hour

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.users.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	session, err := a.newSession(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "user.signup", map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
	})
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	session, err := a.newSession(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "user.login", map[string]any{
		"user_id": u.ID,
	})
	writeJSON(w, http.StatusOK, session)
}

func (a *API) newSession(u *user.User) (*sessionResponse, error) {
	token, err := auth.GenerateToken(u.ID, u.FullName, tokenTTL)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
		User:      u,
	}, nil
}
