package fakeapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/equiptrack-client/users"
)

func (s *Server) tokenBody(a *account, withUser bool) (map[string]any, error) {
	access, refresh, err := s.issueTokens(a.profile.ID)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"token":         access,
		"refresh_token": refresh,
		"expires_in":    s.expiresIn(),
	}
	if withUser {
		body["user"] = a.profile
	}
	return body, nil
}

func required(fields map[string]string) map[string][]string {
	missing := map[string][]string{}
	for name, value := range fields {
		if value == "" {
			missing[name] = []string{"The " + name + " field is required."}
		}
	}
	return missing
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(r, &creds) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	if missing := required(map[string]string{"email": creds.Email, "password": creds.Password}); len(missing) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.", missing)
		return
	}

	a, err := s.accounts.byEmail(creds.Email)
	if err != nil || !users.CheckPasswordHash(creds.Password, a.passwordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if !a.profile.Active {
		writeError(w, http.StatusForbidden, "Account disabled", nil)
		return
	}

	body, err := s.tokenBody(a, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// handleRefresh rotates the refresh token. The response carries no user.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(r, &req) || req.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token required", nil)
		return
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[req.RefreshToken]
	delete(s.refreshTokens, req.RefreshToken)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Refresh token expired or revoked", nil)
		return
	}

	a, err := s.accounts.byID(userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unknown account", nil)
		return
	}
	body, err := s.tokenBody(a, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, _ *http.Request, a *account) {
	writeJSON(w, http.StatusOK, map[string]any{"user": a.profile})
}

// handleRegister creates a student account and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg struct {
		Username             string `json:"username"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
		FirstName            string `json:"first_name"`
		LastName             string `json:"last_name"`
		Department           string `json:"department"`
	}
	if !decodeBody(r, &reg) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	fieldErrors := required(map[string]string{"username": reg.Username, "email": reg.Email, "password": reg.Password})
	if reg.PasswordConfirmation != "" && reg.PasswordConfirmation != reg.Password {
		fieldErrors["password_confirmation"] = []string{"The password confirmation does not match."}
	}
	if _, err := s.accounts.byEmail(reg.Email); err == nil {
		fieldErrors["email"] = []string{"The email has already been taken."}
	}
	if len(fieldErrors) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.", fieldErrors)
		return
	}

	profile := s.AddUser(users.Profile{
		Username:    reg.Username,
		Email:       reg.Email,
		FirstName:   reg.FirstName,
		LastName:    reg.LastName,
		Department:  reg.Department,
		Role:        users.RoleStudent,
		Permissions: []string{"equipment:read", "equipment:borrow"},
		Active:      true,
	}, reg.Password)

	a, err := s.accounts.byID(profile.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	body, err := s.tokenBody(a, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	a, err := s.accounts.byEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "No account with that email", nil)
		return
	}

	s.mu.Lock()
	s.resetTokens[uuid.New().String()] = a.profile.Email
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset link sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token                string `json:"token"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	s.mu.Lock()
	email, ok := s.resetTokens[req.Token]
	s.mu.Unlock()
	if !ok || email != req.Email {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token", nil)
		return
	}
	if req.Password == "" || req.Password != req.PasswordConfirmation {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"password": {"The password confirmation does not match."}})
		return
	}

	a, err := s.accounts.byEmail(email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token", nil)
		return
	}
	s.setPassword(a, req.Password)

	s.mu.Lock()
	delete(s.resetTokens, req.Token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

func (s *Server) setPassword(a *account, password string) {
	hash, err := users.HashPassword(password)
	if err != nil {
		panic(err)
	}
	a.passwordHash = hash
	s.accounts.upsert(a)
}
