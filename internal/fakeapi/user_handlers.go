package fakeapi

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/equiptrack-client/users"
)

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return n
}

// merge overlays changes onto v through its JSON form. Keys in locked are ignored.
func merge(v any, changes map[string]any, locked ...string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	current := map[string]any{}
	if err := json.Unmarshal(raw, &current); err != nil {
		return err
	}
	for k, val := range changes {
		current[k] = val
	}
	for _, k := range locked {
		delete(current, k)
	}
	if raw, err = json.Marshal(current); err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *Server) filteredUsers(r *http.Request) []users.Profile {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	role := users.RoleType(q.Get("role"))
	active := q.Get("active")

	var out []users.Profile
	for _, p := range s.accounts.list() {
		if search != "" && !strings.Contains(strings.ToLower(p.Username+" "+p.Email+" "+p.FullName()), search) {
			continue
		}
		if role != "" && !p.HasRole(role) {
			continue
		}
		if active != "" && strconv.FormatBool(p.Active) != active {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *account) {
	writeJSON(w, http.StatusOK, page(r, s.filteredUsers(r), 15))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, _ *account) {
	var nu users.NewUser
	if !decodeBody(r, &nu) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	fieldErrors := required(map[string]string{"username": nu.Username, "email": nu.Email, "password": nu.Password})
	if _, err := s.accounts.byEmail(nu.Email); err == nil {
		fieldErrors["email"] = []string{"The email has already been taken."}
	}
	if len(fieldErrors) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.", fieldErrors)
		return
	}
	if nu.Role == "" {
		nu.Role = users.RoleStudent
	}
	p := s.AddUser(users.Profile{
		Username:   nu.Username,
		Email:      nu.Email,
		FirstName:  nu.FirstName,
		LastName:   nu.LastName,
		Department: nu.Department,
		Phone:      nu.Phone,
		Role:       nu.Role,
		Active:     true,
	}, nu.Password)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetMe(w http.ResponseWriter, _ *http.Request, a *account) {
	writeJSON(w, http.StatusOK, a.profile)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, a *account) {
	s.updateProfile(w, r, a, "id", "role", "roles", "permissions", "active", "email")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, a *account) {
	var req struct {
		Current string `json:"currentPassword"`
		Next    string `json:"newPassword"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	if !users.CheckPasswordHash(req.Current, a.passwordHash) {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"currentPassword": {"The current password is incorrect."}})
		return
	}
	s.setPassword(a, req.Next)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request, _ *account) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="users-export.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "username", "email", "role", "active"})
	for _, p := range s.filteredUsers(r) {
		_ = cw.Write([]string{p.ID, p.Username, p.Email, string(p.Role), strconv.FormatBool(p.Active)})
	}
	cw.Flush()
}

func (s *Server) userByPath(w http.ResponseWriter, r *http.Request) (*account, bool) {
	a, err := s.accounts.byID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return nil, false
	}
	return a, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ *account) {
	if a, ok := s.userByPath(w, r); ok {
		writeJSON(w, http.StatusOK, a.profile)
	}
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ *account) {
	if a, ok := s.userByPath(w, r); ok {
		s.updateProfile(w, r, a, "id")
	}
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, a *account, locked ...string) {
	var changes map[string]any
	if !decodeBody(r, &changes) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	id := a.profile.ID
	if err := merge(&a.profile, changes, locked...); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	a.profile.ID = id
	s.accounts.upsert(a)
	writeJSON(w, http.StatusOK, a.profile)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, _ *account) {
	if err := s.accounts.delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetUserStatus(w http.ResponseWriter, r *http.Request, _ *account) {
	a, ok := s.userByPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeBody(r, &req) || req.Active == nil {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"active": {"The active field is required."}})
		return
	}
	a.profile.Active = *req.Active
	s.accounts.upsert(a)
	writeJSON(w, http.StatusOK, a.profile)
}
