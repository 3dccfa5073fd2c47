package users

import (
	"context"
	"errors"
	"net/url"

	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
)

// ErrWeakPassword is returned before any request is made when a new password fails
// ValidatePasswordStrength.
var ErrWeakPassword = errors.New("weak password")

// NewUser is the payload for creating an account.
type NewUser struct {
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	FirstName  string   `json:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Department string   `json:"department,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Role       RoleType `json:"role,omitempty"`
}

// ListParams filters the /users listing. Zero values are omitted.
type ListParams struct {
	Page    int
	PerPage int
	Search  string
	Role    RoleType
	Active  *bool
	Sort    string
}

func (p ListParams) query() map[string]any {
	q := map[string]any{}
	if p.Page > 0 {
		q["page"] = p.Page
	}
	if p.PerPage > 0 {
		q["per_page"] = p.PerPage
	}
	if p.Search != "" {
		q["search"] = p.Search
	}
	if p.Role != "" {
		q["role"] = string(p.Role)
	}
	if p.Active != nil {
		q["active"] = *p.Active
	}
	if p.Sort != "" {
		q["sort"] = p.Sort
	}
	return q
}

// Service manages user accounts through the REST API
type Service struct {
	api httpclient.API
	bus *events.Bus
}

func NewService(api httpclient.API, bus *events.Bus) *Service {
	return &Service{api: api, bus: bus}
}

func (s *Service) List(ctx context.Context, params ListParams) (*httpclient.Page[Profile], error) {
	resp, err := s.api.Get(ctx, "/users", httpclient.WithParams(params.query()))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.List]")
	}
	return httpclient.DecodeAs[httpclient.Page[Profile]](resp)
}

func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	resp, err := s.api.Get(ctx, "/users/"+url.PathEscape(id))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Get] user %s", id)
	}
	return httpclient.DecodeAs[Profile](resp)
}

func (s *Service) Create(ctx context.Context, user NewUser) (*Profile, error) {
	if err := ValidatePasswordStrength(user.Password); err != nil {
		return nil, apperrors.Wrapf(ErrWeakPassword, "[Service.Create] %s", err)
	}
	resp, err := s.api.Post(ctx, "/users", user)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Create] user %s", user.Email)
	}
	p, err := httpclient.DecodeAs[Profile](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.UserCreated, p)
	return p, nil
}

// Update applies a partial update and returns the stored profile.
func (s *Service) Update(ctx context.Context, id string, changes map[string]any) (*Profile, error) {
	resp, err := s.api.Put(ctx, "/users/"+url.PathEscape(id), changes)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Update] user %s", id)
	}
	p, err := httpclient.DecodeAs[Profile](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.UserUpdated, p)
	return p, nil
}

// Delete removes the account. The deleted event carries the profile as it was before
// deletion when it could be fetched.
func (s *Service) Delete(ctx context.Context, id string) error {
	before, err := s.Get(ctx, id)
	if err != nil {
		before = &Profile{ID: id}
	}
	if _, err := s.api.Delete(ctx, "/users/"+url.PathEscape(id)); err != nil {
		return apperrors.Wrapf(err, "[Service.Delete] user %s", id)
	}
	s.bus.Emit(events.UserDeleted, before)
	return nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Profile, error) {
	resp, err := s.api.Patch(ctx, "/users/"+url.PathEscape(id)+"/status", map[string]bool{"active": active})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.SetActive] user %s", id)
	}
	p, err := httpclient.DecodeAs[Profile](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.UserUpdated, p)
	return p, nil
}

func (s *Service) Me(ctx context.Context) (*Profile, error) {
	resp, err := s.api.Get(ctx, "/users/me")
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Me]")
	}
	return httpclient.DecodeAs[Profile](resp)
}

func (s *Service) UpdateMe(ctx context.Context, changes map[string]any) (*Profile, error) {
	resp, err := s.api.Put(ctx, "/users/me", changes)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.UpdateMe]")
	}
	p, err := httpclient.DecodeAs[Profile](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.UserUpdated, p)
	return p, nil
}

func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	if err := ValidatePasswordStrength(next); err != nil {
		return apperrors.Wrapf(ErrWeakPassword, "[Service.ChangePassword] %s", err)
	}
	body := map[string]string{"currentPassword": current, "newPassword": next}
	if _, err := s.api.Put(ctx, "/users/me/password", body); err != nil {
		return apperrors.Wrapf(err, "[Service.ChangePassword]")
	}
	return nil
}

// ExportCSV downloads the user list as CSV.
func (s *Service) ExportCSV(ctx context.Context, params ListParams) (*httpclient.Download, error) {
	dl, err := s.api.Download(ctx, "/users/export/csv", "users.csv", httpclient.WithParams(params.query()))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.ExportCSV]")
	}
	return dl, nil
}
