package equipment

import (
	"context"
	"io"
	"maps"
	"net/url"

	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
)

// ListParams filters the /equipments listing. Zero values are omitted.
type ListParams struct {
	Page     int
	PerPage  int
	Status   Status
	Category string
	Location string
	Search   string
	Sort     string
}

func (p ListParams) query() map[string]any {
	q := map[string]any{}
	if p.Page > 0 {
		q["page"] = p.Page
	}
	if p.PerPage > 0 {
		q["per_page"] = p.PerPage
	}
	if p.Status != "" {
		q["status"] = string(p.Status)
	}
	if p.Category != "" {
		q["category"] = p.Category
	}
	if p.Location != "" {
		q["location"] = p.Location
	}
	if p.Search != "" {
		q["search"] = p.Search
	}
	if p.Sort != "" {
		q["sort"] = p.Sort
	}
	return q
}

// SearchOptions paginate and sort a search. Sort maps a field to 1 or -1.
type SearchOptions struct {
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Sort  map[string]int `json:"sort"`
}

// DefaultSearchOptions returns the first ten items, newest first.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Page: 1, Limit: 10, Sort: map[string]int{"createdAt": -1}}
}

// Service manages the equipment catalogue through the REST API
type Service struct {
	api httpclient.API
	bus *events.Bus
}

func NewService(api httpclient.API, bus *events.Bus) *Service {
	return &Service{api: api, bus: bus}
}

func path(id string, rest ...string) string {
	p := "/equipments/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (s *Service) List(ctx context.Context, params ListParams) (*httpclient.Page[Equipment], error) {
	resp, err := s.api.Get(ctx, "/equipments", httpclient.WithParams(params.query()))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.List]")
	}
	return httpclient.DecodeAs[httpclient.Page[Equipment]](resp)
}

// Get fetches an item by id or QR code.
func (s *Service) Get(ctx context.Context, id string) (*Equipment, error) {
	resp, err := s.api.Get(ctx, path(id))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Get] equipment %s", id)
	}
	return httpclient.DecodeAs[Equipment](resp)
}

func (s *Service) Create(ctx context.Context, e Equipment) (*Equipment, error) {
	if e.Status == "" {
		e.Status = StatusAvailable
	}
	if !e.Status.Valid() {
		return nil, apperrors.Wrapf(ErrInvalidStatus, "[Service.Create] %q", e.Status)
	}
	resp, err := s.api.Post(ctx, "/equipments", e)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Create] equipment %s", e.Name)
	}
	created, err := httpclient.DecodeAs[Equipment](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.EquipmentAdded, created)
	return created, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, changes map[string]any) (*Equipment, error) {
	resp, err := s.api.Put(ctx, path(id), changes)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Update] equipment %s", id)
	}
	updated, err := httpclient.DecodeAs[Equipment](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.EquipmentUpdated, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.api.Delete(ctx, path(id)); err != nil {
		return apperrors.Wrapf(err, "[Service.Delete] equipment %s", id)
	}
	s.bus.Emit(events.EquipmentDeleted, id)
	return nil
}

// UpdateStatus changes the status and emits the previous and new status.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, notes string) (*Equipment, error) {
	if !status.Valid() {
		return nil, apperrors.Wrapf(ErrInvalidStatus, "[Service.UpdateStatus] %q", status)
	}
	resp, err := s.api.Patch(ctx, path(id, "status"), map[string]string{"status": string(status), "notes": notes})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.UpdateStatus] equipment %s", id)
	}

	var body struct {
		Equipment      Equipment `json:"equipment"`
		PreviousStatus Status    `json:"previous_status"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	s.bus.Emit(events.EquipmentStatusChanged, &body.Equipment, body.PreviousStatus, status)
	return &body.Equipment, nil
}

// RecordUsage adds a usage entry; extra fields (notes, user_id, ...) are sent alongside type.
func (s *Service) RecordUsage(ctx context.Context, id string, usageType UsageType, fields map[string]any) (*Usage, error) {
	if !usageType.Valid() {
		return nil, apperrors.Wrapf(ErrInvalidUsageType, "[Service.RecordUsage] %q", usageType)
	}
	body := maps.Clone(fields)
	if body == nil {
		body = map[string]any{}
	}
	body["type"] = string(usageType)

	resp, err := s.api.Post(ctx, path(id, "usage"), body)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.RecordUsage] equipment %s", id)
	}
	usage, err := httpclient.DecodeAs[Usage](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.UsageRecorded, usage)
	return usage, nil
}

func (s *Service) History(ctx context.Context, id string, params map[string]any) (*httpclient.Page[Usage], error) {
	resp, err := s.api.Get(ctx, path(id, "history"), httpclient.WithParams(params))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.History] equipment %s", id)
	}
	return httpclient.DecodeAs[httpclient.Page[Usage]](resp)
}

// Search posts structured criteria. Zero fields of opts take DefaultSearchOptions values.
func (s *Service) Search(ctx context.Context, criteria map[string]any, opts SearchOptions) (*httpclient.Page[Equipment], error) {
	def := DefaultSearchOptions()
	if opts.Page <= 0 {
		opts.Page = def.Page
	}
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if len(opts.Sort) == 0 {
		opts.Sort = def.Sort
	}
	if criteria == nil {
		criteria = map[string]any{}
	}

	resp, err := s.api.Post(ctx, "/equipments/search", map[string]any{"criteria": criteria, "options": opts})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Search]")
	}
	page, err := httpclient.DecodeAs[httpclient.Page[Equipment]](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.SearchPerformed, criteria, page.Total)
	return page, nil
}

func (s *Service) ExportCSV(ctx context.Context, filters map[string]any) (*httpclient.Download, error) {
	dl, err := s.api.Download(ctx, "/equipments/export/csv", "equipments-export.csv", httpclient.WithParams(filters))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.ExportCSV]")
	}
	return dl, nil
}

// Import uploads a CSV file of equipment. options are sent as extra form fields.
func (s *Service) Import(ctx context.Context, file io.Reader, fileName string, options map[string]any) (*ImportResult, error) {
	resp, err := s.api.Upload(ctx, "/equipments/import", &httpclient.Multipart{
		FieldName: "file",
		FileName:  fileName,
		File:      file,
		Fields:    options,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Import] %s", fileName)
	}
	result, err := httpclient.DecodeAs[ImportResult](resp)
	if err != nil {
		return nil, err
	}
	s.bus.Emit(events.EquipmentImported, result)
	return result, nil
}

// GenerateQRCode asks the server for an unused QR code value.
func (s *Service) GenerateQRCode(ctx context.Context) (string, error) {
	resp, err := s.api.Post(ctx, "/equipments/generate-qr", nil)
	if err != nil {
		return "", apperrors.Wrapf(err, "[Service.GenerateQRCode]")
	}
	var body struct {
		QRCode string `json:"qrCode"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", err
	}
	return body.QRCode, nil
}

func (s *Service) Statistics(ctx context.Context, params map[string]any) (*Statistics, error) {
	resp, err := s.api.Get(ctx, "/equipments/statistics", httpclient.WithParams(params))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Service.Statistics]")
	}
	return httpclient.DecodeAs[Statistics](resp)
}
