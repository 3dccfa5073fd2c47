package fakeapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jrsteele09/equiptrack-client/equipment"
)

// AddEquipment seeds the catalogue.
func (s *Server) AddEquipment(e equipment.Equipment) equipment.Equipment {
	return s.catalog.add(e, s.nowTime())
}

func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	q := r.URL.Query()
	items := s.catalog.filter(q.Get("status"), q.Get("category"), q.Get("location"), q.Get("search"))
	writeJSON(w, http.StatusOK, page(r, items, 10))
}

func (s *Server) handleCreateEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	var e equipment.Equipment
	if !decodeBody(r, &e) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	fieldErrors := required(map[string]string{"name": e.Name})
	if e.Status != "" && !e.Status.Valid() {
		fieldErrors["status"] = []string{"The selected status is invalid."}
	}
	if len(fieldErrors) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.", fieldErrors)
		return
	}
	e.ID = ""
	writeJSON(w, http.StatusCreated, s.AddEquipment(e))
}

func (s *Server) equipmentByPath(w http.ResponseWriter, r *http.Request) (equipment.Equipment, bool) {
	e, ok := s.catalog.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Equipment not found", nil)
	}
	return e, ok
}

func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	if e, ok := s.equipmentByPath(w, r); ok {
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleUpdateEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	e, ok := s.equipmentByPath(w, r)
	if !ok {
		return
	}
	var changes map[string]any
	if !decodeBody(r, &changes) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	if err := merge(&e, changes, "id", "created_at", "updated_at"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	if !e.Status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"status": {"The selected status is invalid."}})
		return
	}
	s.catalog.put(e, s.nowTime())
	e, _ = s.catalog.get(e.ID)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	if !s.catalog.remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Equipment not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEquipmentStatus(w http.ResponseWriter, r *http.Request, _ *account) {
	e, ok := s.equipmentByPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Status equipment.Status `json:"status"`
		Notes  string           `json:"notes"`
	}
	if !decodeBody(r, &req) || !req.Status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"status": {"The selected status is invalid."}})
		return
	}
	previous := e.Status
	e.Status = req.Status
	if req.Notes != "" {
		e.Notes = req.Notes
	}
	s.catalog.put(e, s.nowTime())
	e, _ = s.catalog.get(e.ID)
	writeJSON(w, http.StatusOK, map[string]any{"equipment": e, "previous_status": previous})
}

// handleRecordUsage appends to the history and moves the item to the usage's resulting status.
func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request, a *account) {
	e, ok := s.equipmentByPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Type  equipment.UsageType `json:"type"`
		Notes string              `json:"notes"`
	}
	if !decodeBody(r, &req) || !req.Type.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"type": {"The selected type is invalid."}})
		return
	}
	if req.Type == equipment.UsageBorrow && e.Status != equipment.StatusAvailable {
		writeError(w, http.StatusConflict, fmt.Sprintf("Equipment is %s", e.Status), nil)
		return
	}

	usage := s.catalog.addUsage(equipment.Usage{
		EquipmentID: e.ID,
		UserID:      a.profile.ID,
		UserName:    a.profile.FullName(),
		Type:        req.Type,
		Notes:       req.Notes,
		CreatedAt:   s.nowTime(),
	})
	if status, changes := req.Type.ResultingStatus(); changes {
		e.Status = status
		s.catalog.put(e, s.nowTime())
	}
	writeJSON(w, http.StatusCreated, usage)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ *account) {
	if e, ok := s.equipmentByPath(w, r); ok {
		writeJSON(w, http.StatusOK, page(r, s.catalog.history(e.ID), 20))
	}
}

func (s *Server) handleSearchEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	var req struct {
		Criteria struct {
			Status   string `json:"status"`
			Category string `json:"category"`
			Location string `json:"location"`
			Name     string `json:"name"`
		} `json:"criteria"`
		Options equipment.SearchOptions `json:"options"`
	}
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	c := req.Criteria
	items := s.catalog.filter(c.Status, c.Category, c.Location, c.Name)
	writeJSON(w, http.StatusOK, pageOf(items, req.Options.Page, req.Options.Limit))
}

// handleExportEquipment sends no Content-Disposition so clients fall back to their own name.
func (s *Server) handleExportEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "qr_code", "name", "status", "category", "location"})
	for _, e := range s.catalog.filter(q.Get("status"), q.Get("category"), q.Get("location"), q.Get("search")) {
		_ = cw.Write([]string{e.ID, e.QRCode, e.Name, string(e.Status), e.Category, e.Location})
	}
	cw.Flush()
}

// handleImportEquipment reads a CSV with a header row. Rows without a name are skipped.
func (s *Server) handleImportEquipment(w http.ResponseWriter, r *http.Request, _ *account) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"file": {"The file field is required."}})
		return
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil || len(rows) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "The file is not a valid CSV", nil)
		return
	}
	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[name] = i
	}
	field := func(row []string, name string) string {
		if i, ok := columns[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	result := equipment.ImportResult{Errors: map[string][]string{}}
	for n, row := range rows[1:] {
		e := equipment.Equipment{
			Name:         field(row, "name"),
			Category:     field(row, "category"),
			Location:     field(row, "location"),
			SerialNumber: field(row, "serial_number"),
		}
		if e.Name == "" {
			result.Skipped++
			result.Errors["row "+strconv.Itoa(n+2)] = []string{"name is required"}
			continue
		}
		s.AddEquipment(e)
		result.Imported++
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerateQR(w http.ResponseWriter, _ *http.Request, _ *account) {
	writeJSON(w, http.StatusOK, map[string]string{"qrCode": newQRCode()})
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request, _ *account) {
	writeJSON(w, http.StatusOK, s.catalog.statistics())
}
