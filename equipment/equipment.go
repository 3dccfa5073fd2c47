package equipment

import (
	"errors"
	"time"
)

// Status of a piece of equipment
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBorrowed    Status = "borrowed"
	StatusMaintenance Status = "maintenance"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusMaintenance:
		return true
	}
	return false
}

// UsageType is the kind of usage record
type UsageType string

const (
	UsageBorrow      UsageType = "borrow"
	UsageReturn      UsageType = "return"
	UsageMaintenance UsageType = "maintenance"
	UsageScan        UsageType = "scan"
)

func (u UsageType) Valid() bool {
	switch u {
	case UsageBorrow, UsageReturn, UsageMaintenance, UsageScan:
		return true
	}
	return false
}

// ResultingStatus is the status an item ends up in after a usage of this type. Scans leave
// the status unchanged.
func (u UsageType) ResultingStatus() (Status, bool) {
	switch u {
	case UsageBorrow:
		return StatusBorrowed, true
	case UsageReturn:
		return StatusAvailable, true
	case UsageMaintenance:
		return StatusMaintenance, true
	}
	return "", false
}

var (
	ErrInvalidStatus    = errors.New("invalid equipment status")
	ErrInvalidUsageType = errors.New("invalid usage type")
)

type Equipment struct {
	ID            string    `json:"id"`
	QRCode        string    `json:"qr_code,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status"`
	Location      string    `json:"location,omitempty"`
	Category      string    `json:"category,omitempty"`
	SerialNumber  string    `json:"serial_number,omitempty"`
	PurchaseDate  string    `json:"purchase_date,omitempty"` // YYYY-MM-DD
	PurchasePrice float64   `json:"purchase_price,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Usage is one entry in an item's history
type Usage struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	UserID      string    `json:"user_id,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	Type        UsageType `json:"type"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Statistics summarises the catalogue
type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
	UsageCount int            `json:"usage_count"`
}

// ImportResult is returned by the bulk import endpoint
type ImportResult struct {
	Imported int                 `json:"imported"`
	Skipped  int                 `json:"skipped"`
	Errors   map[string][]string `json:"errors,omitempty"`
}
