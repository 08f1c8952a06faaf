package coverage

import "errors"

var (
	ErrNotFound     = errors.New("not_found")
	ErrInvalidQuery = errors.New("invalid_query")
)

// MinQueryLength is the shortest serial or asset tag a public lookup accepts.
const MinQueryLength = 2

// DeviceSummary is the public view of a device. It carries no internal ids.
type DeviceSummary struct {
	DeviceType      string `json:"device_type"`
	Brand           string `json:"brand"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	AssetTag        string `json:"asset_tag,omitempty"`
	PurchaseDate    string `json:"purchase_date"`
	WarrantyEndDate string `json:"warranty_end_date,omitempty"`
	WarrantyActive  bool   `json:"warranty_active"`
	Status          string `json:"status"`
}

type PartCoverage struct {
	PartName           string `json:"part_name"`
	ReplacedDate       string `json:"replaced_date"`
	WarrantyMonths     int    `json:"warranty_months"`
	WarrantyExpiryDate string `json:"warranty_expiry_date"`
	WarrantyActive     bool   `json:"warranty_active"`
}

type AMCInfo struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Active    bool   `json:"active"`
}

// LookupResult answers a public warranty search.
type LookupResult struct {
	Device       DeviceSummary  `json:"device"`
	CompanyName  string         `json:"company_name"`
	AssignedUser string         `json:"assigned_user,omitempty"`
	Parts        []PartCoverage `json:"parts"`
	AMC          *AMCInfo       `json:"amc"`
	Coverage     Result         `json:"coverage"`
}
