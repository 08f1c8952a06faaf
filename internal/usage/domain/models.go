// Package domain contains the per-organization usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	KindDevices   = "devices"
	KindUsers     = "users"
	KindCompanies = "companies"
)

// UsageRecord holds the live counters for one organization. The billing
// period is half-open: [PeriodStart, PeriodEnd).
type UsageRecord struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_records_org" json:"org_id"`
	DeviceCount      int64        `gorm:"not null" json:"device_count"`
	UserCount        int64        `gorm:"not null" json:"user_count"`
	CompanyCount     int64        `gorm:"not null" json:"company_count"`
	AIChatsThisMonth int64        `gorm:"column:ai_chats_this_month;not null" json:"ai_chats_this_month"`
	PeriodStart      time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time    `gorm:"not null;index" json:"period_end"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Count returns the counter for kind and false for unknown kinds.
func (r UsageRecord) Count(kind string) (int64, bool) {
	switch kind {
	case KindDevices:
		return r.DeviceCount, true
	case KindUsers:
		return r.UserCount, true
	case KindCompanies:
		return r.CompanyCount, true
	}
	return 0, false
}

// CounterColumn maps a limit kind to its column.
func CounterColumn(kind string) (string, bool) {
	switch kind {
	case KindDevices:
		return "device_count", true
	case KindUsers:
		return "user_count", true
	case KindCompanies:
		return "company_count", true
	}
	return "", false
}
