// Package coverage decides whether a device or part is covered on a given
// calendar date. Every comparison is date-only and inclusive of the expiry
// day; malformed dates never raise, they resolve to not covered.
package coverage

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DateLayout = "2006-01-02"

	// UnknownDays is returned by DaysUntilExpiry for unparseable dates.
	UnknownDays = -9999

	daysPerWarrantyMonth = 30
)

var (
	ErrInvalidDate   = errors.New("invalid_date")
	ErrInvalidMonths = errors.New("invalid_warranty_months")
)

type Verdict string

const (
	VerdictActive     Verdict = "active"
	VerdictExpired    Verdict = "expired"
	VerdictNotCovered Verdict = "not_covered"
)

type SourceKind string

const (
	SourceContract       SourceKind = "contract"
	SourceLegacyAMC      SourceKind = "legacy_amc"
	SourceDeviceWarranty SourceKind = "device_warranty"
)

// precedence lists source kinds from strongest to weakest.
var precedence = []SourceKind{SourceContract, SourceLegacyAMC, SourceDeviceWarranty}

// Source is one record that may cover a device. Start is only meaningful for
// contract assignments; the other kinds are bounded by End alone.
type Source struct {
	Kind         SourceKind   `json:"kind"`
	Start        string       `json:"start,omitempty"`
	End          string       `json:"end,omitempty"`
	ContractID   snowflake.ID `json:"contract_id,omitempty"`
	AssignmentID snowflake.ID `json:"assignment_id,omitempty"`
	RecordID     snowflake.ID `json:"record_id,omitempty"`
	Active       bool         `json:"active"`
}

// Result is the verdict for one device. Winner is nil when nothing covers
// the device and no source ever did.
type Result struct {
	Verdict       Verdict  `json:"verdict"`
	Winner        *Source  `json:"source,omitempty"`
	Candidates    []Source `json:"candidates"`
	ExpiresOn     string   `json:"expires_on,omitempty"`
	DaysRemaining int      `json:"days_remaining,omitempty"`
}

// Covered reports whether the verdict is active.
func (r Result) Covered() bool {
	return r.Verdict == VerdictActive
}

// AMCCovered reports whether an AMC source, contract or legacy, is active.
func (r Result) AMCCovered() bool {
	return r.Covered() && r.Winner != nil && r.Winner.Kind != SourceDeviceWarranty
}

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts a calendar date or an ISO-8601 datetime with or without
// an offset. The calendar date is taken as written, without converting zones.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return civil(t), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// NormalizeDate rewrites value as YYYY-MM-DD.
func NormalizeDate(value string) (string, error) {
	d, err := ParseDate(value)
	if err != nil {
		return "", err
	}
	return d.Format(DateLayout), nil
}

// ComputeWarrantyExpiry adds months*30 days to replacedDate. The 30-day
// month is intentional so recomputed dates match stored ones.
func ComputeWarrantyExpiry(replacedDate string, months int) (string, error) {
	if months < 0 {
		return "", ErrInvalidMonths
	}
	d, err := ParseDate(replacedDate)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, months*daysPerWarrantyMonth).Format(DateLayout), nil
}

// IsActive reports today <= expiry. Malformed expiry is not active.
func IsActive(expiry string, today time.Time) bool {
	d, err := ParseDate(expiry)
	if err != nil {
		return false
	}
	return !civil(today).After(d)
}

func DaysUntilExpiry(expiry string, today time.Time) int {
	d, err := ParseDate(expiry)
	if err != nil {
		return UnknownDays
	}
	return int(d.Sub(civil(today)).Hours() / 24)
}

// Resolve evaluates every candidate on today and picks the active one with
// the highest precedence: contract, then legacy AMC, then device warranty.
// When none is active but one has lapsed, the verdict is expired and the
// lapsed source with the highest precedence is reported.
func Resolve(candidates []Source, today time.Time) Result {
	day := civil(today)
	evaluated := make([]Source, 0, len(candidates))
	for _, kind := range precedence {
		for _, c := range candidates {
			if c.Kind != kind {
				continue
			}
			c.Active = sourceActive(c, day)
			evaluated = append(evaluated, c)
		}
	}

	res := Result{Verdict: VerdictNotCovered, Candidates: evaluated}
	var lapsed *Source
	for i := range evaluated {
		c := &evaluated[i]
		if c.Active {
			res.Verdict = VerdictActive
			res.Winner = c
			res.ExpiresOn = c.End
			res.DaysRemaining = DaysUntilExpiry(c.End, day)
			return res
		}
		if lapsed == nil && sourceLapsed(*c, day) {
			lapsed = c
		}
	}
	if lapsed != nil {
		res.Verdict = VerdictExpired
		res.Winner = lapsed
		res.ExpiresOn = lapsed.End
	}
	return res
}

func sourceActive(s Source, day time.Time) bool {
	end, err := ParseDate(s.End)
	if err != nil || day.After(end) {
		return false
	}
	if s.Kind != SourceContract {
		return true
	}
	start, err := ParseDate(s.Start)
	if err != nil {
		return false
	}
	return !day.Before(start)
}

func sourceLapsed(s Source, day time.Time) bool {
	end, err := ParseDate(s.End)
	return err == nil && day.After(end)
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
