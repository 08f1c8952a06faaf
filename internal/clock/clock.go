package clock

import (
	"time"

	"github.com/smallbiznis/warrantyhub/internal/config"
	"go.uber.org/fx"
)

// Clock supplies the current time and the zone calendar dates are expressed
// in. Services never call time.Now directly.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	return SystemClock{loc: loc}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c SystemClock) Location() *time.Location {
	if c.loc == nil {
		return DefaultZone()
	}
	return c.loc
}

var Module = fx.Module("clock",
	fx.Provide(func(cfg config.Config) Clock {
		return NewSystemClock(ZoneFor(cfg.Tenancy.ReferenceOffset))
	}),
)

// DefaultReferenceOffset is +05:30, the zone every stored calendar date is expressed in.
const DefaultReferenceOffset = 330 * time.Minute

var defaultZone = time.FixedZone("IST", int(DefaultReferenceOffset/time.Second))

func DefaultZone() *time.Location {
	return defaultZone
}

// ZoneFor returns a fixed zone for offset. A zero offset is UTC.
func ZoneFor(offset time.Duration) *time.Location {
	switch offset {
	case DefaultReferenceOffset:
		return defaultZone
	case 0:
		return time.UTC
	}
	return time.FixedZone("REF", int(offset/time.Second))
}

// Today returns midnight of the current calendar date in the clock's zone.
func Today(c Clock) time.Time {
	return DateOf(c.Now(), c.Location())
}

// DateOf truncates t to its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// MonthBounds returns [first of month, first of next month) for t in loc.
func MonthBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
