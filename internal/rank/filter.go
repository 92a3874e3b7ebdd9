package rank

import (
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
)

// Filters are hard constraints applied before scoring. They are pure: Now is
// supplied by the caller rather than read from the clock.
type Filters struct {
	// RemoteOK lets remote jobs bypass LocationsAllow.
	RemoteOK bool
	// RemoteOnly drops every job that isn't remote.
	RemoteOnly     bool
	LocationsAllow []string
	LocationsBlock []string
	// MaxAge drops jobs posted before Now-MaxAge. Ignored when Now is zero.
	MaxAge  time.Duration
	Now     time.Time
	Sources []string
}

// Allows reports whether j survives the filters, and if not, why.
func (f Filters) Allows(j domain.Job) (bool, string) {
	if len(f.Sources) > 0 && !containsFold(f.Sources, j.Source) {
		return false, "source"
	}
	if f.MaxAge > 0 && !f.Now.IsZero() && !j.PostedAt.IsZero() && j.PostedAt.Before(f.Now.Add(-f.MaxAge)) {
		return false, "age"
	}
	if !f.passesLocation(j) {
		return false, "location"
	}
	return true, ""
}

func (f Filters) passesLocation(j domain.Job) bool {
	loc := strings.ToLower(strings.TrimSpace(j.Location))
	title := strings.ToLower(strings.TrimSpace(j.Title))

	remote := j.WorkMode == domain.WorkModeRemote ||
		strings.Contains(loc, "remote") || strings.Contains(title, "remote")

	// Blocklist wins.
	for _, b := range f.LocationsBlock {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		if strings.Contains(loc, b) || strings.Contains(title, b) {
			return false
		}
	}

	if f.RemoteOnly && !remote {
		return false
	}
	if remote && f.RemoteOK {
		return true
	}

	if len(f.LocationsAllow) == 0 {
		return true
	}
	for _, a := range f.LocationsAllow {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if strings.Contains(loc, a) || strings.Contains(title, a) {
			return true
		}
	}
	return false
}

func containsFold(xs []string, s string) bool {
	for _, x := range xs {
		if strings.EqualFold(strings.TrimSpace(x), s) {
			return true
		}
	}
	return false
}
