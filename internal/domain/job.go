package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Work modes inferred from location/title/description text.
const (
	WorkModeRemote  = "Remote"
	WorkModeHybrid  = "Hybrid"
	WorkModeOnsite  = "Onsite"
	WorkModeUnknown = "Unknown"
)

// Job is the canonical posting shared by every source adapter, the
// ingestion pipeline, storage and the ranker.
type Job struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	SourceNativeID string    `json:"source_native_id"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	WorkMode       string    `json:"work_mode"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Tags           []string  `json:"tags"`
	PostedAt       time.Time `json:"posted_at"`
	Checksum       string    `json:"checksum"`

	// Maintained by storage.
	Revision    int       `json:"revision,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// JobID derives the stable identifier of a posting from its source and the
// source's own id for it.
func JobID(source, nativeID string) string {
	sum := sha256.Sum256([]byte(source + "\x1f" + nativeID))
	return hex.EncodeToString(sum[:16])
}

// ComputeChecksum hashes the content fields of a job. descPlain must already
// be stripped of markup so that cosmetic HTML changes don't count as revisions.
func ComputeChecksum(title, company, location, descPlain string) string {
	h := sha256.New()
	for i, s := range []string{title, company, location, descPlain} {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(foldSpace(s)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func foldSpace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeTags lowercases, trims, dedupes and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// UpsertOutcome classifies what a keyed upsert did.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertInserted
	UpsertUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// JobQuery selects candidate jobs from storage.
type JobQuery struct {
	Since   time.Time // zero = no lower bound on posted_at
	Sources []string  // empty = all
	Limit   int       // <= 0 = unlimited
}
