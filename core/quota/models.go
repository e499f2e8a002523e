package quota

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Category is an independently tracked usage bucket.
type Category string

const (
	CategoryDocuments Category = "documents"
	CategoryEvidences Category = "evidences"
)

// Usage is the running byte count of an institution. Counters are advisory
// and can drift from the stored files until reconciled.
type Usage struct {
	InstitutionID    string    `json:"institution_id" db:"institution_id"`
	DocumentsUsage   int64     `json:"documents_usage" db:"documents_usage"`
	DocumentsLimit   int64     `json:"documents_limit" db:"documents_limit"`
	EvidencesUsage   int64     `json:"evidences_usage" db:"evidences_usage"`
	EvidencesLimit   int64     `json:"evidences_limit" db:"evidences_limit"`
	LastCalculatedAt time.Time `json:"last_calculated_at" db:"last_calculated_at"` // UTC
}

// Of returns the usage and limit of cat. A limit of 0 means unlimited.
func (u Usage) Of(cat Category) (used, limit int64) {
	if cat == CategoryEvidences {
		return u.EvidencesUsage, u.EvidencesLimit
	}
	return u.DocumentsUsage, u.DocumentsLimit
}

type CategorySnapshot struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
	UsedHuman  string  `json:"used_human"`
	LimitHuman string  `json:"limit_human"`
}

func newCategorySnapshot(used, limit int64) CategorySnapshot {
	cs := CategorySnapshot{
		Used:       used,
		Limit:      limit,
		UsedHuman:  humanBytes(used),
		LimitHuman: "unlimited",
	}
	if limit > 0 {
		cs.Percentage = math.Round(float64(used)/float64(limit)*10000) / 100
		cs.LimitHuman = humanBytes(limit)
	}
	return cs
}

// Snapshot is a read-only view of an institution's usage.
type Snapshot struct {
	InstitutionID    string           `json:"institution_id"`
	Documents        CategorySnapshot `json:"documents"`
	Evidences        CategorySnapshot `json:"evidences"`
	LastCalculatedAt *time.Time       `json:"last_calculated_at"`
}

func newSnapshot(u Usage) Snapshot {
	s := Snapshot{
		InstitutionID: u.InstitutionID,
		Documents:     newCategorySnapshot(u.DocumentsUsage, u.DocumentsLimit),
		Evidences:     newCategorySnapshot(u.EvidencesUsage, u.EvidencesLimit),
	}
	if !u.LastCalculatedAt.IsZero() {
		t := u.LastCalculatedAt.UTC()
		s.LastCalculatedAt = &t
	}
	return s
}

// Limits overrides the ceilings of an institution. Nil fields are left untouched.
type Limits struct {
	DocumentsLimit *int64 `json:"documents_limit" validate:"omitempty,min=0"`
	EvidencesLimit *int64 `json:"evidences_limit" validate:"omitempty,min=0"`
}

func humanBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
