// Package types provides shared type definitions used across Annopedia packages.
// This package exists to break import cycles between store, annotation and management.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"math"
	"strconv"
	"time"
)

// =============================================================================
// CONTRIBUTORS
// =============================================================================

// Contributor is any authenticated party: an identity-provider user, an invited
// private annotator, or an anonymous visitor keyed by remote address.
type Contributor struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminRef is the public view of a project administrator.
type AdminRef struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// =============================================================================
// PROJECTS
// =============================================================================

// Project is an annotation project. URL is the public identifier used in routes.
type Project struct {
	ID           int64
	URL          string
	Type         ProjectType
	Name         string
	Description  string
	TalkMarkdown string
	// CharacterLevel is nil for text classification projects.
	CharacterLevel *bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CharacterLevelSelection reports whether highlights may start and end anywhere.
func (p *Project) CharacterLevelSelection() bool {
	return p.CharacterLevel == nil || *p.CharacterLevel
}

// ProjectPatch carries optional project updates. Nil fields are left untouched.
type ProjectPatch struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	TalkMarkdown *string `json:"talk_markdown"`
}

// Category is a label available to text classification and NER projects.
type Category struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	KeyBinding  string    `json:"key_binding"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// =============================================================================
// ANNOTATORS
// =============================================================================

// AnnotatorKind distinguishes public annotators from invited private ones.
type AnnotatorKind string

const (
	AnnotatorPublic  AnnotatorKind = "public"
	AnnotatorPrivate AnnotatorKind = "private"
)

// Annotator attributes entries to a contributor. Private annotators are bound
// to a single project and authenticate with Token.
type Annotator struct {
	ID                    int64
	Kind                  AnnotatorKind
	ContributorID         int64
	Contributor           *Contributor
	ProjectID             int64
	InvitingContributorID int64
	Token                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// VerboseKind is the display name of the annotator kind.
func (a *Annotator) VerboseKind() string {
	if a.Kind == AnnotatorPrivate {
		return "Private Annotator"
	}
	return "Public Annotator"
}

// Completion returns the share of imported texts the annotator has annotated
// as a percentage. The ratio is rounded to two decimals first, with exact
// ties going to the even digit, so 1 of 8 is 12 rather than 13.
func Completion(annotated, imported int) float64 {
	if imported == 0 {
		return 100.0
	}
	ratio := float64(annotated) / float64(imported)
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(ratio, 'f', 2, 64), 64)
	if err != nil {
		return math.Round(ratio * 100)
	}
	return math.Round(rounded * 100)
}

// =============================================================================
// IMPORTED TEXTS AND ENTRIES
// =============================================================================

// ImportedText is an unannotated text uploaded to a project. Which optional
// fields are used depends on the project type.
type ImportedText struct {
	ID                  int64
	ProjectID           int64
	Text                string
	MTSystemTranslation string
	Context             *string
	PreCategoryID       *int64
	PreCategory         string
	PreAdequacy         *float64
	PreFluency          *float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HighlightSide names the text a highlight points into.
type HighlightSide string

const (
	SideSource HighlightSide = "source"
	SideTarget HighlightSide = "target"
	SideEntity HighlightSide = "entity"
)

// Highlight is a character span annotated with a label.
type Highlight struct {
	Side       HighlightSide
	Start      int
	End        int
	Label      string
	CategoryID *int64
}

// Entry is one annotator's annotation of one imported text.
type Entry struct {
	ID          int64
	ProjectID   int64
	SourceID    int64
	Source      *ImportedText
	AnnotatorID int64
	Annotator   *Annotator
	CategoryID  *int64
	Category    string
	Adequacy    *float64
	Fluency     *float64
	Highlights  []Highlight
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HighlightsOn returns the highlights of one side in stored order.
func (e *Entry) HighlightsOn(side HighlightSide) []Highlight {
	var out []Highlight
	for _, h := range e.Highlights {
		if h.Side == side {
			out = append(out, h)
		}
	}
	return out
}

// EntryPayload is the annotation submitted by an annotator.
type EntryPayload struct {
	SourceID int64          `json:"unannotated_source"`
	Payload  map[string]any `json:"payload"`
}

// EntryPatch carries optional entry updates from an administrator.
type EntryPatch struct {
	Classification *string  `json:"classification"`
	Adequacy       *float64 `json:"adequacy"`
	Fluency        *float64 `json:"fluency"`
}

// HistoryChange is the kind of mutation recorded in entry history.
type HistoryChange string

const (
	HistoryCreated HistoryChange = "created"
	HistoryUpdated HistoryChange = "updated"
	HistoryDeleted HistoryChange = "deleted"
)

// HistoryRecord is an append-only snapshot of an entry.
type HistoryRecord struct {
	ID         int64          `json:"history_id"`
	EntryID    int64          `json:"id"`
	ProjectID  int64          `json:"project"`
	Change     HistoryChange  `json:"history_type"`
	Snapshot   map[string]any `json:"snapshot"`
	RecordedAt time.Time      `json:"history_date"`
}

// =============================================================================
// IMPORTS
// =============================================================================

// Record is one row of an uploaded file, keyed by column name.
type Record map[string]string

// ImportFields names the record columns used by an import.
type ImportFields struct {
	TextField           string
	MTSystemTranslation string
	ValueField          string
	ContextField        string
}
