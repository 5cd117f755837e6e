package management

import (
	"fmt"
	"time"

	"annopedia/internal/annotation"
	"annopedia/internal/types"
)

// NoContext is shown for imported texts uploaded without a context.
const NoContext = "No context"

// Message is the body of operations that only report what they did.
type Message struct {
	Detail string `json:"detail"`
}

func message(format string, args ...interface{}) *Message {
	return &Message{Detail: fmt.Sprintf(format, args...)}
}

// ProjectView is the public representation of a project.
type ProjectView struct {
	ID                      int64             `json:"id"`
	Name                    string            `json:"name"`
	Description             string            `json:"description"`
	TalkMarkdown            string            `json:"talk_markdown"`
	CharacterLevelSelection *bool             `json:"character_level_selection"`
	Type                    types.ProjectType `json:"type"`
	URL                     string            `json:"url"`
	Administrators          []types.AdminRef  `json:"administrators"`
	Categories              []*CategoryView   `json:"categories,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

func projectView(p *types.Project, admins []*types.Contributor) *ProjectView {
	refs := make([]types.AdminRef, 0, len(admins))
	for _, a := range admins {
		refs = append(refs, types.AdminRef{Username: a.Username, Email: a.Email})
	}
	return &ProjectView{
		ID:                      p.ID,
		Name:                    p.Name,
		Description:             p.Description,
		TalkMarkdown:            p.TalkMarkdown,
		CharacterLevelSelection: p.CharacterLevel,
		Type:                    p.Type,
		URL:                     p.URL,
		Administrators:          refs,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

// CategoryView is a category with the URL of its project. CategoryID is set
// only in deletion responses.
type CategoryView struct {
	*types.Category
	ProjectURL string `json:"project_url"`
	CategoryID int64  `json:"category_id,omitempty"`
}

// ImportedView is an imported text as listed to administrators and annotators.
type ImportedView struct {
	ID             int64             `json:"id"`
	Project        string            `json:"project"`
	ProjectURL     string            `json:"project_url"`
	Text           string            `json:"text"`
	Parameters     map[string]string `json:"parameters"`
	PreAnnotations map[string]any    `json:"pre_annotations"`
	Context        string            `json:"context"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func importedView(p *types.Project, kind annotation.Kind, t *types.ImportedText) *ImportedView {
	params := make(map[string]string)
	for _, param := range kind.Parameters(t) {
		params[param.Name] = param.Value
	}
	return &ImportedView{
		ID:             t.ID,
		Project:        p.Name,
		ProjectURL:     p.URL,
		Text:           t.Text,
		Parameters:     params,
		PreAnnotations: kind.PreAnnotations(t),
		Context:        contextText(t),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func contextText(t *types.ImportedText) string {
	if t == nil || t.Context == nil {
		return NoContext
	}
	return *t.Context
}

// entryView renders an entry for listings. Highlight lists are added under
// their payload keys for the kinds that have them.
func entryView(p *types.Project, kind annotation.Kind, e *types.Entry) map[string]any {
	out := map[string]any{
		"id":                 e.ID,
		"project":            p.Name,
		"project_url":        p.URL,
		"unannotated_source": e.SourceID,
		"annotator":          annotatorName(e.Annotator),
		"value":              kind.Values(e),
		"text":               sourceText(e),
		"created_at":         e.CreatedAt,
		"updated_at":         e.UpdatedAt,
	}
	for k, v := range kind.Highlights(e) {
		out[k] = v
	}
	return out
}

// createdEntryView is the response to a new entry: the entry together with
// the text it annotates and what the annotator was shown.
func createdEntryView(p *types.Project, kind annotation.Kind, e *types.Entry) map[string]any {
	out := entryView(p, kind, e)
	out["project_type"] = p.Type
	out["value_fields"] = kind.ValueFields()
	if e.Source != nil {
		out["unannotated_source"] = importedView(p, kind, e.Source)
		out["pre_annotations"] = kind.PreAnnotations(e.Source)
	}
	out["context"] = contextText(e.Source)
	return out
}

func sourceText(e *types.Entry) string {
	if e.Source == nil {
		return ""
	}
	return e.Source.Text
}

func annotatorName(a *types.Annotator) string {
	if a == nil || a.Contributor == nil {
		return ""
	}
	return a.Contributor.Username
}

// AnnotatorView is a private annotator as shown to project administrators.
type AnnotatorView struct {
	ID                  int64     `json:"id"`
	Kind                string    `json:"kind"`
	Project             string    `json:"project"`
	Contributor         string    `json:"contributor"`
	Email               string    `json:"email"`
	InvitingContributor string    `json:"inviting_contributor"`
	Token               string    `json:"token"`
	Completion          float64   `json:"completion"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func annotatorView(p *types.Project, a *types.Annotator, inviter string, completion float64) *AnnotatorView {
	v := &AnnotatorView{
		ID:                  a.ID,
		Kind:                a.VerboseKind(),
		Project:             p.URL,
		Contributor:         annotatorName(a),
		InvitingContributor: inviter,
		Token:               a.Token,
		Completion:          completion,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if a.Contributor != nil {
		v.Email = a.Contributor.Email
	}
	return v
}
