package pack

import (
	"strings"
	"time"
)

// Input actions.
const (
	ActionCreate        = "create"
	ActionGet           = "get"
	ActionList          = "list"
	ActionUpsertSection = "upsert_section"
	ActionDeleteSection = "delete_section"
	ActionUpsertRef     = "upsert_ref"
	ActionDeleteRef     = "delete_ref"
	ActionUpsertDiagram = "upsert_diagram"
	ActionSetMeta       = "set_meta"
	ActionSetStatus     = "set_status"
	ActionTouchTTL      = "touch_ttl"
	ActionDeletePack    = "delete_pack"

	// ActionPurge is journaled when the freshness sweep removes a pack.
	ActionPurge = "purge"

	// ActionRead renders one pack on the output tool.
	ActionRead = "read"
)

// Target names a pack by id or by name. The id wins when both are given.
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (t Target) identifier() (string, error) {
	if id := strings.TrimSpace(t.ID); id != "" {
		return id, nil
	}
	if name := strings.TrimSpace(t.Name); name != "" {
		return name, nil
	}
	return "", Validation("'id' or 'name' is required for this action")
}

type CreateInput struct {
	Name       string   `json:"name" validate:"omitempty,packname"`
	Title      string   `json:"title" validate:"max=200"`
	Brief      string   `json:"brief" validate:"max=4000"`
	Tags       []string `json:"tags" validate:"dive,max=64"`
	TTLMinutes *int64   `json:"ttl_minutes"`
}

type GetInput struct {
	Target
}

type ListInput struct {
	Status    string `json:"status" validate:"omitempty,oneof=draft finalized"`
	Freshness string `json:"freshness" validate:"omitempty,oneof=fresh expiring_soon expired"`
	Query     string `json:"query" validate:"max=256"`
	Limit     *int   `json:"limit" validate:"omitempty,min=1"`
	Offset    *int   `json:"offset" validate:"omitempty,min=0"`
}

type UpsertSectionInput struct {
	Target
	ExpectedRevision   *int64  `json:"expected_revision" validate:"required,min=1"`
	SectionKey         string  `json:"section_key" validate:"required,key"`
	SectionTitle       string  `json:"section_title" validate:"required,max=200"`
	SectionDescription *string `json:"section_description" validate:"omitempty,max=20000"`
	SectionOrder       *int    `json:"section_order" validate:"omitempty,min=0"`
	SectionVerdict     *string `json:"section_verdict" validate:"omitempty,max=2000"`
}

type DeleteSectionInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	SectionKey       string `json:"section_key" validate:"required,key"`
}

type UpsertRefInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	SectionKey       string `json:"section_key" validate:"required,key"`
	RefKey           string `json:"ref_key" validate:"required,key"`
	Path             string `json:"path" validate:"required,relpath"`
	LineStart        *int   `json:"line_start" validate:"required,min=1"`
	LineEnd          *int   `json:"line_end" validate:"required,min=1"`
	RefTitle         string `json:"ref_title" validate:"max=200"`
	RefWhy           string `json:"ref_why" validate:"max=2000"`
	RefGroup         string `json:"ref_group" validate:"max=64"`
}

type DeleteRefInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	SectionKey       string `json:"section_key" validate:"required,key"`
	RefKey           string `json:"ref_key" validate:"required,key"`
}

type UpsertDiagramInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	SectionKey       string `json:"section_key" validate:"required,key"`
	DiagramKey       string `json:"diagram_key" validate:"required,key"`
	Title            string `json:"title" validate:"required,max=200"`
	Mermaid          string `json:"mermaid" validate:"required,max=65536"`
	DiagramWhy       string `json:"diagram_why" validate:"max=2000"`
}

type SetMetaInput struct {
	Target
	ExpectedRevision *int64    `json:"expected_revision" validate:"required,min=1"`
	Title            *string   `json:"title" validate:"omitempty,max=200"`
	Brief            *string   `json:"brief" validate:"omitempty,max=4000"`
	Tags             *[]string `json:"tags"`
}

type SetStatusInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	Status           string `json:"status" validate:"required,oneof=draft finalized"`
}

type TouchTTLInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"required,min=1"`
	TTLMinutes       *int64 `json:"ttl_minutes"`
	ExtendMinutes    *int64 `json:"extend_minutes"`
}

type DeletePackInput struct {
	Target
	ExpectedRevision *int64 `json:"expected_revision" validate:"omitempty,min=1"`
}

// ReadInput renders one pack on the output tool.
type ReadInput struct {
	Target
	Profile   string  `json:"profile" validate:"omitempty,oneof=orchestrator reviewer executor"`
	Limit     *int    `json:"limit" validate:"omitempty,min=1"`
	Offset    *int    `json:"offset" validate:"omitempty,min=0"`
	PageToken string  `json:"page_token"`
	Contains  *string `json:"contains"`
	Status    string  `json:"status" validate:"omitempty,oneof=draft finalized"`
}

// Result is the success payload of one tool call.
type Result struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// PackView is a stored pack plus its freshness at read time.
type PackView struct {
	*Pack
	FreshnessState      Freshness `json:"freshness_state"`
	TTLRemaining        string    `json:"ttl_remaining"`
	TTLRemainingSeconds int64     `json:"ttl_remaining_seconds"`
	SelectedBy          string    `json:"selected_by,omitempty"`
}

// Summary is one entry of a list result.
type Summary struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name,omitempty"`
	Title               string    `json:"title,omitempty"`
	Status              Status    `json:"status"`
	Revision            int64     `json:"revision"`
	UpdatedAt           time.Time `json:"updated_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	TTLRemainingSeconds int64     `json:"ttl_remaining_seconds"`
	TTLRemaining        string    `json:"ttl_remaining"`
	FreshnessState      Freshness `json:"freshness_state"`
}

type ListResult struct {
	Count int        `json:"count"`
	Packs []*Summary `json:"packs"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
