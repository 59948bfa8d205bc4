package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Service is the pack repository core. It coordinates the store, the freshness
// engine, name resolution, the finalize validator and the renderer.
type Service struct {
	store     Store
	excerpter Excerpter
	journal   Journal
	archive   Archive
	recorder  Recorder
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	policy    FreshnessPolicy
	renderer  *Renderer
}

// NewService creates a new Service with the provided dependencies.
// A nil journal, archive or recorder disables that concern.
func NewService(store Store, excerpter Excerpter, journal Journal, archive Archive, recorder Recorder, logger Logger, clock Clock, idgen IDGenerator, policy FreshnessPolicy) *Service {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		store:     store,
		excerpter: excerpter,
		journal:   journal,
		archive:   archive,
		recorder:  recorder,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		policy:    policy,
		renderer:  NewRenderer(excerpter, policy, clock, recorder),
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is journaled with every accepted mutation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached to ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ArchiveKey is the archive object key of a pack record at a revision.
func ArchiveKey(id string, revision int64) string {
	return fmt.Sprintf("%s/%d.json", id, revision)
}

// Input decodes and executes one mutate-tool request.
func (s *Service) Input(ctx context.Context, raw json.RawMessage) (*Result, error) {
	result, err := s.input(ctx, raw)
	if err != nil {
		s.observeFailure(ctx, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) input(ctx context.Context, raw json.RawMessage) (*Result, error) {
	fields, action, err := splitArgs(raw)
	if err != nil {
		return nil, err
	}
	if action == "" {
		action = ActionList
	}

	var payload any
	switch action {
	case ActionCreate:
		var in CreateInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		p, err := s.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		payload = s.view(&Selection{Pack: p})
	case ActionGet:
		var in GetInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		v, err := s.Get(ctx, in)
		if err != nil {
			return nil, err
		}
		payload = v
	case ActionList:
		var in ListInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		res, err := s.List(ctx, in)
		if err != nil {
			return nil, err
		}
		payload = res
	case ActionUpsertSection:
		var in UpsertSectionInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.UpsertSection(ctx, in))
	case ActionDeleteSection:
		var in DeleteSectionInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.DeleteSection(ctx, in))
	case ActionUpsertRef:
		var in UpsertRefInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.UpsertRef(ctx, in))
	case ActionDeleteRef:
		var in DeleteRefInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.DeleteRef(ctx, in))
	case ActionUpsertDiagram:
		var in UpsertDiagramInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.UpsertDiagram(ctx, in))
	case ActionSetMeta:
		var in SetMetaInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.SetMeta(ctx, in))
	case ActionSetStatus:
		var in SetStatusInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.SetStatus(ctx, in))
	case ActionTouchTTL:
		var in TouchTTLInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		payload, err = s.viewOf(s.TouchTTL(ctx, in))
	case ActionDeletePack:
		var in DeletePackInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return nil, err
		}
		res, err := s.DeletePack(ctx, in)
		if err != nil {
			return nil, err
		}
		payload = res
	default:
		return nil, Validation("unknown input action '%s'", action)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Action: action, Payload: payload}, nil
}

// Output decodes and executes one read-tool request and returns the rendered text.
func (s *Service) Output(ctx context.Context, raw json.RawMessage) (string, error) {
	text, err := s.output(ctx, raw)
	if err != nil {
		s.observeFailure(ctx, err)
		return "", err
	}
	return text, nil
}

func (s *Service) output(ctx context.Context, raw json.RawMessage) (string, error) {
	fields, action, err := splitArgs(raw)
	if err != nil {
		return "", err
	}
	if _, ok := fields["format"]; ok {
		return "", Validation("'format' is not supported; output is always markdown")
	}
	if action == "" {
		action = ActionList
		if _, ok := fields["id"]; ok {
			action = ActionRead
		} else if _, ok := fields["name"]; ok {
			action = ActionRead
		}
	}

	switch action {
	case ActionList:
		var in ListInput
		if err := decodeArgs(action, fields, raw, &in); err != nil {
			return "", err
		}
		res, err := s.List(ctx, in)
		if err != nil {
			return "", err
		}
		return RenderList(res.Packs), nil
	case ActionRead, ActionGet:
		var in ReadInput
		if err := decodeArgs(ActionRead, fields, raw, &in); err != nil {
			return "", err
		}
		page, err := s.Read(ctx, in)
		if err != nil {
			return "", err
		}
		return page.Text, nil
	default:
		return "", Validation("unknown output action '%s'", action)
	}
}

// Create allocates an id, reserves the name and stores a new draft pack.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Pack, error) {
	if in.TTLMinutes == nil {
		return nil, TTLRequired("'ttl_minutes' is required for create")
	}
	if err := ValidateTTL("ttl_minutes", *in.TTLMinutes); err != nil {
		return nil, err
	}
	var name string
	if strings.TrimSpace(in.Name) != "" {
		n, err := NormalizeName(in.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	// Purged packs release their names before the reservation check.
	if _, err := s.sweep(ctx); err != nil {
		return nil, err
	}

	ttl := time.Duration(*in.TTLMinutes) * time.Minute
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		p := NewPack(s.idgen.New(), name, s.clock.Now(), ttl)
		p.Title = strings.TrimSpace(in.Title)
		p.Brief = strings.TrimSpace(in.Brief)
		p.Tags = tags

		err := s.store.Create(ctx, p, s.isLive)
		if errors.Is(err, ErrIDTaken) {
			s.logger.Debug("pack id collision, regenerating", "id", p.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.accepted(ctx, ActionCreate, p)
		return p, nil
	}
	return nil, &Error{
		Kind:    KindInternal,
		Code:    CodeIDExhausted,
		Message: fmt.Sprintf("could not allocate a unique pack id after %d attempts", maxIDAttempts),
	}
}

// Get resolves a pack by id or name.
func (s *Service) Get(ctx context.Context, in GetInput) (*PackView, error) {
	sel, err := s.resolve(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	return s.view(sel), nil
}

// List returns visible pack summaries, newest first.
func (s *Service) List(ctx context.Context, in ListInput) (*ListResult, error) {
	packs, err := s.sweep(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	query := strings.ToLower(strings.TrimSpace(in.Query))

	var matched []*Pack
	for _, p := range packs {
		if in.Status != "" && p.Status != Status(in.Status) {
			continue
		}
		if !s.policy.State(p, now).Visible(Freshness(in.Freshness)) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Revision != b.Revision {
			return a.Revision > b.Revision
		}
		return a.ID < b.ID
	})

	if in.Offset != nil {
		matched = matched[min(*in.Offset, len(matched)):]
	}
	if in.Limit != nil && *in.Limit < len(matched) {
		matched = matched[:*in.Limit]
	}

	summaries := make([]*Summary, 0, len(matched))
	for _, p := range matched {
		summaries = append(summaries, s.summary(p, now))
	}
	return &ListResult{Count: len(summaries), Packs: summaries}, nil
}

func matchesQuery(p *Pack, query string) bool {
	for _, field := range []string{p.ID, p.Name, p.Title, p.Brief} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Read renders one page of a resolved pack.
func (s *Service) Read(ctx context.Context, in ReadInput) (*Page, error) {
	sel, err := s.resolve(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	req := RenderRequest{
		Limit:     in.Limit,
		Offset:    in.Offset,
		PageToken: strings.TrimSpace(in.PageToken),
	}
	if in.Profile != "" {
		if req.Profile, err = ParseProfile(in.Profile); err != nil {
			return nil, err
		}
	}
	if in.Status != "" {
		if req.Status, err = ParseStatus(in.Status); err != nil {
			return nil, err
		}
	}
	if in.Contains != nil {
		contains := strings.TrimSpace(*in.Contains)
		if contains == "" {
			return nil, Validation("'contains' must not be blank")
		}
		if n := len([]rune(contains)); n > MaxContainsLength {
			return nil, Validation("'contains' is too long (%d characters, max %d)", n, MaxContainsLength)
		}
		req.Contains = contains
	}
	return s.renderer.Render(ctx, sel, req)
}

// UpsertSection inserts or replaces a section.
func (s *Service) UpsertSection(ctx context.Context, in UpsertSectionInput) (*Pack, error) {
	description := trimmed(in.SectionDescription)
	verdict := trimmed(in.SectionVerdict)
	title := strings.TrimSpace(in.SectionTitle)
	return s.mutate(ctx, ActionUpsertSection, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		p.upsertSection(in.SectionKey, title, description, verdict, in.SectionOrder)
		return true, nil
	})
}

// DeleteSection removes a section and everything in it.
func (s *Service) DeleteSection(ctx context.Context, in DeleteSectionInput) (*Pack, error) {
	return s.mutate(ctx, ActionDeleteSection, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		return true, p.deleteSection(in.SectionKey)
	})
}

// UpsertRef inserts or replaces a ref in an existing section.
func (s *Service) UpsertRef(ctx context.Context, in UpsertRefInput) (*Pack, error) {
	path, err := NormalizePath(in.Path)
	if err != nil {
		return nil, err
	}
	if err := ValidateLines(*in.LineStart, *in.LineEnd); err != nil {
		return nil, err
	}
	ref := Ref{
		Key:       in.RefKey,
		Path:      path,
		LineStart: *in.LineStart,
		LineEnd:   *in.LineEnd,
		Title:     strings.TrimSpace(in.RefTitle),
		Why:       strings.TrimSpace(in.RefWhy),
		Group:     strings.TrimSpace(in.RefGroup),
	}
	return s.mutate(ctx, ActionUpsertRef, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		section, err := p.mustSection(in.SectionKey)
		if err != nil {
			return false, err
		}
		section.upsertRef(ref)
		return true, nil
	})
}

// DeleteRef removes a ref from a section.
func (s *Service) DeleteRef(ctx context.Context, in DeleteRefInput) (*Pack, error) {
	return s.mutate(ctx, ActionDeleteRef, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		section, err := p.mustSection(in.SectionKey)
		if err != nil {
			return false, err
		}
		if !section.deleteRef(in.RefKey) {
			return false, NotFound("ref '%s' not found in section '%s'", in.RefKey, in.SectionKey)
		}
		return true, nil
	})
}

// UpsertDiagram inserts or replaces a diagram in an existing section.
func (s *Service) UpsertDiagram(ctx context.Context, in UpsertDiagramInput) (*Pack, error) {
	d := Diagram{
		Key:     in.DiagramKey,
		Title:   strings.TrimSpace(in.Title),
		Mermaid: in.Mermaid,
		Why:     strings.TrimSpace(in.DiagramWhy),
	}
	if strings.TrimSpace(d.Mermaid) == "" {
		return nil, Validation("'mermaid' must not be blank")
	}
	return s.mutate(ctx, ActionUpsertDiagram, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		section, err := p.mustSection(in.SectionKey)
		if err != nil {
			return false, err
		}
		section.upsertDiagram(d)
		return true, nil
	})
}

// SetMeta updates title, brief or tags. Values equal to the stored ones are not written.
func (s *Service) SetMeta(ctx context.Context, in SetMetaInput) (*Pack, error) {
	if in.Title == nil && in.Brief == nil && in.Tags == nil {
		return nil, Validation("set_meta requires at least one of 'title', 'brief', 'tags'")
	}
	var tags []string
	if in.Tags != nil {
		t, err := NormalizeTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		tags = t
	}
	return s.mutate(ctx, ActionSetMeta, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if err := p.assertMutable(); err != nil {
			return false, err
		}
		changed := false
		if t := trimmed(in.Title); t != nil && *t != p.Title {
			p.Title = *t
			changed = true
		}
		if b := trimmed(in.Brief); b != nil && *b != p.Brief {
			p.Brief = *b
			changed = true
		}
		if in.Tags != nil && !slices.Equal(tags, p.Tags) {
			p.Tags = tags
			changed = true
		}
		return changed, nil
	})
}

// SetStatus moves a pack between draft and finalized. Finalizing runs the finalize
// validator; reverting to draft is unconditional.
func (s *Service) SetStatus(ctx context.Context, in SetStatusInput) (*Pack, error) {
	target, err := ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, ActionSetStatus, in.Target, *in.ExpectedRevision, func(p *Pack, _ time.Time) (bool, error) {
		if p.Status == target {
			return false, nil
		}
		if target == StatusFinalized {
			if err := ValidateForFinalize(ctx, p, s.excerpter); err != nil {
				return false, err
			}
		}
		p.Status = target
		return true, nil
	})
}

// TouchTTL sets (ttl_minutes) or extends (extend_minutes) the expiry of a pack.
func (s *Service) TouchTTL(ctx context.Context, in TouchTTLInput) (*Pack, error) {
	switch {
	case in.TTLMinutes != nil && in.ExtendMinutes != nil:
		return nil, Validation("provide either 'ttl_minutes' or 'extend_minutes', not both")
	case in.TTLMinutes == nil && in.ExtendMinutes == nil:
		return nil, TTLRequired("'ttl_minutes' or 'extend_minutes' is required")
	case in.TTLMinutes != nil:
		if err := ValidateTTL("ttl_minutes", *in.TTLMinutes); err != nil {
			return nil, err
		}
	default:
		if err := ValidateTTL("extend_minutes", *in.ExtendMinutes); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, ActionTouchTTL, in.Target, *in.ExpectedRevision, func(p *Pack, now time.Time) (bool, error) {
		if in.TTLMinutes != nil {
			p.ExpiresAt = now.Add(time.Duration(*in.TTLMinutes) * time.Minute)
			return true, nil
		}
		base := p.ExpiresAt
		if now.After(base) {
			base = now
		}
		p.ExpiresAt = base.Add(time.Duration(*in.ExtendMinutes) * time.Minute)
		return true, nil
	})
}

// DeletePack removes a pack on explicit request. The expected revision is checked and
// the record archived under the pack lock, against the record actually being removed.
func (s *Service) DeletePack(ctx context.Context, in DeletePackInput) (*DeleteResult, error) {
	sel, err := s.resolve(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	id := sel.Pack.ID
	var removed *Pack
	deleted, err := s.store.Delete(ctx, id, func(current *Pack) error {
		if in.ExpectedRevision != nil {
			if err := CheckRevision(current, nil, *in.ExpectedRevision); err != nil {
				return err
			}
		}
		s.archiveRecord(ctx, current)
		removed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, NotFound("pack '%s' not found", id)
	}
	s.accepted(ctx, ActionDeletePack, removed)
	return &DeleteResult{ID: id, Deleted: true}, nil
}

type mutation func(p *Pack, now time.Time) (changed bool, err error)

// mutate resolves the target, applies fn to a copy and saves it under the revision guard.
// A stale expected revision wins over any error fn reports.
func (s *Service) mutate(ctx context.Context, action string, t Target, expected int64, fn mutation) (*Pack, error) {
	sel, err := s.resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	current := sel.Pack
	next := current.Clone()
	now := s.clock.Now()

	changed, applyErr := fn(next, now)
	if current.Revision != expected {
		attempted := next
		if applyErr != nil {
			attempted = nil
		}
		return nil, CheckRevision(current, attempted, expected)
	}
	if applyErr != nil {
		return nil, applyErr
	}
	if !changed {
		s.logger.Debug("mutation left pack unchanged", "action", action, "id", current.ID, "revision", current.Revision)
		return current, nil
	}

	next.SchemaVersion = CurrentSchemaVersion
	next.Revision = expected + 1
	next.UpdatedAt = now
	if err := s.store.Save(ctx, next, expected); err != nil {
		return nil, err
	}
	s.accepted(ctx, action, next)
	return next, nil
}

// resolve maps a target to exactly one live pack. Unavailable packs are purged on sight
// and reported as not found.
func (s *Service) resolve(ctx context.Context, t Target) (*Selection, error) {
	ident, err := t.identifier()
	if err != nil {
		return nil, err
	}
	if IsPackID(ident) {
		p, err := s.store.Load(ctx, ident)
		if err != nil {
			return nil, err
		}
		if s.policy.State(p, s.clock.Now()) == FreshnessUnavailable {
			s.purge(ctx, p)
			return nil, NotFound("pack '%s' not found", ident)
		}
		return &Selection{Pack: p, SelectedBy: SelectedByExactID}, nil
	}
	if strings.TrimSpace(t.ID) != "" {
		return nil, Validation("'id' must match ^pk_[a-z2-7]{8}$ (got %q)", ident)
	}

	name, err := NormalizeName(ident)
	if err != nil {
		return nil, err
	}
	packs, err := s.sweep(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []*Pack
	for _, p := range packs {
		if p.Name == name {
			candidates = append(candidates, p)
		}
	}
	return ResolveName(name, candidates)
}

// sweep lists every stored pack, purges the unavailable ones and returns the rest.
func (s *Service) sweep(ctx context.Context) ([]*Pack, error) {
	packs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing packs: %w", err)
	}
	now := s.clock.Now()
	live := packs[:0]
	purged := 0
	for _, p := range packs {
		if s.policy.State(p, now) == FreshnessUnavailable {
			if s.purge(ctx, p) {
				purged++
			}
			continue
		}
		live = append(live, p)
	}
	if purged > 0 {
		s.logger.Info("freshness sweep purged packs", "count", purged)
	}
	return live, nil
}

// errRenewed aborts a purge whose pack became available again before the lock was taken.
var errRenewed = errors.New("pack renewed before purge")

// purge deletes p if the stored record is still unavailable under the pack lock.
func (s *Service) purge(ctx context.Context, p *Pack) bool {
	deleted, err := s.store.Delete(ctx, p.ID, func(current *Pack) error {
		if s.policy.State(current, s.clock.Now()) != FreshnessUnavailable {
			return errRenewed
		}
		s.archiveRecord(ctx, current)
		p = current
		return nil
	})
	if errors.Is(err, errRenewed) {
		s.logger.Debug("purge skipped, pack renewed", "id", p.ID)
		return false
	}
	if err != nil {
		s.logger.Warn("purging unavailable pack", "id", p.ID, "error", err)
		return false
	}
	if !deleted {
		return false
	}
	s.logger.Info("pack purged", "id", p.ID, "revision", p.Revision,
		"expires_at", p.ExpiresAt.UTC().Format(time.RFC3339))
	s.recorder.Purged(1)
	s.appendJournal(ctx, ActionPurge, p)
	return true
}

func (s *Service) isLive(p *Pack) bool {
	return s.policy.State(p, s.clock.Now()) != FreshnessUnavailable
}

func (s *Service) accepted(ctx context.Context, action string, p *Pack) {
	s.recorder.MutationAccepted(action)
	s.appendJournal(ctx, action, p)
	s.logger.Info("pack mutated", "action", action, "id", p.ID, "revision", p.Revision)
}

func (s *Service) appendJournal(ctx context.Context, action string, p *Pack) {
	if s.journal == nil {
		return
	}
	entry := JournalEntry{
		PackID:    p.ID,
		Action:    action,
		Revision:  p.Revision,
		RequestID: RequestIDFrom(ctx),
		At:        s.clock.Now(),
	}
	if err := s.journal.Append(ctx, entry); err != nil {
		s.logger.Warn("appending journal entry", "id", p.ID, "action", action, "error", err)
	}
}

func (s *Service) archiveRecord(ctx context.Context, p *Pack) {
	if s.archive == nil {
		return
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		s.logger.Warn("encoding pack for archive", "id", p.ID, "error", err)
		return
	}
	key := ArchiveKey(p.ID, p.Revision)
	if err := s.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		s.logger.Warn("archiving pack record", "id", p.ID, "key", key, "error", err)
		return
	}
	s.logger.Debug("pack record archived", "id", p.ID, "key", key)
}

func (s *Service) observeFailure(ctx context.Context, err error) {
	pe := AsError(err)
	if pe.Kind == KindConflict {
		s.recorder.Conflict(pe.Code)
		s.logger.Info("request rejected", "kind", pe.Kind, "code", pe.Code,
			"request_id", RequestIDFrom(ctx), "message", pe.Message)
		return
	}
	s.logger.Debug("request failed", "kind", pe.Kind, "code", pe.Code,
		"request_id", RequestIDFrom(ctx), "error", err)
}

func (s *Service) view(sel *Selection) *PackView {
	now := s.clock.Now()
	remaining := TTLRemaining(sel.Pack, now)
	return &PackView{
		Pack:                sel.Pack,
		FreshnessState:      s.policy.State(sel.Pack, now),
		TTLRemaining:        HumanTTL(remaining),
		TTLRemainingSeconds: int64(remaining / time.Second),
		SelectedBy:          sel.SelectedBy,
	}
}

func (s *Service) viewOf(p *Pack, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return s.view(&Selection{Pack: p}), nil
}

func (s *Service) summary(p *Pack, now time.Time) *Summary {
	remaining := TTLRemaining(p, now)
	return &Summary{
		ID:                  p.ID,
		Name:                p.Name,
		Title:               p.Title,
		Status:              p.Status,
		Revision:            p.Revision,
		UpdatedAt:           p.UpdatedAt,
		ExpiresAt:           p.ExpiresAt,
		TTLRemainingSeconds: int64(remaining / time.Second),
		TTLRemaining:        HumanTTL(remaining),
		FreshnessState:      s.policy.State(p, now),
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
