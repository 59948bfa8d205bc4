package pack

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	compactSignalLimit  = 3
	compactNavHintLimit = 5
	signalMaxChars      = 140

	// MaxContainsLength bounds the contains filter.
	MaxContainsLength = 256

	defaultExcerptParallelism = 8
)

var (
	riskKeywords = []string{"risk", "risky", "blocker", "critical", "incident", "warning"}
	gapKeywords  = []string{"gap", "missing", "unknown", "todo", "tbd", "follow-up", "followup", "fixme"}
)

// RenderRequest shapes one read of a pack. Zero values mean "not supplied".
type RenderRequest struct {
	Profile   Profile
	Limit     *int
	Offset    *int
	PageToken string
	Contains  string
	Status    Status
}

// Page is one rendered page of a pack.
type Page struct {
	Text           string
	HasMore        bool
	NextToken      string
	ChunksTotal    int
	ChunksReturned int
}

type chunkKind int

const (
	chunkSection chunkKind = iota
	chunkRef
	chunkDiagram
)

// chunk is the unit of filtering and pagination.
type chunk struct {
	kind               chunkKind
	sectionKey         string
	sectionTitle       string
	sectionDescription string
	group              string
	refKey             string
	stale              bool
	body               string
	searchable         string
}

type pageArgs struct {
	profile     Profile
	limit       int // 0 means unlimited
	offset      int
	contains    string
	status      Status
	paging      bool
	fingerprint string
}

type excerptResult struct {
	snippet *Snippet
	stale   string
}

// Renderer projects a resolved pack into a bounded, profile-shaped text page.
type Renderer struct {
	excerpter   Excerpter
	policy      FreshnessPolicy
	clock       Clock
	recorder    Recorder
	parallelism int
}

// NewRenderer creates a Renderer. A nil recorder discards measurements.
func NewRenderer(excerpter Excerpter, policy FreshnessPolicy, clock Clock, recorder Recorder) *Renderer {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Renderer{
		excerpter:   excerpter,
		policy:      policy,
		clock:       clock,
		recorder:    recorder,
		parallelism: defaultExcerptParallelism,
	}
}

// Render produces one page for the selected pack.
func (r *Renderer) Render(ctx context.Context, sel *Selection, req RenderRequest) (*Page, error) {
	p := sel.Pack
	args, err := resolvePageArgs(p, req)
	if err != nil {
		return nil, err
	}
	if args.status != "" && p.Status != args.status {
		return nil, InvalidState("pack status is '%s', expected '%s'", p.Status, args.status)
	}

	chunks, err := r.collectChunks(ctx, p, args.profile)
	if err != nil {
		return nil, err
	}
	if args.contains != "" {
		needle := strings.ToLower(args.contains)
		filtered := chunks[:0]
		for _, c := range chunks {
			if strings.Contains(strings.ToLower(c.searchable), needle) {
				filtered = append(filtered, c)
			}
		}
		chunks = filtered
	}

	total := len(chunks)
	start := min(args.offset, total)
	end := total
	if args.limit > 0 {
		end = min(start+args.limit, total)
	}
	pageChunks := chunks[start:end]
	hasMore := end < total

	var next string
	if args.paging && hasMore {
		next = encodePageToken(pageToken{
			V:           1,
			PackID:      p.ID,
			Revision:    p.Revision,
			NextOffset:  end,
			Fingerprint: args.fingerprint,
			Profile:     args.profile,
			Limit:       args.limit,
			Contains:    args.contains,
			Status:      args.status,
		})
	}

	now := r.clock.Now()
	var b strings.Builder
	b.Grow(2048)
	b.WriteString("[LEGEND]\n")
	r.writeLegendHeader(&b, p, now)
	fmt.Fprintf(&b, "- selected_by: %s\n", sel.SelectedBy)
	fmt.Fprintf(&b, "- selected_revision: %d\n", p.Revision)
	fmt.Fprintf(&b, "- selected_status: %s\n", p.Status)
	fmt.Fprintf(&b, "- profile: %s\n", args.profile)
	if args.contains != "" {
		fmt.Fprintf(&b, "- contains: %s\n", args.contains)
	}
	if args.paging {
		b.WriteString("- paging: active\n")
		fmt.Fprintf(&b, "- offset: %d\n", start)
		if args.limit > 0 {
			fmt.Fprintf(&b, "- limit: %d\n", args.limit)
		} else {
			b.WriteString("- limit: all\n")
		}
	}
	fmt.Fprintf(&b, "- has_more: %t\n", hasMore)
	if next != "" {
		fmt.Fprintf(&b, "- next: %s\n", next)
	} else {
		b.WriteString("- next: null\n")
	}
	fmt.Fprintf(&b, "- chunks_total: %d\n", total)
	fmt.Fprintf(&b, "- chunks_returned: %d\n", len(pageChunks))

	b.WriteString("\n[CONTENT]\n")
	if args.profile.Compact() {
		r.writeHandoffSummary(&b, p, now, chunks, pageChunks, hasMore)
	}
	writeChunks(&b, pageChunks)
	if len(pageChunks) == 0 {
		b.WriteString("\n_No chunks matched current filters._\n")
	}

	r.recorder.ChunksRendered(len(pageChunks))
	return &Page{
		Text:           b.String(),
		HasMore:        hasMore,
		NextToken:      next,
		ChunksTotal:    total,
		ChunksReturned: len(pageChunks),
	}, nil
}

func resolvePageArgs(p *Pack, req RenderRequest) (pageArgs, error) {
	if req.PageToken != "" && req.Offset != nil {
		return pageArgs{}, invalidCursor("provide either 'offset' or 'page_token', not both")
	}
	if req.Limit != nil && *req.Limit < 1 {
		return pageArgs{}, Validation("'limit' must be >= 1 when paging is active")
	}
	if req.Offset != nil && *req.Offset < 0 {
		return pageArgs{}, Validation("'offset' must be >= 0")
	}

	if req.PageToken != "" {
		tok, err := decodePageToken(req.PageToken)
		if err != nil {
			return pageArgs{}, err
		}
		if tok.PackID != p.ID {
			return pageArgs{}, invalidCursor("pack id mismatch")
		}
		if tok.Revision != p.Revision {
			return pageArgs{}, invalidCursor("pack revision changed")
		}
		args := pageArgs{
			profile:  tok.Profile,
			limit:    tok.Limit,
			offset:   tok.NextOffset,
			contains: tok.Contains,
			status:   tok.Status,
			paging:   true,
		}
		if req.Profile != "" {
			args.profile = req.Profile
		}
		if req.Limit != nil {
			args.limit = *req.Limit
		}
		if req.Contains != "" {
			args.contains = req.Contains
		}
		if req.Status != "" {
			args.status = req.Status
		}
		args.fingerprint = pageFingerprint(p, args.profile, args.limit, args.contains, args.status)
		if args.fingerprint != tok.Fingerprint {
			return pageArgs{}, invalidCursor("request fingerprint mismatch")
		}
		return args, nil
	}

	args := pageArgs{
		profile:  req.Profile,
		contains: req.Contains,
		status:   req.Status,
	}
	if args.profile == "" {
		args.profile = ProfileOrchestrator
	}
	args.paging = args.profile.Compact() || req.Limit != nil || req.Offset != nil
	args.limit = args.profile.DefaultLimit()
	if req.Limit != nil {
		args.limit = *req.Limit
	}
	if req.Offset != nil {
		args.offset = *req.Offset
	}
	args.fingerprint = pageFingerprint(p, args.profile, args.limit, args.contains, args.status)
	return args, nil
}

// collectChunks renders every section of p into chunks in display order. Excerpts are
// read concurrently; stale refs become stale markers, any other excerpt error aborts.
func (r *Renderer) collectChunks(ctx context.Context, p *Pack, profile Profile) ([]chunk, error) {
	var refs []Ref
	for _, s := range p.Sections {
		for _, g := range s.groupedRefs() {
			refs = append(refs, g.refs...)
		}
	}

	results := make([]excerptResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, ref := range refs {
		g.Go(func() error {
			snippet, err := r.excerpter.ReadLines(gctx, ref.Path, ref.LineStart, ref.LineEnd)
			if err != nil {
				if errors.Is(err, ErrStaleRef) {
					results[i] = excerptResult{stale: AsError(err).Message}
					return nil
				}
				return err
			}
			results[i] = excerptResult{snippet: snippet}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []chunk
	next := 0
	for _, s := range p.Sections {
		base := chunk{sectionKey: s.Key, sectionTitle: s.Title, sectionDescription: s.Description}
		if len(s.Refs) == 0 && len(s.Diagrams) == 0 {
			c := base
			c.kind = chunkSection
			c.searchable = s.Title + "\n" + s.Key + "\n" + s.Description + "\n" + s.Verdict
			chunks = append(chunks, c)
			continue
		}
		for _, grp := range s.groupedRefs() {
			for _, ref := range grp.refs {
				c := base
				c.kind = chunkRef
				c.group = grp.name
				c.refKey = ref.Key
				c.body, c.searchable, c.stale = renderRef(s.Key, ref, results[next], profile)
				next++
				chunks = append(chunks, c)
			}
		}
		for _, d := range s.Diagrams {
			c := base
			c.kind = chunkDiagram
			c.body, c.searchable = renderDiagram(d)
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func renderRef(sectionKey string, ref Ref, res excerptResult, profile Profile) (body, searchable string, stale bool) {
	var b, s strings.Builder
	fmt.Fprintf(&b, "\n#### %s [%s]\n", ref.Key, sectionKey)
	s.WriteString(ref.Key + "\n")
	if ref.Title != "" {
		fmt.Fprintf(&b, "**%s**\n\n", ref.Title)
		s.WriteString(ref.Title + "\n")
	}
	fmt.Fprintf(&b, "- path: %s\n", ref.Path)
	fmt.Fprintf(&b, "- lines: %s\n", describeRange(ref.LineStart, ref.LineEnd))
	s.WriteString(ref.Path + "\n" + describeRange(ref.LineStart, ref.LineEnd) + "\n")
	if ref.Why != "" {
		fmt.Fprintf(&b, "- why: %s\n", ref.Why)
		s.WriteString(ref.Why + "\n")
	}
	if res.snippet == nil {
		fmt.Fprintf(&b, "\n> stale ref: %s\n", res.stale)
		s.WriteString(res.stale + "\n")
		return b.String(), s.String(), true
	}
	s.WriteString(res.snippet.Body + "\n")
	if !profile.Compact() {
		fmt.Fprintf(&b, "\n```%s\n%s\n```\n", langFromPath(ref.Path), res.snippet.Body)
	}
	return b.String(), s.String(), false
}

func renderDiagram(d Diagram) (body, searchable string) {
	var b, s strings.Builder
	fmt.Fprintf(&b, "\n#### %s\n", d.Title)
	s.WriteString(d.Title + "\n")
	if d.Why != "" {
		fmt.Fprintf(&b, "_%s_\n\n", d.Why)
		s.WriteString(d.Why + "\n")
	}
	fmt.Fprintf(&b, "```mermaid\n%s\n```\n", d.Mermaid)
	s.WriteString(d.Mermaid + "\n")
	return b.String(), s.String()
}

func writeChunks(b *strings.Builder, chunks []chunk) {
	currentSection := ""
	currentGroup := ""
	diagramsOpen := false
	for _, c := range chunks {
		if c.sectionKey != currentSection {
			currentSection = c.sectionKey
			currentGroup = ""
			diagramsOpen = false
			fmt.Fprintf(b, "\n## %s [%s]\n", c.sectionTitle, c.sectionKey)
			if c.sectionDescription != "" {
				fmt.Fprintf(b, "\n%s\n", c.sectionDescription)
			}
		}
		switch c.kind {
		case chunkRef:
			if c.group != currentGroup {
				fmt.Fprintf(b, "\n### group: %s\n", c.group)
				currentGroup = c.group
			}
			b.WriteString(c.body)
		case chunkDiagram:
			if !diagramsOpen {
				b.WriteString("\n### Diagrams\n")
				diagramsOpen = true
				currentGroup = ""
			}
			b.WriteString(c.body)
		}
	}
}

func (r *Renderer) writeLegendHeader(b *strings.Builder, p *Pack, now time.Time) {
	state := r.policy.State(p, now)
	fmt.Fprintf(b, "# Context pack: %s\n\n", p.DisplayTitle())
	fmt.Fprintf(b, "- id: %s\n", p.ID)
	if p.Name != "" {
		fmt.Fprintf(b, "- name: %s\n", p.Name)
	}
	fmt.Fprintf(b, "- status: %s\n", p.Status)
	fmt.Fprintf(b, "- revision: %d\n", p.Revision)
	fmt.Fprintf(b, "- expires_at: %s\n", p.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "- ttl_remaining: %s\n", HumanTTL(TTLRemaining(p, now)))
	fmt.Fprintf(b, "- freshness_state: %s\n", state)
	if w := state.Warning(); w != "" {
		fmt.Fprintf(b, "- warning: %s\n", w)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(b, "- tags: %s\n", strings.Join(p.Tags, ", "))
	}
	if p.Brief != "" {
		fmt.Fprintf(b, "- brief: %s\n", p.Brief)
	}
}

func (r *Renderer) writeHandoffSummary(b *strings.Builder, p *Pack, now time.Time, filtered, page []chunk, hasMore bool) {
	state := r.policy.State(p, now)
	verdict := "none"
	if qa, ok := p.Section(SectionQA); ok && strings.TrimSpace(qa.Verdict) != "" {
		verdict = truncateSignal(qa.Verdict)
	}

	b.WriteString("\n## Handoff summary [handoff]\n")
	fmt.Fprintf(b, "- objective: %s\n", p.DisplayTitle())
	fmt.Fprintf(b, "- scope: %s\n", compactScope(p))
	fmt.Fprintf(b, "- verdict_status: status=%s, freshness_state=%s, qa_verdict=%s\n", p.Status, state, verdict)
	fmt.Fprintf(b, "- freshness: expires_at=%s, ttl_remaining=%s\n",
		p.ExpiresAt.UTC().Format(time.RFC3339), HumanTTL(TTLRemaining(p, now)))
	b.WriteString("- top_risks:\n")
	for _, risk := range riskSignals(p, filtered, state) {
		fmt.Fprintf(b, "  - %s\n", risk)
	}
	b.WriteString("- top_gaps:\n")
	for _, gap := range gapSignals(p, hasMore) {
		fmt.Fprintf(b, "  - %s\n", gap)
	}
	b.WriteString("- deep_nav_hints:\n")
	fmt.Fprintf(b, "  - full_evidence: output {\"action\":\"read\",\"id\":\"%s\",\"profile\":\"reviewer\"}\n", p.ID)
	if hasMore {
		b.WriteString("  - continue_compact: call output read with LEGEND `next` as page_token\n")
	}
	fmt.Fprintf(b, "  - sections: %s\n", joinOrNone(sectionHints(p)))
	fmt.Fprintf(b, "  - refs_on_page: %s\n", joinOrNone(refHints(page)))
}

func compactScope(p *Pack) string {
	if brief := strings.TrimSpace(p.Brief); brief != "" {
		return brief
	}
	var titles []string
	for _, s := range p.Sections {
		t := strings.TrimSpace(s.Title)
		if t == "" || (len(titles) > 0 && titles[len(titles)-1] == t) {
			continue
		}
		titles = append(titles, t)
		if len(titles) >= compactNavHintLimit {
			break
		}
	}
	if len(titles) == 0 {
		return "scope is not explicitly documented in pack brief"
	}
	return "sections in scope: " + strings.Join(titles, ", ")
}

func riskSignals(p *Pack, filtered []chunk, state Freshness) []string {
	var risks []string
	if w := state.Warning(); w != "" {
		risks = append(risks, "freshness: "+w)
	}
	var stale []string
	for _, c := range filtered {
		if c.stale && c.refKey != "" {
			stale = append(stale, c.refKey)
			if len(stale) >= compactSignalLimit {
				break
			}
		}
	}
	if len(stale) > 0 {
		risks = append(risks, "stale refs: "+strings.Join(stale, ", "))
	}
	risks = append(risks, keywordSignals(p, riskKeywords, compactSignalLimit-len(risks))...)
	if len(risks) == 0 {
		risks = append(risks, "none explicitly signaled")
	}
	if len(risks) > compactSignalLimit {
		risks = risks[:compactSignalLimit]
	}
	return risks
}

func gapSignals(p *Pack, hasMore bool) []string {
	gaps := keywordSignals(p, gapKeywords, compactSignalLimit)
	if hasMore && len(gaps) < compactSignalLimit {
		gaps = append(gaps, "compact page is partial; continue via LEGEND next token")
	}
	if len(gaps) == 0 {
		gaps = append(gaps, "none explicitly tagged")
	}
	return gaps
}

func sectionHints(p *Pack) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, s := range p.Sections {
		hint := fmt.Sprintf("%s[%s]", s.Title, s.Key)
		if seen[hint] {
			continue
		}
		seen[hint] = true
		hints = append(hints, hint)
		if len(hints) >= compactNavHintLimit {
			break
		}
	}
	return hints
}

func refHints(page []chunk) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, c := range page {
		if c.refKey == "" || seen[c.refKey] {
			continue
		}
		seen[c.refKey] = true
		hints = append(hints, c.refKey)
		if len(hints) >= compactNavHintLimit {
			break
		}
	}
	return hints
}

func keywordSignals(p *Pack, keywords []string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, candidate := range textCandidates(p) {
		normalized := strings.ToLower(candidate)
		hit := false
		for _, k := range keywords {
			if strings.Contains(normalized, k) {
				hit = true
				break
			}
		}
		if !hit || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, truncateSignal(candidate))
		if len(out) >= limit {
			break
		}
	}
	return out
}

func textCandidates(p *Pack) []string {
	var out []string
	if p.Brief != "" {
		out = append(out, p.Brief)
	}
	for _, s := range p.Sections {
		out = append(out, s.Title)
		if s.Description != "" {
			out = append(out, s.Description)
		}
		if s.Verdict != "" {
			out = append(out, s.Verdict)
		}
		for _, r := range s.Refs {
			out = append(out, r.Key)
			if r.Title != "" {
				out = append(out, r.Title)
			}
			if r.Why != "" {
				out = append(out, r.Why)
			}
		}
		for _, d := range s.Diagrams {
			out = append(out, d.Title)
			if d.Why != "" {
				out = append(out, d.Why)
			}
		}
	}
	return out
}

func truncateSignal(raw string) string {
	compact := strings.Join(strings.Fields(raw), " ")
	runes := []rune(compact)
	if len(runes) <= signalMaxChars {
		return compact
	}
	return string(runes[:signalMaxChars-1]) + "…"
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

var languageByExt = map[string]string{
	"rs": "rust", "ts": "typescript", "tsx": "typescript", "js": "javascript", "jsx": "javascript",
	"py": "python", "go": "go", "java": "java", "kt": "kotlin", "c": "c", "h": "c",
	"cpp": "cpp", "cc": "cpp", "cxx": "cpp", "hpp": "cpp", "cs": "csharp", "rb": "ruby",
	"sh": "bash", "bash": "bash", "toml": "toml", "yaml": "yaml", "yml": "yaml", "json": "json",
	"sql": "sql", "md": "markdown", "html": "html", "htm": "html", "css": "css", "proto": "protobuf",
}

func langFromPath(p string) string {
	return languageByExt[strings.TrimPrefix(path.Ext(p), ".")]
}

// RenderList formats list summaries as a short markdown index.
func RenderList(packs []*Summary) string {
	if len(packs) == 0 {
		return "No context packs found."
	}
	var b strings.Builder
	b.WriteString("# Context packs\n\n")
	for _, p := range packs {
		title := p.Title
		if title == "" {
			title = p.Name
		}
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "- `%s` - %s (status `%s`, revision `%d`, ttl `%s`, freshness `%s`)\n",
			p.ID, title, p.Status, p.Revision, p.TTLRemaining, p.FreshnessState)
	}
	return b.String()
}
