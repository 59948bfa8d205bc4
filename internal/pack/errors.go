package pack

import (
	"errors"
	"fmt"
)

// Kind is the coarse, stable error category surfaced to callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidState      Kind = "invalid_state"
	KindStaleRef          Kind = "stale_ref"
	KindIO                Kind = "io_error"
	KindMigrationRequired Kind = "migration_required"
	KindInternal          Kind = "internal"
)

// Error codes. Each code has a fixed Details shape.
const (
	CodeInvalidData        = "invalid_data"
	CodeTTLRequired        = "ttl_required"
	CodeLegacyField        = "legacy_field"
	CodeUnknownField       = "unknown_field"
	CodeOversize           = "oversize"
	CodeInvalidCursor      = "invalid_cursor"
	CodeNotFound           = "not_found"
	CodeAmbiguous          = "ambiguous"
	CodeRevisionConflict   = "revision_conflict"
	CodeNameConflict       = "name_conflict"
	CodeIDTaken            = "id_taken"
	CodeLockTimeout        = "lock_timeout"
	CodeInvalidState       = "invalid_state"
	CodeFinalizeValidation = "finalize_validation"
	CodeStaleRef           = "stale_ref"
	CodeIOError            = "io_error"
	CodeMigrationRequired  = "migration_required"
	CodeIDExhausted        = "id_exhausted"
)

// Error is the single error type returned by the pack core.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, and by code when the sentinel carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
	ErrRevisionConflict  = &Error{Kind: KindConflict, Code: CodeRevisionConflict, Message: "revision conflict"}
	ErrNameConflict      = &Error{Kind: KindConflict, Code: CodeNameConflict, Message: "name conflict"}
	ErrIDTaken           = &Error{Kind: KindConflict, Code: CodeIDTaken, Message: "pack id already exists"}
	ErrLockTimeout       = &Error{Kind: KindConflict, Code: CodeLockTimeout, Message: "lock wait timed out"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrStaleRef          = &Error{Kind: KindStaleRef, Message: "stale ref"}
	ErrIO                = &Error{Kind: KindIO, Message: "io error"}
	ErrMigrationRequired = &Error{Kind: KindMigrationRequired, Message: "migration required"}
)

// ConflictDetails describes a revision conflict.
type ConflictDetails struct {
	ExpectedRevision   int64    `json:"expected_revision"`
	CurrentRevision    int64    `json:"current_revision"`
	LastUpdatedAt      string   `json:"last_updated_at"`
	ChangedSectionKeys []string `json:"changed_section_keys"`
	Guidance           string   `json:"guidance"`
}

// AmbiguousDetails lists the packs tied for a name.
type AmbiguousDetails struct {
	Name         string   `json:"name"`
	CandidateIDs []string `json:"candidate_ids"`
}

// FinalizeDetails is the full report of a failed finalize check.
type FinalizeDetails struct {
	MissingSections []string   `json:"missing_sections"`
	MissingFields   []string   `json:"missing_fields"`
	InvalidRefs     []RefIssue `json:"invalid_refs"`
}

// RefIssue is one ref that could not be resolved against the source tree.
type RefIssue struct {
	SectionKey string `json:"section_key"`
	RefKey     string `json:"ref_key"`
	Path       string `json:"path"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	Reason     string `json:"reason"`
}

// FieldDetails names an offending request field.
type FieldDetails struct {
	Field     string `json:"field"`
	Canonical string `json:"canonical,omitempty"`
}

// OversizeDetails reports a record that exceeds the byte limit.
type OversizeDetails struct {
	SizeBytes int64 `json:"size_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// LockTimeoutDetails reports a bounded lock wait that expired.
type LockTimeoutDetails struct {
	PackID   string `json:"pack_id"`
	WaitedMS int64  `json:"waited_ms"`
}

// NameConflictDetails reports the pack already holding a name.
type NameConflictDetails struct {
	Name       string `json:"name"`
	ExistingID string `json:"existing_id"`
}

// CursorDetails explains why a continuation token was rejected.
type CursorDetails struct {
	Reason string `json:"reason"`
}

// Validation builds an invalid_data error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidData, Message: fmt.Sprintf(format, args...)}
}

// TTLRequired builds a ttl_required error.
func TTLRequired(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeTTLRequired, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not_found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an invalid_state error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// StaleRef builds a stale_ref error for an unresolvable excerpt.
func StaleRef(format string, args ...any) *Error {
	return &Error{Kind: KindStaleRef, Code: CodeStaleRef, Message: fmt.Sprintf(format, args...)}
}

// IOError wraps an infrastructure failure on a fail-closed path.
func IOError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindIO, Code: CodeIOError, Message: fmt.Sprintf(format, args...), Err: err}
}

// MigrationRequired reports a persisted record with an unsupported schema version.
func MigrationRequired(format string, args ...any) *Error {
	return &Error{Kind: KindMigrationRequired, Code: CodeMigrationRequired, Message: fmt.Sprintf(format, args...)}
}

// Oversize reports a serialized record larger than the configured maximum.
func Oversize(size, limit int64, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeOversize,
		Message: message,
		Details: OversizeDetails{SizeBytes: size, MaxBytes: limit},
	}
}

// LockTimeout reports a lock that could not be acquired in time.
func LockTimeout(packID string, waitedMS int64) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeLockTimeout,
		Message: fmt.Sprintf("timed out after %dms waiting for lock on %s; retry", waitedMS, packID),
		Details: LockTimeoutDetails{PackID: packID, WaitedMS: waitedMS},
	}
}

// NameConflict reports a create whose name is already held by a live pack.
func NameConflict(name, existingID string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeNameConflict,
		Message: fmt.Sprintf("pack name %q is already used by %s", name, existingID),
		Details: NameConflictDetails{Name: name, ExistingID: existingID},
	}
}

// IDTaken reports a generated id that already has a stored record.
func IDTaken(id string) *Error {
	return &Error{Kind: KindConflict, Code: CodeIDTaken, Message: fmt.Sprintf("pack id already exists: %s", id)}
}

func invalidCursor(reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidCursor,
		Message: "invalid_cursor: " + reason,
		Details: CursorDetails{Reason: reason},
	}
}

// AsError converts any error into an *Error. Unknown errors become io_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return IOError(err, "unexpected failure")
}
