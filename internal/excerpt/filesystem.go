package excerpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// FSExcerpter reads ref excerpts from files under a canonical source root.
type FSExcerpter struct {
	root     string
	maxBytes int64
	deny     *DenyMatcher
}

// NewFSExcerpter creates an excerpter rooted at root. "", "." and "cwd" mean the
// working directory. Patterns from DenyFileName in the root are added to deny.
func NewFSExcerpter(root string, maxBytes int64, deny []string) (*FSExcerpter, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	extra, err := ParseDenyFile(filepath.Join(canonical, DenyFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string{}, deny...), extra...)
	return &FSExcerpter{
		root:     canonical,
		maxBytes: maxBytes,
		deny:     NewDenyMatcher(patterns),
	}, nil
}

// CanonicalRoot resolves root to an absolute path with symlinks evaluated.
func CanonicalRoot(root string) (string, error) {
	if root == "" || root == "." || root == "cwd" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving source root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving source root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("source root not accessible: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source root is not a directory: %s", canonical)
	}
	return canonical, nil
}

// Root returns the canonical source root.
func (e *FSExcerpter) Root() string { return e.root }

// ReadLines returns the numbered lines [lineStart, lineEnd] of path.
func (e *FSExcerpter) ReadLines(ctx context.Context, relPath string, lineStart, lineEnd int) (*pack.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := pack.NormalizePath(relPath)
	if err != nil {
		return nil, pack.StaleRef("invalid ref path: %s", relPath)
	}
	if e.deny.Match(clean) {
		return nil, pack.StaleRef("path %s is denied by source policy", clean)
	}

	resolved, err := e.resolve(clean)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, pack.IOError(err, "stat %s", clean)
	}
	if info.IsDir() {
		return nil, pack.StaleRef("path %s is a directory", clean)
	}
	if e.maxBytes > 0 && info.Size() > e.maxBytes {
		return nil, pack.StaleRef("file %s is %s, over the %s excerpt limit",
			clean, humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(e.maxBytes)))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, pack.IOError(err, "reading %s", clean)
	}
	lines := splitLines(data)
	if lineStart < 1 || lineEnd < lineStart || lineEnd > len(lines) {
		return nil, pack.StaleRef("line range %d-%d is outside %s (%d lines)", lineStart, lineEnd, clean, len(lines))
	}

	var b strings.Builder
	for i := lineStart; i <= lineEnd; i++ {
		if i > lineStart {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s", i, lines[i-1])
	}
	return &pack.Snippet{
		Path:       clean,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		Body:       b.String(),
		TotalLines: len(lines),
	}, nil
}

// resolve joins clean onto the root and rejects anything whose real location is
// outside of it.
func (e *FSExcerpter) resolve(clean string) (string, error) {
	full := filepath.Join(e.root, filepath.FromSlash(clean))
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", pack.StaleRef("file not found: %s", clean)
		}
		return "", pack.IOError(err, "resolving %s", clean)
	}
	rel, err := filepath.Rel(e.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pack.StaleRef("path %s resolves outside the source root", clean)
	}
	return resolved, nil
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	raw := strings.Split(string(data), "\n")
	for i, line := range raw {
		raw[i] = strings.TrimSuffix(line, "\r")
	}
	return raw
}

// Compile-time check that FSExcerpter implements pack.Excerpter interface
var _ pack.Excerpter = (*FSExcerpter)(nil)
