package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// WorkspacePrefix is the URI scheme for workspace files.
const WorkspacePrefix = "workspace://"

// WorkspaceStrategy serves directory listings and file reads from the
// sandboxed workspace root.
type WorkspaceStrategy struct {
	sandbox *Sandbox
}

// NewWorkspaceStrategy creates the workspace strategy. The sandbox is a
// required collaborator; a nil sandbox is a wiring error.
func NewWorkspaceStrategy(sandbox *Sandbox) (*WorkspaceStrategy, error) {
	if sandbox == nil {
		return nil, fmt.Errorf("workspace strategy requires a sandbox")
	}
	return &WorkspaceStrategy{sandbox: sandbox}, nil
}

// Prefix implements Strategy.
func (s *WorkspaceStrategy) Prefix() string {
	return WorkspacePrefix
}

// Description implements Strategy.
func (s *WorkspaceStrategy) Description() string {
	return "Files under the project workspace root"
}

// List enumerates the entries of a workspace directory, filtered through
// the sandbox allow-rules, with stable ordering and pagination.
func (s *WorkspaceStrategy) List(ctx context.Context, params protocol.ListResourcesParams) (*protocol.ListResourcesResult, error) {
	dir := strings.TrimPrefix(params.URI, WorkspacePrefix)
	resolved, err := s.sandbox.Resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, params.URI)
		}
		return nil, fmt.Errorf("list directory: %w", err)
	}

	// os.ReadDir sorts by name, so pages are stable across calls.
	items := make([]protocol.ResourceItem, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && !s.sandbox.AllowedFile(entry.Name()) {
			continue
		}
		rel := filepath.Join(dir, entry.Name())
		item := protocol.ResourceItem{
			URI:  WorkspacePrefix + filepath.ToSlash(rel),
			Name: entry.Name(),
		}
		if entry.IsDir() {
			item.Description = "directory"
		} else {
			item.Description = "file"
			item.MimeType = "text/plain"
		}
		items = append(items, item)
	}

	total := len(items)
	start, end := pageBounds(total, params.Page, params.PageSize)
	return &protocol.ListResourcesResult{
		Items: items[start:end],
		Total: total,
	}, nil
}

// Read returns file content through the sandbox with an optional byte
// range.
func (s *WorkspaceStrategy) Read(ctx context.Context, params protocol.ReadResourceParams) (*protocol.ReadResourceResult, error) {
	path := strings.TrimPrefix(params.URI, WorkspacePrefix)
	resolved, err := s.sandbox.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !s.sandbox.AllowedFile(resolved) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfSandbox, params.URI)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, params.URI)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	chunk, start, length, total := byteRange(string(data), params.Start, params.Length)
	return &protocol.ReadResourceResult{
		Content:  chunk,
		Encoding: "utf-8",
		Start:    start,
		Length:   length,
		Total:    total,
	}, nil
}
