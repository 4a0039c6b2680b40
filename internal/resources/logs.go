package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/flydevtools/flyserve/internal/logstore"
	"github.com/flydevtools/flyserve/internal/protocol"
)

// URI prefixes for the captured log families.
const (
	RunLogPrefix   = "logs://run/"
	BuildLogPrefix = "logs://build/"
)

// LogStrategy serves one family of in-memory captured process output,
// keyed by an identifier (run ID or build ID).
type LogStrategy struct {
	prefix      string
	description string
	store       *logstore.Store
}

// NewRunLogStrategy creates the strategy for run logs. The store is a
// required collaborator; nil is a wiring error.
func NewRunLogStrategy(store *logstore.Store) (*LogStrategy, error) {
	return newLogStrategy(RunLogPrefix, "Captured output of tool-launched runs", store)
}

// NewBuildLogStrategy creates the strategy for build logs.
func NewBuildLogStrategy(store *logstore.Store) (*LogStrategy, error) {
	return newLogStrategy(BuildLogPrefix, "Captured output of workspace builds", store)
}

func newLogStrategy(prefix, description string, store *logstore.Store) (*LogStrategy, error) {
	if store == nil {
		return nil, fmt.Errorf("log strategy %s requires a log store", prefix)
	}
	return &LogStrategy{prefix: prefix, description: description, store: store}, nil
}

// Prefix implements Strategy.
func (s *LogStrategy) Prefix() string {
	return s.prefix
}

// Description implements Strategy.
func (s *LogStrategy) Description() string {
	return s.description
}

// List enumerates captured logs, optionally filtered by an ID prefix
// taken from the request URI, with stable ordering and pagination.
func (s *LogStrategy) List(ctx context.Context, params protocol.ListResourcesParams) (*protocol.ListResourcesResult, error) {
	idPrefix := strings.TrimPrefix(params.URI, s.prefix)
	entries := s.store.List(idPrefix)

	items := make([]protocol.ResourceItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, protocol.ResourceItem{
			URI:         s.prefix + entry.ID,
			Name:        entry.ID,
			Description: fmt.Sprintf("%d bytes, updated %s", entry.Size, entry.UpdatedAt.Format("2006-01-02 15:04:05")),
			MimeType:    "text/plain",
		})
	}

	total := len(items)
	start, end := pageBounds(total, params.Page, params.PageSize)
	return &protocol.ListResourcesResult{
		Items: items[start:end],
		Total: total,
	}, nil
}

// Read returns captured output for one ID with an optional byte range.
func (s *LogStrategy) Read(ctx context.Context, params protocol.ReadResourceParams) (*protocol.ReadResourceResult, error) {
	id := strings.TrimPrefix(params.URI, s.prefix)
	content, ok := s.store.Content(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, params.URI)
	}

	chunk, start, length, total := byteRange(content, params.Start, params.Length)
	return &protocol.ReadResourceResult{
		Content:  chunk,
		Encoding: "utf-8",
		Start:    start,
		Length:   length,
		Total:    total,
	}, nil
}
