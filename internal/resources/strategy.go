package resources

import (
	"context"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// Strategy serves list and read for one URI scheme.
type Strategy interface {
	// Prefix is the URI prefix this strategy claims, e.g. "workspace://".
	Prefix() string

	// Description is human-readable metadata about the scheme.
	Description() string

	// List enumerates resources under the given URI with pagination.
	List(ctx context.Context, params protocol.ListResourcesParams) (*protocol.ListResourcesResult, error)

	// Read returns resource content with an optional byte range.
	Read(ctx context.Context, params protocol.ReadResourceParams) (*protocol.ReadResourceResult, error)
}

// defaultPageSize bounds list responses when the client sends none.
const defaultPageSize = 100

// pageBounds returns the [start, end) slice bounds for a page of total
// items, normalizing page/pageSize to sane values.
func pageBounds(total, page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

// byteRange slices content by start/length, clamping both to the
// content's bounds. length <= 0 means "to the end".
func byteRange(content string, start, length int64) (chunk string, actualStart, actualLength, total int64) {
	total = int64(len(content))
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if length > 0 && start+length < total {
		end = start + length
	}
	return content[start:end], start, end - start, total
}
