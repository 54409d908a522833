package domain

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Window turns a zero based page index and size into a query offset and
// limit. The size is capped at MaxPageSize and the offset stays within int32.
func Window(pageIndex, pageSize int) (offset, limit int) {
	limit = pageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	index := min(max(pageIndex, 0), math.MaxInt32/limit)
	return index * limit, limit
}
