package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse extracts page/limit from the query, falling back to DefaultLimit
func Parse(c *gin.Context) Params {
	return ParseWithDefault(c, DefaultLimit)
}

// ParseWithDefault is Parse with a per-endpoint default page size. Out of range
// values are clamped rather than rejected.
func ParseWithDefault(c *gin.Context, defaultLimit int) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	switch {
	case err != nil || limit < MinLimit:
		limit = defaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return New(page, limit)
}

// New builds Params from already validated values
func New(page, limit int) Params {
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Result is the list payload shape: the items under key plus paging info
func (p Params) Result(key string, items interface{}, total int64) map[string]interface{} {
	return map[string]interface{}{
		key:     items,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}
}
