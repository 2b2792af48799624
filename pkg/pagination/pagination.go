package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MinPageSize     = 5
	MaxPageSize     = 50
)

// Params is a clamped page window: page >= 1, page size in [5,50].
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Clamp normalizes out-of-range values instead of rejecting them.
func Clamp(page, pageSize int) Params {
	if page < 1 {
		page = 1
	}
	if pageSize < MinPageSize {
		pageSize = MinPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}
}

// FromQuery reads page and page_size query params, falling back to the
// defaults when absent or malformed.
func FromQuery(c *gin.Context) Params {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if err != nil {
		pageSize = DefaultPageSize
	}
	return Clamp(page, pageSize)
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Scope applies the window to a gorm query. Count the filtered set before
// applying it.
func (p Params) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// Result is the standard paginated response body.
type Result struct {
	Items      interface{} `json:"items"`
	TotalItems int64       `json:"total_items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func NewResult(items interface{}, total int64, p Params) Result {
	return Result{
		Items:      items,
		TotalItems: total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: TotalPages(total, p.PageSize),
	}
}

func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		pages++
	}
	return pages
}
