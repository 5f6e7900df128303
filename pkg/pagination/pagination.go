package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultSize = 20
	maxSize     = 200
)

// Window 列表接口的页窗口，Page 从 1 开始
type Window struct {
	Page int
	Size int
}

// PageInfo 随列表一起返回的分页信息
type PageInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// FromQuery 读取 ?page=&page_size=，非法值回落到默认窗口
func FromQuery(c *gin.Context) Window {
	return Window{
		Page: positive(c.Query("page"), 1),
		Size: min(positive(c.Query("page_size"), defaultSize), maxSize),
	}
}

func positive(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Slice 截取 items 中 w 所指的一页，越界页返回空列表而不是 nil
func Slice[T any](items []T, w Window) ([]T, *PageInfo) {
	if w.Page < 1 {
		w.Page = 1
	}
	if w.Size < 1 {
		w.Size = defaultSize
	}

	total := len(items)
	from := total
	if w.Page-1 <= total/w.Size {
		from = min((w.Page-1)*w.Size, total)
	}
	to := min(from+w.Size, total)

	page := make([]T, to-from)
	copy(page, items[from:to])

	pages := (total + w.Size - 1) / w.Size
	return page, &PageInfo{
		Page:       w.Page,
		PageSize:   w.Size,
		Total:      total,
		TotalPages: pages,
		HasNext:    w.Page < pages,
		HasPrev:    w.Page > 1,
	}
}
