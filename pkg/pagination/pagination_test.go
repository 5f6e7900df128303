package pagination

import (
	"math"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/bookings?"+rawQuery, nil)
	return c
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  Window
	}{
		{"", Window{Page: 1, Size: 20}},
		{"page=3&page_size=5", Window{Page: 3, Size: 5}},
		{"page=0&page_size=-1", Window{Page: 1, Size: 20}},
		{"page=abc&page_size=10000", Window{Page: 1, Size: 200}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromQuery(queryContext(tt.query)), tt.query)
	}
}

func TestSlice(t *testing.T) {
	items := []string{"b1", "b2", "b3", "b4", "b5"}

	page, info := Slice(items, Window{Page: 2, Size: 2})
	assert.Equal(t, []string{"b3", "b4"}, page)
	assert.Equal(t, &PageInfo{Page: 2, PageSize: 2, Total: 5, TotalPages: 3, HasNext: true, HasPrev: true}, info)

	page, info = Slice(items, Window{Page: 3, Size: 2})
	assert.Equal(t, []string{"b5"}, page)
	assert.False(t, info.HasNext)

	// 返回的页与原切片不共享底层数组
	page[0] = "changed"
	assert.Equal(t, "b5", items[4])
}

func TestSliceOutOfRange(t *testing.T) {
	items := []int{1, 2, 3}

	page, info := Slice(items, Window{Page: 9, Size: 2})
	require.NotNil(t, page)
	assert.Empty(t, page)
	assert.Equal(t, 2, info.TotalPages)

	page, _ = Slice(items, Window{Page: math.MaxInt, Size: 200})
	assert.Empty(t, page)

	page, info = Slice([]int(nil), Window{})
	require.NotNil(t, page)
	assert.Equal(t, 0, info.TotalPages)
	assert.Equal(t, 1, info.Page)
	assert.False(t, info.HasNext)
}

func TestSliceFromRequest(t *testing.T) {
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}
	page, info := Slice(items, FromQuery(queryContext("page=3&page_size="+strconv.Itoa(20))))
	assert.Equal(t, []int{40, 41, 42, 43, 44}, page)
	assert.Equal(t, 45, info.Total)
	assert.True(t, info.HasPrev)
}
