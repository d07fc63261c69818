package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", defaultPageLimit, 0},
		{"custom limit", "limit=25", 25, 0},
		{"both", "limit=25&offset=5", 25, 5},
		{"limit exceeds max", "limit=500", maxPageLimit, 0},
		{"negative limit uses default", "limit=-1", defaultPageLimit, 0},
		{"negative offset uses zero", "offset=-5", defaultPageLimit, 0},
		{"non-numeric values", "limit=abc&offset=xyz", defaultPageLimit, 0},
		{"zero limit uses default", "limit=0", defaultPageLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/records?"+tt.query, nil)
			limit, offset := parsePagination(r)
			assert.Equal(t, tt.wantLimit, limit, "limit")
			assert.Equal(t, tt.wantOffset, offset, "offset")
		})
	}
}

func TestPage(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}
	tests := []struct {
		name      string
		query     string
		items     []int
		wantFirst int
		wantLen   int
		wantMore  bool
	}{
		{"first page", "limit=10", items, 0, 10, true},
		{"second page", "limit=10&offset=10", items, 10, 10, true},
		{"last page partial", "limit=10&offset=20", items, 20, 5, false},
		{"offset beyond total", "limit=10&offset=100", items, -1, 0, false},
		{"exact fit", "limit=25", items, 0, 25, false},
		{"empty collection", "", nil, -1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/records?"+tt.query, nil)
			got, meta := page(r, tt.items)
			assert.Len(t, got, tt.wantLen)
			assert.NotNil(t, got)
			assert.Equal(t, len(tt.items), meta.TotalCount)
			assert.Equal(t, tt.wantMore, meta.HasMore)
			if tt.wantFirst >= 0 {
				assert.Equal(t, tt.wantFirst, got[0])
			}
		})
	}
}
