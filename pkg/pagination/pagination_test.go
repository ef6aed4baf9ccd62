package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func ctxWithQuery(q string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/x?"+q, nil)
	return c
}

func TestParse(t *testing.T) {
	cases := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, Limit: 20, Offset: 0}},
		{"page=3&limit=10", Params{Page: 3, Limit: 10, Offset: 20}},
		{"page=0&limit=0", Params{Page: 1, Limit: 20, Offset: 0}},
		{"page=abc&limit=-5", Params{Page: 1, Limit: 20, Offset: 0}},
		{"page=2&limit=1000", Params{Page: 2, Limit: 100, Offset: 100}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(ctxWithQuery(tc.query)), tc.query)
	}
}

func TestParseWithDefault(t *testing.T) {
	assert.Equal(t, 50, ParseWithDefault(ctxWithQuery(""), 50).Limit)
	assert.Equal(t, 5, ParseWithDefault(ctxWithQuery("limit=5"), 50).Limit)
}

func TestResult(t *testing.T) {
	got := New(2, 10).Result("users", []string{"a"}, 11)
	assert.Equal(t, []string{"a"}, got["users"])
	assert.Equal(t, int64(11), got["total"])
	assert.Equal(t, 2, got["page"])
	assert.Equal(t, 10, got["limit"])
}
