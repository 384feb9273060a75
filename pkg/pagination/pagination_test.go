package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.Limit)
	assert.Empty(t, p.Search)
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Page: 1, Limit: 50}},
		{"custom", "page=3&limit=20&search=acme", Params{Page: 3, Limit: 20, Search: "acme"}},
		{"per_page alias", "per_page=10", Params{Page: 1, Limit: 10}},
		{"negative page", "page=-1", Params{Page: 1, Limit: 50}},
		{"zero page", "page=0", Params{Page: 1, Limit: 50}},
		{"limit too large", "limit=500", Params{Page: 1, Limit: 50}},
		{"non numeric", "page=abc&limit=xyz", Params{Page: 1, Limit: 50}},
		{"search trimmed", "search=%20jane%20", Params{Page: 1, Limit: 50, Search: "jane"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, FromQuery(q))
		})
	}
}

func TestValues(t *testing.T) {
	assert.Equal(t, url.Values{"limit": {"50"}}, DefaultParams().Values())
	assert.Equal(t,
		url.Values{"page": {"2"}, "limit": {"20"}, "search": {"acme"}},
		Params{Page: 2, Limit: 20, Search: "acme"}.Values(),
	)
}

func TestValues_RoundTrip(t *testing.T) {
	p := Params{Page: 4, Limit: 25, Search: "design"}
	assert.Equal(t, p, FromQuery(p.Values()))
}
