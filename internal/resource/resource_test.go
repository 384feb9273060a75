package resource

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionKey_Canonical(t *testing.T) {
	a := CollectionKey(Contacts, url.Values{"search": {"acme"}, "limit": {"50"}})
	b := CollectionKey(Contacts, url.Values{"limit": {"50"}, "search": {"acme"}, "page": {""}})

	assert.Equal(t, a, b)
	assert.Equal(t, "limit=50&search=acme", a.Params)
	assert.Equal(t, "/contacts?limit=50&search=acme", a.String())
}

func TestCollectionKey_EmptyParams(t *testing.T) {
	assert.Equal(t, Key{Type: Blog}, CollectionKey(Blog, nil))
	assert.Equal(t, Key{Type: Blog}, CollectionKey(Blog, url.Values{"search": {""}}))
}

func TestMatches(t *testing.T) {
	all := CollectionKey(Blog, nil)
	filtered := CollectionKey(Blog, url.Values{"limit": {"50"}})
	detail := DetailKey(Blog, "p1")
	other := DetailKey(Blog, "p2")

	tests := []struct {
		name    string
		key     Key
		pattern Key
		want    bool
	}{
		{"bare collection covers itself", all, all, true},
		{"bare collection covers filtered lists", filtered, all, true},
		{"bare collection does not cover details", detail, all, false},
		{"filtered pattern is exact", all, filtered, false},
		{"detail exact", detail, detail, true},
		{"detail other id", other, detail, false},
		{"different type", CollectionKey(Team, nil), all, false},
		{"view not covered by collection", ViewKey(Careers, "c1", "applications"), CollectionKey(Careers, nil), false},
		{"view pattern covers every id", ViewKey(Services, "web-design", SlugView), ViewKey(Services, "", SlugView), true},
		{"view pattern is per view", ViewKey(Careers, "c1", "applications"), ViewKey(Careers, "", SlugView), false},
		{"view pattern does not cover details", DetailKey(Services, "s1"), ViewKey(Services, "", SlugView), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Matches(tt.pattern))
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/blog", CollectionKey(Blog, nil).Path())
	assert.Equal(t, "/blog/p1", DetailKey(Blog, "p1").Path())
	assert.Equal(t, "/careers/c1/applications", ViewKey(Careers, "c1", "applications").Path())
	assert.Equal(t, "/newsletter/stats", ViewKey(Newsletter, "", "stats").Path())
	assert.Equal(t, "/blog/a%2Fb", DetailKey(Blog, "a/b").Path())
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"blog", "p1"}, DetailKey(Blog, "p1").Segments())
	assert.Equal(t, []string{"blog"}, CollectionKey(Blog, nil).Segments())
}

func TestQuery(t *testing.T) {
	k := CollectionKey(Contacts, url.Values{"search": {"jane doe"}})
	assert.Equal(t, "jane doe", k.Query().Get("search"))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Blog ")
	require.NoError(t, err)
	assert.Equal(t, Blog, typ)
	assert.True(t, typ.IsEntity())

	typ, err = ParseType("settings")
	require.NoError(t, err)
	assert.False(t, typ.IsEntity())

	_, err = ParseType("orders")
	assert.Error(t, err)
}
