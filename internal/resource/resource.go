// Package resource defines the addressing scheme shared by every entity type
// the console manages. Every cache entry and every invalidation is expressed
// as a Key so that invalidating a type's collection reaches all of its
// filtered list views.
package resource

import (
	"fmt"
	"net/url"
	"strings"
)

// Type names one managed entity category. The value doubles as the admin API
// path segment.
type Type string

const (
	Services    Type = "services"
	Portfolio   Type = "portfolio"
	Blog        Type = "blog"
	Team        Type = "team"
	Initiatives Type = "initiatives"
	Contacts    Type = "contacts"
	Quotes      Type = "quotes"
	Newsletter  Type = "newsletter"
	Careers     Type = "careers"

	// Read-only auxiliary views.
	Analytics Type = "analytics"
	Settings  Type = "settings"
)

// SlugView names the lookup of an entity by its slug.
const SlugView = "slug"

// Entities lists the types with full list/detail/create/update/delete support.
var Entities = []Type{Services, Portfolio, Blog, Team, Initiatives, Contacts, Quotes, Newsletter, Careers}

// ParseType validates a type name taken from a URL or command line.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Entities {
		if t == known {
			return t, nil
		}
	}
	if t == Analytics || t == Settings {
		return t, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// IsEntity reports whether t supports the CRUD operations.
func (t Type) IsEntity() bool {
	for _, e := range Entities {
		if t == e {
			return true
		}
	}
	return false
}

// Key addresses one cache entry. Keys are comparable and usable as map keys.
//
//	collection: {Type: "blog", Params: "limit=50"}
//	detail:     {Type: "blog", ID: "p1"}
//	sub-view:   {Type: "careers", ID: "c1", View: "applications"}
type Key struct {
	Type   Type
	ID     string
	View   string
	Params string
}

// CollectionKey returns the list key for t under the given query parameters.
// Parameters are canonicalised so equal filters always produce equal keys.
func CollectionKey(t Type, params url.Values) Key {
	return Key{Type: t, Params: canonical(params)}
}

// DetailKey returns the key of a single entity.
func DetailKey(t Type, id string) Key {
	return Key{Type: t, ID: id}
}

// ViewKey returns the key of a named auxiliary view, optionally scoped to an
// entity id (for example a job posting's applications).
func ViewKey(t Type, id, view string) Key {
	return Key{Type: t, ID: id, View: view}
}

// IsCollection reports whether k addresses a list.
func (k Key) IsCollection() bool {
	return k.ID == "" && k.View == ""
}

// Query returns the parsed collection parameters.
func (k Key) Query() url.Values {
	v, _ := url.ParseQuery(k.Params)
	return v
}

// Matches reports whether k is covered by pattern. A collection pattern
// without parameters covers every collection key of its type, and a view
// pattern without an id covers that view of every entity. Any other pattern
// covers exactly itself.
func (k Key) Matches(pattern Key) bool {
	if k.Type != pattern.Type {
		return false
	}
	if pattern.IsCollection() && pattern.Params == "" {
		return k.IsCollection()
	}
	if pattern.ID == "" && pattern.View != "" && pattern.Params == "" {
		return k.View == pattern.View && k.Params == ""
	}
	return k == pattern
}

// Path returns the admin API path for k, without the query string.
func (k Key) Path() string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(string(k.Type))
	if k.ID != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(k.ID))
	}
	if k.View != "" {
		b.WriteString("/")
		b.WriteString(k.View)
	}
	return b.String()
}

// String renders the key as a path plus query, e.g. "/contacts?search=acme".
func (k Key) String() string {
	if k.Params == "" {
		return k.Path()
	}
	return k.Path() + "?" + k.Params
}

// Segments renders the key in list form, e.g. ["blog","p1"], as used in logs
// and in the invalidation events the console exposes.
func (k Key) Segments() []string {
	s := []string{string(k.Type)}
	if k.ID != "" {
		s = append(s, k.ID)
	}
	if k.View != "" {
		s = append(s, k.View)
	}
	if k.Params != "" {
		s = append(s, k.Params)
	}
	return s
}

func canonical(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	clean := url.Values{}
	for name, values := range params {
		for _, v := range values {
			if v != "" {
				clean.Add(name, v)
			}
		}
	}
	// Encode sorts by parameter name.
	return clean.Encode()
}
