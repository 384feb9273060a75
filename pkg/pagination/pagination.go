package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit matches the page size the admin API list views use.
	DefaultLimit = 50
	// MaxLimit bounds a single list request.
	MaxLimit = 100
)

// Params holds the list parameters a collection view sends to the admin API.
type Params struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search,omitempty"`
}

// DefaultParams returns the first page with the default limit.
func DefaultParams() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

// FromQuery extracts list parameters from query values. Out-of-range values
// fall back to the defaults; "per_page" is accepted as an alias of "limit".
func FromQuery(q url.Values) Params {
	p := DefaultParams()

	if page := q.Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	limit := q.Get("limit")
	if limit == "" {
		limit = q.Get("per_page")
	}
	if limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && v > 0 && v <= MaxLimit {
			p.Limit = v
		}
	}

	p.Search = strings.TrimSpace(q.Get("search"))
	return p
}

// Values encodes the parameters as query values. The page is omitted when it
// is the first one so that equivalent requests share one cache key.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Page > 1 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v
}
