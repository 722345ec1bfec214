// Package listing holds the query-parameter filters and pagination shared by admin list views.
package listing

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	// DefaultPageSize mirrors the admin list page size.
	DefaultPageSize = 25
	// MaxPageSize bounds caller supplied page sizes.
	MaxPageSize = 100
)

// Scope narrows a gorm query.
type Scope func(*gorm.DB) *gorm.DB

// Lookup is one selectable value of a filter.
type Lookup struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Filter maps a single query parameter onto a query scope.
// Build returns false when the value does not select anything and the listing stays unfiltered.
type Filter struct {
	Parameter string
	Title     string
	Lookups   []Lookup
	Build     func(value string, now time.Time) (Scope, bool)
}

// Params carries the raw filter values keyed by parameter name.
type Params map[string]string

// ParamsFromValues flattens url values, keeping the first value for each key.
func ParamsFromValues(values url.Values) Params {
	params := make(Params, len(values))
	for key, entries := range values {
		if len(entries) == 0 {
			continue
		}
		params[key] = strings.TrimSpace(entries[0])
	}
	return params
}

// Scopes evaluates the filters in order against params.
func Scopes(filters []Filter, params Params, now time.Time) []Scope {
	scopes := make([]Scope, 0, len(filters))
	for _, filter := range filters {
		value := strings.TrimSpace(params[filter.Parameter])
		if value == "" || filter.Build == nil {
			continue
		}
		scope, ok := filter.Build(value, now)
		if !ok || scope == nil {
			continue
		}
		scopes = append(scopes, scope)
	}
	return scopes
}

// Apply chains scopes onto db.
func Apply(db *gorm.DB, scopes []Scope) *gorm.DB {
	for _, scope := range scopes {
		db = scope(db)
	}
	return db
}

// BoolFilter filters a boolean column using strconv.ParseBool semantics.
func BoolFilter(parameter, title, column string) Filter {
	return Filter{
		Parameter: parameter,
		Title:     title,
		Lookups: []Lookup{
			{Value: "true", Label: "Yes"},
			{Value: "false", Label: "No"},
		},
		Build: func(value string, _ time.Time) (Scope, bool) {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return nil, false
			}
			return func(db *gorm.DB) *gorm.DB {
				return db.Where(column+" = ?", parsed)
			}, true
		},
	}
}

// SearchScope matches term as a case-insensitive substring of any column.
func SearchScope(term string, columns ...string) Scope {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	clauses := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		clauses = append(clauses, "LOWER("+column+") LIKE ?")
		args = append(args, pattern)
	}
	return func(db *gorm.DB) *gorm.DB {
		if len(clauses) == 0 {
			return db
		}
		return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
}

// Page is a normalized 1-based page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// NewPage clamps number and size into valid ranges.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// PageFromValues reads "page" and "page_size" query parameters.
func PageFromValues(values url.Values) Page {
	number, _ := strconv.Atoi(values.Get("page"))
	size, _ := strconv.Atoi(values.Get("page_size"))
	return NewPage(number, size)
}

// Offset returns the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Scope limits a query to the page window.
func (p Page) Scope() Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Size)
	}
}
