// Package query filters, sorts and paginates a full catalog snapshot in
// memory. It is a pure function of its inputs: callers hand it every drug
// record and it never touches the store.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"drugstock/m/domain"
)

// ErrInvalidParams marks a request whose paging or sorting inputs are out of
// range; handlers translate it to a 400.
var ErrInvalidParams = errors.New("invalid list parameters")

const (
	SortName           = "name"
	SortGroup          = "group"
	SortBrand          = "brand"
	SortForm           = "form"
	SortUnitsInStock   = "unitsInStock"
	SortExpirationDate = "expirationDate"

	OrderAsc  = "asc"
	OrderDesc = "desc"

	defaultPageSize = 10
	maxPageSize     = 100
)

type Params struct {
	Page       int
	PageSize   int
	Search     string
	SortField  string
	SortOrder  string
	Ingredient string
}

type Result struct {
	Items    []domain.Drug `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

func (p Params) normalize() (Params, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = defaultPageSize
	}
	if p.SortField == "" {
		p.SortField = SortName
	}
	if p.SortOrder == "" {
		p.SortOrder = OrderAsc
	}
	if p.Page < 1 {
		return p, fmt.Errorf("%w: page must be >= 1", ErrInvalidParams)
	}
	if p.PageSize < 1 || p.PageSize > maxPageSize {
		return p, fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalidParams, maxPageSize)
	}
	switch p.SortField {
	case SortName, SortGroup, SortBrand, SortForm, SortUnitsInStock, SortExpirationDate:
	default:
		return p, fmt.Errorf("%w: unknown sort field %q", ErrInvalidParams, p.SortField)
	}
	switch p.SortOrder {
	case OrderAsc, OrderDesc:
	default:
		return p, fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidParams)
	}
	return p, nil
}

// Apply runs the filter/sort/paginate pipeline over a snapshot of the
// catalog. The input slice is treated as the enumeration order: ties sort
// stably, so identical params paginate deterministically.
func Apply(drugs []domain.Drug, p Params) (Result, error) {
	p, err := p.normalize()
	if err != nil {
		return Result{}, err
	}

	term := strings.ToLower(p.Search)
	filtered := make([]domain.Drug, 0, len(drugs))
	for _, d := range drugs {
		if term != "" && !matchesSearch(d, term) {
			continue
		}
		if p.Ingredient != "" && !hasIngredient(d, p.Ingredient) {
			continue
		}
		filtered = append(filtered, d)
	}

	// Collators carry internal buffers, so build one per call.
	cmp := comparator(p.SortField, collate.New(language.Turkish))
	dir := 1
	if p.SortOrder == OrderDesc {
		dir = -1
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return cmp(filtered[i], filtered[j])*dir < 0
	})

	total := len(filtered)
	// (page-1)*pageSize wraps for huge page numbers, so only compute offsets
	// for pages that can hold data. Anything past the last page is empty.
	lastPage := (total + p.PageSize - 1) / p.PageSize
	start, end := total, total
	if p.Page <= lastPage {
		start = (p.Page - 1) * p.PageSize
		end = start + p.PageSize
		if end > total {
			end = total
		}
	}

	return Result{
		Items:    filtered[start:end],
		Total:    total,
		Page:     p.Page,
		PageSize: p.PageSize,
	}, nil
}

// matchesSearch reports a case-insensitive substring hit on name, brand,
// group, form, or any active ingredient.
func matchesSearch(d domain.Drug, term string) bool {
	fields := []string{d.Name, d.Brand, d.Group, stringOrEmpty(d.Form)}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	for _, ing := range d.ActiveIngredients {
		if strings.Contains(strings.ToLower(ing), term) {
			return true
		}
	}
	return false
}

// hasIngredient is an exact, case-sensitive containment check.
func hasIngredient(d domain.Drug, ingredient string) bool {
	for _, ing := range d.ActiveIngredients {
		if ing == ingredient {
			return true
		}
	}
	return false
}

func comparator(field string, col *collate.Collator) func(a, b domain.Drug) int {
	switch field {
	case SortGroup:
		return func(a, b domain.Drug) int { return col.CompareString(a.Group, b.Group) }
	case SortBrand:
		return func(a, b domain.Drug) int { return col.CompareString(a.Brand, b.Brand) }
	case SortForm:
		return func(a, b domain.Drug) int {
			return col.CompareString(stringOrEmpty(a.Form), stringOrEmpty(b.Form))
		}
	case SortUnitsInStock:
		return func(a, b domain.Drug) int { return compareInt(a.UnitsInStock, b.UnitsInStock) }
	case SortExpirationDate:
		return func(a, b domain.Drug) int {
			return compareInt(expirationMillis(a.ExpirationDate), expirationMillis(b.ExpirationDate))
		}
	default:
		return func(a, b domain.Drug) int { return col.CompareString(a.Name, b.Name) }
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Absent expiration dates compare as epoch zero, so they come first when
// ascending.
func expirationMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
