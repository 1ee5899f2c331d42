package query

import (
	"errors"
	"testing"
	"time"

	"drugstock/m/domain"
)

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }

func catalog() []domain.Drug {
	return []domain.Drug{
		{ID: 1, Name: "Parol", Group: "Analgesic", Brand: "Atabay", ActiveIngredients: domain.StringList{"Paracetamol"}, Form: strptr("Tablet"), UnitsInStock: 30},
		{ID: 2, Name: "Nurofen", Group: "Analgesic", Brand: "Reckitt", ActiveIngredients: domain.StringList{"Ibuprofen"}, Form: strptr("Tablet"), UnitsInStock: 12},
		{ID: 3, Name: "Brufen", Group: "Analgesic", Brand: "Abbott", ActiveIngredients: domain.StringList{"Ibuprofen 200mg"}, UnitsInStock: 12},
		{ID: 4, Name: "Augmentin", Group: "Antibiotic", Brand: "GSK", ActiveIngredients: domain.StringList{"Amoxicillin", "Clavulanic acid"}, Form: strptr("Süspansiyon"), UnitsInStock: 7,
			ExpirationDate: timeptr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))},
		{ID: 5, Name: "Ventolin", Group: "Bronchodilator", Brand: "GSK", ActiveIngredients: domain.StringList{"Salbutamol"}, UnitsInStock: 3,
			ExpirationDate: timeptr(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))},
	}
}

func ids(items []domain.Drug) []int64 {
	out := make([]int64, len(items))
	for i, d := range items {
		out[i] = d.ID
	}
	return out
}

func equalIDs(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyDefaults(t *testing.T) {
	res, err := Apply(catalog(), Params{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Page != 1 || res.PageSize != 10 {
		t.Errorf("defaults page=%d pageSize=%d, want 1/10", res.Page, res.PageSize)
	}
	if res.Total != 5 {
		t.Errorf("total = %d, want 5", res.Total)
	}
	// Default sort is name ascending.
	if !equalIDs(ids(res.Items), 4, 3, 2, 1, 5) {
		t.Errorf("default order = %v", ids(res.Items))
	}
}

func TestApplyParamValidation(t *testing.T) {
	cases := []struct {
		name string
		p    Params
	}{
		{"negative page", Params{Page: -1}},
		{"zero-sized page", Params{PageSize: -5}},
		{"oversized page", Params{PageSize: 101}},
		{"bad sort field", Params{SortField: "id"}},
		{"bad sort order", Params{SortOrder: "up"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Apply(catalog(), tc.p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Apply(%+v) err = %v, want ErrInvalidParams", tc.p, err)
			}
		})
	}
}

func TestSearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	cases := []struct {
		search string
		want   []int64
	}{
		{"paracet", []int64{1}},         // ingredient substring, different casing
		{"PAROL", []int64{1}},           // name
		{"gsk", []int64{4, 5}},          // brand, two hits
		{"antibio", []int64{4}},         // group
		{"tablet", []int64{2, 1}},       // form, sorted by name
		{"ibuprofen", []int64{3, 2}},    // ingredient across two records
		{"clavulanic", []int64{4}},      // second ingredient entry
		{"nothing-here", []int64{}},     // no match
	}
	for _, tc := range cases {
		res, err := Apply(catalog(), Params{Search: tc.search})
		if err != nil {
			t.Fatalf("Apply(search=%q): %v", tc.search, err)
		}
		if !equalIDs(ids(res.Items), tc.want...) {
			t.Errorf("search %q = %v, want %v", tc.search, ids(res.Items), tc.want)
		}
		if res.Total != len(tc.want) {
			t.Errorf("search %q total = %d, want %d", tc.search, res.Total, len(tc.want))
		}
	}
}

func TestIngredientFilterIsExactAndCaseSensitive(t *testing.T) {
	res, err := Apply(catalog(), Params{Ingredient: "Ibuprofen"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// "Ibuprofen 200mg" must not match the exact filter.
	if !equalIDs(ids(res.Items), 2) {
		t.Errorf("ingredient filter = %v, want [2]", ids(res.Items))
	}

	res, err = Apply(catalog(), Params{Ingredient: "ibuprofen"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("lowercase ingredient matched %d records, want 0", res.Total)
	}
}

func TestSearchAndIngredientCompose(t *testing.T) {
	// Search matches 2 and 3; the exact filter keeps only 2.
	res, err := Apply(catalog(), Params{Search: "ibuprofen", Ingredient: "Ibuprofen"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !equalIDs(ids(res.Items), 2) {
		t.Errorf("composed filters = %v, want [2]", ids(res.Items))
	}
}

func TestSortUnitsInStockReversesAndTiesAreStable(t *testing.T) {
	asc, err := Apply(catalog(), Params{SortField: SortUnitsInStock, SortOrder: OrderAsc})
	if err != nil {
		t.Fatalf("Apply asc: %v", err)
	}
	// 2 and 3 tie on 12 units and keep enumeration order in both directions.
	if !equalIDs(ids(asc.Items), 5, 4, 2, 3, 1) {
		t.Errorf("asc = %v", ids(asc.Items))
	}

	desc, err := Apply(catalog(), Params{SortField: SortUnitsInStock, SortOrder: OrderDesc})
	if err != nil {
		t.Fatalf("Apply desc: %v", err)
	}
	if !equalIDs(ids(desc.Items), 1, 2, 3, 4, 5) {
		t.Errorf("desc = %v", ids(desc.Items))
	}
}

func TestSortExpirationDateTreatsAbsentAsEpoch(t *testing.T) {
	res, err := Apply(catalog(), Params{SortField: SortExpirationDate})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// 1, 2, 3 have no date and sort first, keeping enumeration order.
	if !equalIDs(ids(res.Items), 1, 2, 3, 5, 4) {
		t.Errorf("expiration asc = %v", ids(res.Items))
	}
}

func TestPagination(t *testing.T) {
	for page := 1; page <= 3; page++ {
		res, err := Apply(catalog(), Params{Page: page, PageSize: 2})
		if err != nil {
			t.Fatalf("Apply page %d: %v", page, err)
		}
		if res.Total != 5 {
			t.Errorf("page %d total = %d, want 5", page, res.Total)
		}
		if len(res.Items) > 2 {
			t.Errorf("page %d has %d items, want <= 2", page, len(res.Items))
		}
	}

	res, err := Apply(catalog(), Params{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Items) != 1 {
		t.Errorf("last page has %d items, want 1", len(res.Items))
	}

	res, err = Apply(catalog(), Params{Page: 99, PageSize: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Items) != 0 || res.Total != 5 {
		t.Errorf("out-of-range page: items=%d total=%d, want 0/5", len(res.Items), res.Total)
	}
}

func TestPaginationHugePageNumbers(t *testing.T) {
	// Offsets like (page-1)*pageSize wrap around for page numbers this
	// large; they must still behave as plain out-of-range pages.
	for _, page := range []int{1<<57 + 1, 1<<62 + 1} {
		res, err := Apply(catalog(), Params{Page: page, PageSize: 100})
		if err != nil {
			t.Fatalf("Apply(page=%d): %v", page, err)
		}
		if len(res.Items) != 0 || res.Total != 5 {
			t.Errorf("page %d: items=%d total=%d, want 0/5", page, len(res.Items), res.Total)
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	drugs := catalog()
	if _, err := Apply(drugs, Params{SortField: SortUnitsInStock, SortOrder: OrderDesc}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !equalIDs(ids(drugs), 1, 2, 3, 4, 5) {
		t.Errorf("input slice reordered: %v", ids(drugs))
	}
}
