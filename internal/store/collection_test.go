package store

import (
	"strings"
	"testing"

	"expenses/internal/core"
)

func sample() []core.Expense {
	return []core.Expense{
		{ID: 1, Description: "a", Amount: core.Money{Cents: 100}, Category: "Food", Date: core.NewDate(2024, 1, 1)},
		{ID: 2, Description: "b", Amount: core.Money{Cents: 200}, Category: "food", Date: core.NewDate(2024, 1, 15)},
		{ID: 5, Description: "c", Amount: core.Money{Cents: 300}, Category: "Food", Date: core.NewDate(2024, 1, 31)},
		{ID: 3, Description: "d", Amount: core.Money{Cents: 400}, Category: "Travel", Date: core.NewDate(2024, 2, 1)},
	}
}

func TestNextID(t *testing.T) {
	cases := []struct {
		high int64
		in   []core.Expense
		want int64
	}{
		{0, nil, 1},
		{0, sample(), 6},
		{9, sample(), 10},
		{3, sample()[:2], 4},
	}
	for i, tc := range cases {
		if got := NextID(tc.high, tc.in); got != tc.want {
			t.Fatalf("case %d: got %d want %d", i, got, tc.want)
		}
	}
}

func TestFilterByCategory(t *testing.T) {
	got := FilterByCategory(sample(), "Food")
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 5 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got := FilterByCategory(sample(), "Missing"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestFilterByDateRangeInclusive(t *testing.T) {
	got := FilterByDateRange(sample(), core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31))
	if len(got) != 3 {
		t.Fatalf("expected both bounds included, got %+v", got)
	}
	got = FilterByDateRange(sample(), core.NewDate(2024, 2, 1), core.NewDate(2024, 1, 1))
	if len(got) != 0 {
		t.Fatalf("inverted range should be empty, got %+v", got)
	}
}

func TestCategoriesFirstSeen(t *testing.T) {
	got := Categories(sample())
	want := []string{"Food", "food", "Travel"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDecode(t *testing.T) {
	good := `[{"id":1,"description":"x","amount":1.5,"category":"General","date":"2024-01-01","created_at":"2024-01-01T00:00:00Z"}]`
	items, err := Decode([]byte(good))
	if err != nil || len(items) != 1 || items[0].Amount.Cents != 150 {
		t.Fatalf("unexpected decode: %+v err=%v", items, err)
	}

	items, err = Decode([]byte(`[]`))
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("expected empty collection, got %#v err=%v", items, err)
	}

	bad := []string{
		`not json`,
		`{"id":1}`,
		`[{"id":1,"description":"","amount":1,"date":"2024-01-01"}]`,
		`[{"id":1,"description":"x","amount":-1,"date":"2024-01-01"}]`,
		`[{"id":1,"description":"x","amount":1,"date":"2024-01-01"},{"id":1,"description":"y","amount":1,"date":"2024-01-01"}]`,
	}
	for _, in := range bad {
		if _, err := Decode([]byte(in)); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestEncodeIndented(t *testing.T) {
	data, err := Encode(sample()[:1])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {\n    \"id\": 1,") {
		t.Fatalf("unexpected layout:\n%s", data)
	}
	empty, _ := Encode(nil)
	if string(empty) != "[]\n" {
		t.Fatalf("unexpected empty encoding %q", empty)
	}
}
