package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

var sortOptions = Options{
	DefaultPageSize: 20,
	MaxPageSize:     100,
	AllowedSorts:    []string{"createdAt_desc", "total_asc"},
	DefaultSort:     "createdAt_desc",
}

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 1 {
		t.Fatalf("expected page 1 got %d", params.Page)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.Sort != "" {
		t.Fatalf("expected empty sort got %q", params.Sort)
	}
}

func TestParsePageSizeClamps(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "400")
	values.Set("page", "3")

	params, err := Parse(values, sortOptions)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("expected page size clamped to 100 got %d", params.PageSize)
	}
	if params.Offset() != 200 {
		t.Fatalf("expected offset 200 got %d", params.Offset())
	}
	if params.Sort != "createdAt_desc" {
		t.Fatalf("expected default sort got %q", params.Sort)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		value  string
		target error
	}{
		{name: "page not integer", key: "page", value: "x", target: ErrInvalidPage},
		{name: "page zero", key: "page", value: "0", target: ErrInvalidPage},
		{name: "page size negative", key: "pageSize", value: "-1", target: ErrInvalidPageSize},
		{name: "unknown sort", key: "sort", value: "name_asc", target: ErrInvalidSort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{}
			values.Set(tc.key, tc.value)
			_, err := Parse(values, sortOptions)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v got %v", tc.target, err)
			}
		})
	}
}

func TestNormalizeTreatsZeroAsUnset(t *testing.T) {
	params, err := Normalize(Params{Sort: " total_asc "}, sortOptions)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if params.Page != 1 || params.PageSize != 20 || params.Sort != "total_asc" {
		t.Fatalf("unexpected params %#v", params)
	}
}

func TestFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/orders?page=2&pageSize=5", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Page != 2 || params.PageSize != 5 {
		t.Fatalf("unexpected params %#v", params)
	}
	if _, err := FromRequest(nil, Options{}); err == nil {
		t.Fatalf("expected error for nil request")
	}
}
