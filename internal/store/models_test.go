package store

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, valid := range []string{"pending", "preparee", "prete", "recuperee", "annulee"} {
		status, ok := ParseOrderStatus(valid)
		if !ok || string(status) != valid {
			t.Errorf("ParseOrderStatus(%q) = %q, %v", valid, status, ok)
		}
	}
	for _, invalid := range []string{"", "shipped", "PENDING", "ready"} {
		if _, ok := ParseOrderStatus(invalid); ok {
			t.Errorf("ParseOrderStatus(%q) accepted", invalid)
		}
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]int{1, 2, 3}, 7, 2, 3)
	if page.Pages != 3 {
		t.Errorf("expected 3 pages for 7/3, got %d", page.Pages)
	}

	empty := NewPage[int](nil, 0, 1, 20)
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %v", empty.Items)
	}
	if empty.Pages != 0 {
		t.Errorf("expected 0 pages, got %d", empty.Pages)
	}
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 20},
		{-3, -1, 1, 20},
		{2, 50, 2, 50},
		{1, 500, 1, 100},
	}
	for _, tc := range cases {
		page, limit := NormalizePage(tc.page, tc.limit)
		if page != tc.wantPage || limit != tc.wantLimit {
			t.Errorf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tc.page, tc.limit, page, limit, tc.wantPage, tc.wantLimit)
		}
	}
}
