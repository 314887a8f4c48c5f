package store

import "testing"

func TestListParamsNormalizeDefaults(t *testing.T) {
	p := ListParams{}
	column, dir, err := p.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if column != "job_id" || dir != "ASC" {
		t.Fatalf("got sort %s %s, want job_id ASC", column, dir)
	}
	if p.Page != 1 || p.PerPage != 50 {
		t.Fatalf("got page=%d per_page=%d, want 1/50", p.Page, p.PerPage)
	}
}

func TestListParamsNormalizeRejectsBadInput(t *testing.T) {
	cases := []ListParams{
		{Page: -1},
		{PerPage: -5},
		{PerPage: maxPerPage + 1},
		{SortBy: "headers"},
		{SortBy: "job_id; DROP TABLE pgjq.jobs"},
		{SortDir: "sideways"},
		{Statuses: []string{"pending", "exploded"}},
	}
	for _, p := range cases {
		if _, _, err := p.normalize(); err == nil || !IsValidation(err) {
			t.Errorf("normalize(%+v) err = %v, want validation error", p, err)
		}
	}
}

func TestListParamsNormalizeAcceptsLowercaseDir(t *testing.T) {
	p := ListParams{SortBy: "priority", SortDir: "desc"}
	column, dir, err := p.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if column != "priority" || dir != "DESC" {
		t.Fatalf("got sort %s %s, want priority DESC", column, dir)
	}
}
