package pagination

import "testing"

func TestPageRequest_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		in           PageRequest
		wantPage     int
		wantPageSize int
	}{
		{"empty", PageRequest{}, 1, DefaultPageSize},
		{"kept", PageRequest{Page: 3, PageSize: 10}, 3, 10},
		{"clamped", PageRequest{Page: 1, PageSize: 500}, 1, MaxPageSize},
		{"negative", PageRequest{Page: -2, PageSize: -1}, 1, DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Defaults()
			if p.Page != tt.wantPage || p.PageSize != tt.wantPageSize {
				t.Errorf("got page=%d size=%d, want page=%d size=%d", p.Page, p.PageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestPageRequest_Offset(t *testing.T) {
	p := PageRequest{Page: 3, PageSize: 20}
	if got := p.Offset(); got != 40 {
		t.Errorf("expected offset 40, got %d", got)
	}
}

func TestNewPageResponse(t *testing.T) {
	resp := NewPageResponse[int](nil, 1, 2, 5)
	if resp.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", resp.TotalPages)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Errorf("expected empty non-nil data, got %v", resp.Data)
	}
}
