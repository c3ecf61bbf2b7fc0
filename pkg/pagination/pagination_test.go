package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxFor(t *testing.T, target string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(ctxFor(t, "/"))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(ctxFor(t, "/?limit=50&offset=10"))

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(ctxFor(t, "/?limit=500"))

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := FromContext(ctxFor(t, "/?offset=-5"))

	if p.Offset != 0 {
		t.Errorf("expected offset clamped to 0, got %d", p.Offset)
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 10, Offset: 30}
	if got := p.SQL(); got != "LIMIT 10 OFFSET 30" {
		t.Errorf("SQL() = %q", got)
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		params Params
		total  int
		want   bool
	}{
		{Params{Limit: 10, Offset: 0}, 25, true},
		{Params{Limit: 10, Offset: 20}, 25, false},
		{Params{Limit: 10, Offset: 0}, 5, false},
	}
	for _, tt := range tests {
		if got := tt.params.HasNext(tt.total); got != tt.want {
			t.Errorf("HasNext(%d) with %+v = %v, want %v", tt.total, tt.params, got, tt.want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, 10, 0)
	if !r.HasMore {
		t.Error("expected has_more on first page of 25")
	}

	r = NewResponse([]string{"a"}, 25, 10, 20)
	if r.HasMore {
		t.Error("expected no more after last page")
	}
}
