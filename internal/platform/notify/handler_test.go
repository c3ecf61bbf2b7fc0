package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/reportwire/reportwire/internal/platform/auth"
)

type fakeRepo struct {
	unread map[string][]*Notification
	read   []string // "recipient/notification" pairs
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{unread: make(map[string][]*Notification)}
}

func (f *fakeRepo) Save(_ context.Context, recipientID string, n *Notification) error {
	f.unread[recipientID] = append(f.unread[recipientID], n)
	return nil
}

func (f *fakeRepo) MarkRead(_ context.Context, recipientID, notificationID string) error {
	f.read = append(f.read, recipientID+"/"+notificationID)
	return nil
}

func (f *fakeRepo) MarkReadByDistribution(_ context.Context, _, _ string) error { return nil }

func (f *fakeRepo) ListUnread(_ context.Context, recipientID string, limit int) ([]*Notification, error) {
	out := f.unread[recipientID]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func doRequest(h echo.HandlerFunc, target string, setup func(echo.Context)) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "doc-1"))

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	return rec, h(c)
}

func TestHandler_ListUnread(t *testing.T) {
	repo := newFakeRepo()
	repo.Save(context.Background(), "doc-1", New(TypeReportReady, "Report Ready", "first"))
	repo.Save(context.Background(), "doc-1", New(TypeReportReady, "Report Ready", "second"))
	repo.Save(context.Background(), "doc-2", New(TypeReportReady, "Report Ready", "other"))
	h := NewHandler(repo)

	rec, err := doRequest(h.ListUnread, "/notifications", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Notifications []*Notification `json:"notifications"`
		Count         int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Notifications) != 2 {
		t.Errorf("count = %d, want 2 (caller's own notifications only)", body.Count)
	}
	if body.Notifications[0].Message != "first" {
		t.Errorf("expected oldest first, got %q", body.Notifications[0].Message)
	}
}

func TestHandler_ListUnread_Limit(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 5; i++ {
		repo.Save(context.Background(), "doc-1", New(TypeReportReady, "Report Ready", "x"))
	}
	h := NewHandler(repo)

	rec, err := doRequest(h.ListUnread, "/notifications?limit=2", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}

	_, err = doRequest(h.ListUnread, "/notifications?limit=bogus", nil)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %v", err)
	}
}

func TestHandler_MarkRead(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo)

	rec, err := doRequest(h.MarkRead, "/notifications/n-1/read", func(c echo.Context) {
		c.SetParamNames("id")
		c.SetParamValues("n-1")
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(repo.read) != 1 || repo.read[0] != "doc-1/n-1" {
		t.Errorf("read calls = %v, want [doc-1/n-1]", repo.read)
	}
}
