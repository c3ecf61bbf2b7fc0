package distribution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/reportwire/reportwire/internal/platform/auth"
	"github.com/reportwire/reportwire/internal/platform/kv"
)

func newHandlerFixture(t *testing.T) (*fixture, *Handler) {
	t.Helper()
	f := newFixture(t)
	return f, NewHandler(f.svc, kv.NewLimiter(kv.NewMemStore()))
}

func doRequest(h echo.HandlerFunc, method, target, body string, setup func(echo.Context)) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	ctx := context.WithValue(req.Context(), auth.UserIDKey, "staff-1")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	return rec, h(c)
}

func TestHandler_Distribute(t *testing.T) {
	f, h := newHandlerFixture(t)
	doc := f.dir.addRecipient("d1")
	f.addResult("LAB-H1", &doc.ID)

	rec, err := doRequest(h.Distribute, http.MethodPost, "/reports/distribute",
		`{"resultId":"LAB-H1","priority":"high","channels":["in_app"]}`, nil)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp distributeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RecipientsNotified != 1 || len(resp.DistributionIDs) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_Distribute_InvalidRecipientID(t *testing.T) {
	_, h := newHandlerFixture(t)

	_, err := doRequest(h.Distribute, http.MethodPost, "/reports/distribute",
		`{"resultId":"LAB-H2","recipientIds":["not-a-uuid"]}`, nil)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Distribute_UnknownResult(t *testing.T) {
	_, h := newHandlerFixture(t)

	_, err := doRequest(h.Distribute, http.MethodPost, "/reports/distribute",
		`{"resultId":"LAB-missing"}`, nil)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_RateLimit(t *testing.T) {
	f, h := newHandlerFixture(t)
	doc := f.dir.addRecipient("d1")
	f.addResult("LAB-H3", &doc.ID)

	var last error
	for i := 0; i <= distributeLimit; i++ {
		_, last = doRequest(h.Distribute, http.MethodPost, "/reports/distribute",
			`{"resultId":"LAB-H3"}`, nil)
	}

	httpErr, ok := last.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %v", last)
	}
}

func TestHandler_Acknowledge(t *testing.T) {
	f, h := newHandlerFixture(t)
	doc := f.dir.addRecipient("d1")
	f.addResult("LAB-H4", &doc.ID)

	res, err := f.svc.Distribute(context.Background(), DistributeInput{ResultID: "LAB-H4"})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Records[0].ID

	rec, err := doRequest(h.Acknowledge, http.MethodPost,
		"/reports/"+id+"/acknowledge?action=view", "", func(c echo.Context) {
			c.SetParamNames("distributionId")
			c.SetParamValues(id)
		})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != StatusDelivered {
		t.Errorf("status = %v, want delivered", resp["status"])
	}
}

func TestHandler_Acknowledge_MissingAction(t *testing.T) {
	_, h := newHandlerFixture(t)

	_, err := doRequest(h.Acknowledge, http.MethodPost, "/reports/RD-1/acknowledge", "", func(c echo.Context) {
		c.SetParamNames("distributionId")
		c.SetParamValues("RD-1")
	})

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_PendingForRecipient(t *testing.T) {
	f, h := newHandlerFixture(t)
	doc := f.dir.addRecipient("d1")
	f.addResult("LAB-H5", &doc.ID)

	if _, err := f.svc.Distribute(context.Background(), DistributeInput{ResultID: "LAB-H5"}); err != nil {
		t.Fatal(err)
	}

	rec, err := doRequest(h.PendingForRecipient, http.MethodGet,
		"/reports/pending-for-recipient/"+doc.ID.String(), "", func(c echo.Context) {
			c.SetParamNames("recipientId")
			c.SetParamValues(doc.ID.String())
		})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp PendingResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.PendingCount != 1 {
		t.Errorf("pending count = %d, want 1", resp.PendingCount)
	}
}

func TestHandler_Summary(t *testing.T) {
	f, h := newHandlerFixture(t)
	doc := f.dir.addRecipient("d1")
	f.addResult("LAB-H6", &doc.ID)

	res, err := f.svc.Distribute(context.Background(), DistributeInput{ResultID: "LAB-H6"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Acknowledge(context.Background(), res.Records[0].ID, ActionView); err != nil {
		t.Fatal(err)
	}

	rec, err := doRequest(h.Summary, http.MethodGet, "/reports/distribution-summary", "", nil)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var s Summary
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Total != 1 || s.ByStatus[StatusDelivered] != 1 {
		t.Errorf("summary: %+v", s)
	}
	if s.DeliveryRate != 100 {
		t.Errorf("delivery rate = %v, want 100", s.DeliveryRate)
	}
}
