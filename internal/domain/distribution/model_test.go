package distribution

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestNewDistributionID_Format(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	id := NewDistributionID(now)

	re := regexp.MustCompile(`^RD-20250314150926-\d{4}$`)
	if !re.MatchString(id) {
		t.Errorf("id %q does not match RD-<timestamp>-<4 digits>", id)
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		current, next string
		want          bool
	}{
		{StatusPending, StatusSent, true},
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusRead, true},
		{StatusPending, StatusRead, true},
		{StatusRead, StatusSent, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, StatusSent, false},
		{StatusSent, StatusFailed, true},
		{StatusFailed, StatusSent, false},
		{StatusFailed, StatusRead, false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.current, tc.next); got != tc.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.current, tc.next, got, tc.want)
		}
	}
}

func TestApplyAcknowledge_View(t *testing.T) {
	now := time.Now()
	r := &Record{Status: StatusSent}

	changed, err := r.ApplyAcknowledge(ActionView, now)
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if r.Status != StatusDelivered {
		t.Errorf("status = %s, want delivered", r.Status)
	}
	if r.ViewedAt == nil || !r.ViewedAt.Equal(now) {
		t.Error("viewed_at not stamped")
	}
}

func TestApplyAcknowledge_ViewedAtFirstWriteWins(t *testing.T) {
	first := time.Now()
	r := &Record{Status: StatusPending}
	r.ApplyAcknowledge(ActionView, first)

	later := first.Add(time.Hour)
	r.ApplyAcknowledge(ActionView, later)

	if !r.ViewedAt.Equal(first) {
		t.Errorf("viewed_at = %v, want first stamp %v", r.ViewedAt, first)
	}
}

func TestApplyAcknowledge_DownloadMovesToRead(t *testing.T) {
	for _, start := range []string{StatusPending, StatusSent, StatusDelivered} {
		r := &Record{Status: start}
		if _, err := r.ApplyAcknowledge(ActionDownload, time.Now()); err != nil {
			t.Fatalf("from %s: %v", start, err)
		}
		if r.Status != StatusRead {
			t.Errorf("from %s: status = %s, want read", start, r.Status)
		}
		if r.DownloadedAt == nil {
			t.Errorf("from %s: downloaded_at not stamped", start)
		}
	}
}

func TestApplyAcknowledge_PrintStampsOnly(t *testing.T) {
	r := &Record{Status: StatusSent}
	if _, err := r.ApplyAcknowledge(ActionPrint, time.Now()); err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusSent {
		t.Errorf("print must not change status, got %s", r.Status)
	}
	if r.PrintedAt == nil {
		t.Error("printed_at not stamped")
	}
}

func TestApplyAcknowledge_IdempotentOnRead(t *testing.T) {
	r := &Record{Status: StatusRead}
	ack := time.Now()
	changed, err := r.ApplyAcknowledge(ActionAcknowledge, ack)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		// acknowledged_at was stamped
		t.Fatal("first acknowledge on read record should stamp acknowledged_at")
	}
	if r.Status != StatusRead {
		t.Errorf("status regressed to %s", r.Status)
	}

	changed, err = r.ApplyAcknowledge(ActionAcknowledge, ack.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("repeat acknowledge should be a no-op")
	}
}

func TestApplyAcknowledge_FailedIsTerminal(t *testing.T) {
	r := &Record{Status: StatusFailed}
	if _, err := r.ApplyAcknowledge(ActionView, time.Now()); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on failed record, got %v", err)
	}
}

func TestApplyAcknowledge_UnknownAction(t *testing.T) {
	r := &Record{Status: StatusSent}
	if _, err := r.ApplyAcknowledge("stare", time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMarkChannelAttempt(t *testing.T) {
	r := &Record{}
	now := time.Now()

	r.MarkChannelAttempt("email", false, now)
	if !r.Email.Attempted || r.Email.Succeeded {
		t.Errorf("failed attempt: %+v", r.Email)
	}
	if r.Email.AttemptedAt == nil {
		t.Error("attempted_at not stamped")
	}

	r.MarkChannelAttempt("sms", true, now)
	if !r.SMS.Attempted || !r.SMS.Succeeded {
		t.Errorf("successful attempt: %+v", r.SMS)
	}

	r.MarkChannelAttempt("in_app", true, now)
	if !r.Push.Attempted {
		t.Error("in_app maps to push flags")
	}

	got := r.AttemptedChannels()
	if len(got) != 3 {
		t.Errorf("attempted channels = %v", got)
	}
	if !r.AnyChannelSucceeded() {
		t.Error("expected a successful channel")
	}
}
