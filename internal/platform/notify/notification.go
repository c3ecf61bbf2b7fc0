// Package notify defines the notification envelope pushed to connected
// clients and queued for offline recipients.
package notify

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeReportReady  Type = "report_ready"
	TypeReportUrgent Type = "report_urgent"
	TypeReminder     Type = "report_reminder"
	TypeSystem       Type = "system"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is the payload delivered over the realtime channel and stored
// in the offline queue for disconnected recipients.
type Notification struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Priority      Priority               `json:"priority"`
	Data          map[string]interface{} `json:"data,omitempty"`
	ActionURL     string                 `json:"action_url,omitempty"`
	ReferenceID   string                 `json:"reference_id,omitempty"`
	ReferenceType string                 `json:"reference_type,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	ReadAt        *time.Time             `json:"read_at,omitempty"`
}

func New(typ Type, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Priority:  PriorityNormal,
		CreatedAt: time.Now().UTC(),
	}
}

// ReportReady builds the notification announcing a finalized report to a
// recipient. Urgent results escalate both the type and the priority.
func ReportReady(resultID, patientName, testName string, urgent bool) *Notification {
	typ := TypeReportReady
	priority := PriorityNormal
	title := "Report Ready"
	if urgent {
		typ = TypeReportUrgent
		priority = PriorityUrgent
		title = "Urgent Report Ready"
	}

	n := New(typ, title, "Report for "+patientName+" ("+testName+") is ready")
	n.Priority = priority
	n.ReferenceID = resultID
	n.ReferenceType = "lab_result"
	n.ActionURL = "/reports/" + resultID
	n.Data = map[string]interface{}{
		"result_id":    resultID,
		"patient_name": patientName,
		"test_name":    testName,
		"urgent":       urgent,
	}
	return n
}

// Reminder builds the follow-up notification for a distribution that has not
// been read yet.
func Reminder(distributionID, resultID, patientName string) *Notification {
	n := New(TypeReminder, "Report Reminder", "You have an unread report for "+patientName)
	n.Priority = PriorityHigh
	n.ReferenceID = distributionID
	n.ReferenceType = "report_distribution"
	n.ActionURL = "/reports/" + resultID
	n.Data = map[string]interface{}{
		"distribution_id": distributionID,
		"result_id":       resultID,
	}
	return n
}
