package services

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"report-workflow-service/models"
)

// StatusChangeEvent is emitted on every accepted workflow mutation.
// OldStatus is empty for the initial submission event.
type StatusChangeEvent struct {
	ReportID  string        `json:"report_id"`
	OldStatus models.Status `json:"old_status,omitempty"`
	NewStatus models.Status `json:"new_status"`
	Kind      string        `json:"kind"`
	ActorID   string        `json:"actor_id"`
	ActorRole models.Role   `json:"actor_role"`
	Notes     string        `json:"notes,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier receives workflow events. Delivery is best effort; a failing sink
// must never fail the mutation that produced the event.
type Notifier interface {
	NotifyStatusChange(event StatusChangeEvent)
}

// LogNotifier writes every event to the service log.
type LogNotifier struct{}

func (LogNotifier) NotifyStatusChange(event StatusChangeEvent) {
	log.Infof("report %s: %s -> %s by %s (%s)",
		event.ReportID, event.OldStatus, event.NewStatus, event.ActorID, event.Kind)
}

// EmailNotifier sends a plain notification mail to the operations inbox via
// SendGrid.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	toEmail   string
}

// NewEmailNotifier creates a SendGrid-backed notifier.
func NewEmailNotifier(apiKey, fromName, fromEmail, toEmail string) *EmailNotifier {
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
		toEmail:   toEmail,
	}
}

func (n *EmailNotifier) NotifyStatusChange(event StatusChangeEvent) {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(n.toEmail, n.toEmail)
	subject := fmt.Sprintf("Report %s is now %s", event.ReportID, event.NewStatus)

	body := fmt.Sprintf(`Report %s changed status.

Previous status: %s
New status:      %s
Changed by:      %s (%s)
At:              %s
Notes:           %s
`,
		event.ReportID, event.OldStatus, event.NewStatus,
		event.ActorID, event.ActorRole,
		event.Timestamp.Format(time.RFC3339), event.Notes)

	message := mail.NewSingleEmail(from, subject, to, body, "")
	if _, err := n.client.Send(message); err != nil {
		log.Errorf("Failed to send notification email for report %s: %v", event.ReportID, err)
	}
}

// HubNotifier pushes events to connected dashboard websockets.
type HubNotifier struct {
	hub *WebSocketHub
}

// NewHubNotifier creates a websocket-backed notifier.
func NewHubNotifier(hub *WebSocketHub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyStatusChange(event StatusChangeEvent) {
	n.hub.Broadcast(BroadcastMessage{Type: "status_change", Payload: event})
}

// MultiNotifier fans an event out to all configured sinks.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier creates a fan-out notifier over the given sinks.
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

func (n *MultiNotifier) NotifyStatusChange(event StatusChangeEvent) {
	for _, sink := range n.sinks {
		sink.NotifyStatusChange(event)
	}
}
