package services

import (
	"testing"
	"time"

	"report-workflow-service/models"
)

type captureNotifier struct {
	events []StatusChangeEvent
}

func (c *captureNotifier) NotifyStatusChange(event StatusChangeEvent) {
	c.events = append(c.events, event)
}

func TestMultiNotifierFansOut(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	multi := NewMultiNotifier(first, second)

	event := StatusChangeEvent{
		ReportID:  "r-1",
		OldStatus: models.StatusSubmitted,
		NewStatus: models.StatusAcknowledged,
		Kind:      models.HistoryStatusChange,
		ActorID:   "staff-1",
		ActorRole: models.RoleFieldStaff,
		Timestamp: time.Now().UTC(),
	}
	multi.NotifyStatusChange(event)

	for i, sink := range []*captureNotifier{first, second} {
		if len(sink.events) != 1 {
			t.Fatalf("sink %d received %d events, want 1", i, len(sink.events))
		}
		if sink.events[0].ReportID != "r-1" || sink.events[0].NewStatus != models.StatusAcknowledged {
			t.Errorf("sink %d received unexpected event: %+v", i, sink.events[0])
		}
	}
}
