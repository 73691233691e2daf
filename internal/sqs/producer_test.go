package sqs

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/kha997/zenanotify/internal/db"
)

func TestMessageCarriesDeliveryReference(t *testing.T) {
	d := &db.Delivery{
		ID:             uuid.New(),
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		Channel:        db.ChannelEmail,
	}

	msg := Message{
		DeliveryID:     d.ID.String(),
		NotificationID: d.NotificationID.String(),
		UserID:         d.UserID.String(),
		Channel:        d.Channel,
		EnqueuedAt:     1234567890,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.DeliveryID != d.ID.String() {
		t.Errorf("delivery id = %s, want %s", decoded.DeliveryID, d.ID)
	}
	if decoded.Channel != db.ChannelEmail {
		t.Errorf("channel = %s", decoded.Channel)
	}
	if decoded.EnqueuedAt != 1234567890 {
		t.Errorf("enqueued_at = %d", decoded.EnqueuedAt)
	}
}
