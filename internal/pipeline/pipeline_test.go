package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
	"github.com/kha997/zenanotify/internal/rules"
)

type stubEvaluator struct {
	matches []rules.Match
	err     error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, ev *event.Event) ([]rules.Match, error) {
	return s.matches, s.err
}

type recordingWriter struct {
	written []*db.Notification
	failFor map[uuid.UUID]bool // user IDs whose writes fail
}

func (w *recordingWriter) CreateNotification(ctx context.Context, notif *db.Notification) error {
	if w.failFor[notif.UserID] {
		return errors.New("insert failed")
	}
	w.written = append(w.written, notif)
	return nil
}

type recordingDispatcher struct {
	calls int
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, notif *db.Notification, channels []string, cfg db.ChannelConfig) error {
	d.calls++
	return d.err
}

type recordingBroadcaster struct {
	notifs []*db.Notification
}

func (b *recordingBroadcaster) NotificationCreated(ctx context.Context, notif *db.Notification) {
	b.notifs = append(b.notifs, notif)
}

type recordingUnread struct {
	incrs []uuid.UUID
}

func (u *recordingUnread) Incr(ctx context.Context, userID uuid.UUID) {
	u.incrs = append(u.incrs, userID)
}

func matchFor(userID uuid.UUID, channels ...string) rules.Match {
	return rules.Match{
		UserID: userID,
		Rule: &db.NotificationRule{
			ID:        uuid.New(),
			UserID:    userID,
			EventKey:  event.TaskAssigned,
			Channels:  channels,
			IsEnabled: true,
		},
	}
}

func validEvent() *event.Event {
	projectID := uuid.New()
	return &event.Event{
		Key:       event.TaskAssigned,
		ActorID:   uuid.New(),
		ProjectID: &projectID,
		EntityID:  uuid.New(),
		Data: map[string]any{
			"task_title": "Pour foundation",
			"actor_name": "Layla",
		},
	}
}

func TestEvaluateAndNotifyHappyPath(t *testing.T) {
	userID := uuid.New()
	eval := &stubEvaluator{matches: []rules.Match{matchFor(userID, db.ChannelInApp, db.ChannelEmail)}}
	writer := &recordingWriter{}
	dispatcher := &recordingDispatcher{}
	broadcaster := &recordingBroadcaster{}
	unread := &recordingUnread{}

	p := New(eval, writer, dispatcher, broadcaster, unread, zap.NewNop())

	ev := validEvent()
	ids, err := p.EvaluateAndNotify(context.Background(), ev)
	if err != nil {
		t.Fatalf("EvaluateAndNotify() error: %v", err)
	}

	if len(ids) != 1 {
		t.Fatalf("expected 1 notification id, got %d", len(ids))
	}
	if len(writer.written) != 1 {
		t.Fatalf("expected 1 row written, got %d", len(writer.written))
	}

	notif := writer.written[0]
	if notif.UserID != userID {
		t.Errorf("wrong recipient: %s", notif.UserID)
	}
	if notif.Channel != db.ChannelInApp {
		t.Errorf("stored channel = %q, want inapp", notif.Channel)
	}
	if notif.EventKey != event.TaskAssigned {
		t.Errorf("stored event key = %q", notif.EventKey)
	}
	if notif.Title == "" || notif.Body == "" {
		t.Error("expected composed title and body")
	}

	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want 1", dispatcher.calls)
	}
	if len(broadcaster.notifs) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(broadcaster.notifs))
	}
	if len(unread.incrs) != 1 || unread.incrs[0] != userID {
		t.Errorf("unread incrs = %v, want [%s]", unread.incrs, userID)
	}
}

func TestEvaluateAndNotifyDropsMalformedEvent(t *testing.T) {
	eval := &stubEvaluator{matches: []rules.Match{matchFor(uuid.New(), db.ChannelInApp)}}
	writer := &recordingWriter{}

	p := New(eval, writer, &recordingDispatcher{}, &recordingBroadcaster{}, nil, zap.NewNop())

	// Project-scoped key without a project id.
	ev := &event.Event{Key: event.TaskCreated, ActorID: uuid.New()}

	ids, err := p.EvaluateAndNotify(context.Background(), ev)
	if err != nil {
		t.Fatalf("malformed event must not return an error, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("malformed event produced %d notifications", len(ids))
	}
	if len(writer.written) != 0 {
		t.Fatal("malformed event reached the writer")
	}
}

func TestEvaluateAndNotifyRuleLookupFailure(t *testing.T) {
	lookupErr := errors.New("rule store down")
	eval := &stubEvaluator{err: lookupErr}

	p := New(eval, &recordingWriter{}, &recordingDispatcher{}, &recordingBroadcaster{}, nil, zap.NewNop())

	_, err := p.EvaluateAndNotify(context.Background(), validEvent())
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected rule lookup error to surface, got %v", err)
	}
}

func TestEvaluateAndNotifyIsolatesWriteFailures(t *testing.T) {
	failing := uuid.New()
	surviving := uuid.New()

	eval := &stubEvaluator{matches: []rules.Match{
		matchFor(failing, db.ChannelInApp),
		matchFor(surviving, db.ChannelInApp),
	}}
	writer := &recordingWriter{failFor: map[uuid.UUID]bool{failing: true}}
	broadcaster := &recordingBroadcaster{}

	p := New(eval, writer, &recordingDispatcher{}, broadcaster, nil, zap.NewNop())

	ids, err := p.EvaluateAndNotify(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("per-recipient write failure must not fail the call, got %v", err)
	}

	if len(ids) != 1 {
		t.Fatalf("expected 1 surviving notification, got %d", len(ids))
	}
	if len(writer.written) != 1 || writer.written[0].UserID != surviving {
		t.Fatal("surviving recipient was not written")
	}
	if len(broadcaster.notifs) != 1 {
		t.Fatalf("expected 1 broadcast for the surviving row, got %d", len(broadcaster.notifs))
	}
}

func TestEvaluateAndNotifyDispatchFailureDoesNotSurface(t *testing.T) {
	eval := &stubEvaluator{matches: []rules.Match{matchFor(uuid.New(), db.ChannelInApp, db.ChannelEmail)}}
	writer := &recordingWriter{}
	dispatcher := &recordingDispatcher{err: errors.New("enqueue failed")}
	broadcaster := &recordingBroadcaster{}

	p := New(eval, writer, dispatcher, broadcaster, nil, zap.NewNop())

	ids, err := p.EvaluateAndNotify(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("dispatch failure must not fail the call, got %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected the row to survive a failed dispatch, got %d ids", len(ids))
	}
	// The in-app row still broadcasts.
	if len(broadcaster.notifs) != 1 {
		t.Fatalf("expected broadcast despite dispatch failure, got %d", len(broadcaster.notifs))
	}
}

func TestEvaluateAndNotifyNoMatches(t *testing.T) {
	eval := &stubEvaluator{}
	writer := &recordingWriter{}

	p := New(eval, writer, &recordingDispatcher{}, &recordingBroadcaster{}, nil, zap.NewNop())

	ids, err := p.EvaluateAndNotify(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("EvaluateAndNotify() error: %v", err)
	}
	if len(ids) != 0 || len(writer.written) != 0 {
		t.Fatal("event with no matching rules must write nothing")
	}
}

func TestComposeKnownKeys(t *testing.T) {
	projectID := uuid.New()

	ev := &event.Event{
		Key:       event.TaskOverdue,
		ActorID:   uuid.New(),
		ProjectID: &projectID,
		Data: map[string]any{
			"task_title":   "Install wiring",
			"project_name": "Tower B",
			"link_url":     "https://app.example.com/tasks/42",
		},
	}

	c := Compose(ev)
	if c.Priority != db.PriorityCritical {
		t.Errorf("overdue priority = %q, want critical", c.Priority)
	}
	if c.Title != "Task overdue" {
		t.Errorf("title = %q", c.Title)
	}
	if c.LinkURL == nil || *c.LinkURL != "https://app.example.com/tasks/42" {
		t.Error("link_url not carried into content")
	}
}

func TestComposeMissingDataDegrades(t *testing.T) {
	projectID := uuid.New()
	ev := &event.Event{Key: event.TaskAssigned, ActorID: uuid.New(), ProjectID: &projectID}

	c := Compose(ev)
	if c.Title == "" || c.Body == "" {
		t.Fatal("expected generic content when data bag is empty")
	}
	if c.LinkURL != nil {
		t.Error("expected nil link when producer sent none")
	}
}
