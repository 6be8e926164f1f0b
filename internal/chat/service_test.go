package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/testfixtures"
)

func assignedMeeting() testfixtures.MeetingFixture {
	return testfixtures.NewMeetingFixture(
		testfixtures.WithMeetingStatus(meeting.StatusInProgress),
		testfixtures.WithAssignment(assignment.Plataforma, "Dan", nil),
	)
}

func TestService_Authorization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixture := assignedMeeting()
	svc := testfixtures.NewServiceFactory().NewServices(t, fixture)

	if _, err := svc.Chat.List(ctx, testfixtures.AdminPrincipal(), fixture.ID); err != nil {
		t.Fatalf("admin List returned error: %v", err)
	}
	if _, err := svc.Chat.List(ctx, testfixtures.UserPrincipal("Dan"), fixture.ID); err != nil {
		t.Fatalf("assigned List returned error: %v", err)
	}
	if _, err := svc.Chat.List(ctx, testfixtures.UserPrincipal("Thiago"), fixture.ID); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, err := svc.Chat.Send(ctx, chat.SendParams{Principal: testfixtures.UserPrincipal("Thiago"), MeetingID: fixture.ID, Text: "hola"})
	if !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Chat.List(ctx, testfixtures.AdminPrincipal(), "missing"); !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_AuthorizationFollowsAssignments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixture := assignedMeeting()
	svc := testfixtures.NewServiceFactory().NewServices(t, fixture)
	thiago := testfixtures.UserPrincipal("Thiago")

	if _, err := svc.Assignments.Assign(ctx, meeting.AssignParams{Principal: testfixtures.AdminPrincipal(), MeetingID: fixture.ID, Position: assignment.Microfono1, Name: "Thiago"}); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := svc.Chat.List(ctx, thiago, fixture.ID); err != nil {
		t.Fatalf("expected access after assignment, got %v", err)
	}
}

func TestService_LocalHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty chat shows welcome", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		svc := testfixtures.NewServiceFactory().NewServices(t, fixture)

		messages, err := svc.Chat.List(ctx, testfixtures.AdminPrincipal(), fixture.ID)
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(messages) != 1 || messages[0].Sender != chat.SystemSender || messages[0].Text != chat.LocalWelcome {
			t.Fatalf("unexpected messages %+v", messages)
		}
	})

	t.Run("returns the most recent oldest first", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		factory := testfixtures.NewServiceFactory()
		for i := 0; i < chat.HistoryLimit+5; i++ {
			factory.Store.Put(persistence.CollectionMessages, testfixtures.MessageDocument(fixture.ID, "Dan", "msg", time.Duration(i)*time.Second))
		}
		factory.Store.Put(persistence.CollectionMessages, testfixtures.MessageDocument("other", "Dan", "elsewhere", time.Hour))
		svc := factory.NewServices(t, fixture)

		messages, err := svc.Chat.List(ctx, testfixtures.AdminPrincipal(), fixture.ID)
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if len(messages) != chat.HistoryLimit {
			t.Fatalf("expected %d messages, got %d", chat.HistoryLimit, len(messages))
		}
		first := testfixtures.ReferenceTime().Add(5 * time.Second).UTC().Format(chat.TimestampLayout)
		if messages[0].Timestamp != first {
			t.Fatalf("expected oldest kept message at %s, got %s", first, messages[0].Timestamp)
		}
		for i := 1; i < len(messages); i++ {
			if messages[i-1].Timestamp > messages[i].Timestamp {
				t.Fatalf("messages out of order at %d", i)
			}
			if messages[i].MeetingID != fixture.ID {
				t.Fatalf("message from another meeting: %+v", messages[i])
			}
		}
	})
}

func TestService_MissingIndex(t *testing.T) {
	t.Parallel()

	fixture := assignedMeeting()
	store := testfixtures.NewMemoryStore(true)
	store.RequireIndexes(persistence.CollectionMessages)
	svc := testfixtures.NewServiceFactory(testfixtures.WithStore(store)).NewServices(t, fixture)

	_, err := svc.Chat.List(context.Background(), testfixtures.AdminPrincipal(), fixture.ID)
	if !errors.Is(err, chat.ErrChatIndexMissing) {
		t.Fatalf("expected ErrChatIndexMissing, got %v", err)
	}
	if !errors.Is(err, persistence.ErrMissingIndex) {
		t.Fatalf("expected the store cause to be kept, got %v", err)
	}
}

func TestService_Send(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dan := testfixtures.UserPrincipal("Dan")

	t.Run("stores trimmed text and notifies watchers", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)
		updates, stop := svc.Chat.Watch(fixture.ID)
		defer stop()

		sent, err := svc.Chat.Send(ctx, chat.SendParams{Principal: dan, MeetingID: fixture.ID, Text: "  ayuda  "})
		if err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		if sent.Text != "ayuda" || sent.Sender != "Dan" || sent.Type != chat.MessageTypeText {
			t.Fatalf("unexpected message %+v", sent)
		}
		if sent.Timestamp != "2026-02-04T19:00:00.000Z" {
			t.Fatalf("unexpected timestamp %q", sent.Timestamp)
		}

		doc, ok := factory.Store.Document(persistence.CollectionMessages, sent.ID)
		if !ok || doc.Fields.String("meetingId") != fixture.ID || doc.Fields.String("text") != "ayuda" {
			t.Fatalf("unexpected stored document %+v", doc)
		}

		select {
		case got := <-updates:
			if got.ID != sent.ID {
				t.Fatalf("watcher got %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("watcher not notified")
		}
	})

	t.Run("rejects blank and oversized text", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)

		if _, err := svc.Chat.Send(ctx, chat.SendParams{Principal: dan, MeetingID: fixture.ID, Text: "   "}); !errors.Is(err, chat.ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		long := strings.Repeat("a", chat.MaxTextLength+1)
		if _, err := svc.Chat.Send(ctx, chat.SendParams{Principal: dan, MeetingID: fixture.ID, Text: long}); !errors.Is(err, chat.ErrMessageTooLong) {
			t.Fatalf("expected ErrMessageTooLong, got %v", err)
		}
		if factory.Store.CallCount("create") != 0 {
			t.Fatalf("rejected messages must not reach the store")
		}
	})

	t.Run("rate limits each sender", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		svc := testfixtures.NewServiceFactory().NewServices(t, fixture)

		var err error
		for i := 0; i < 10 && err == nil; i++ {
			_, err = svc.Chat.Send(ctx, chat.SendParams{Principal: dan, MeetingID: fixture.ID, Text: "hola"})
		}
		if !errors.Is(err, chat.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if _, err := svc.Chat.Send(ctx, chat.SendParams{Principal: testfixtures.AdminPrincipal(), MeetingID: fixture.ID, Text: "hola"}); err != nil {
			t.Fatalf("other sender must not be limited, got %v", err)
		}
	})

	t.Run("store failure is returned", func(t *testing.T) {
		t.Parallel()

		fixture := assignedMeeting()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)
		factory.Store.FailNext("create", nil)

		if _, err := svc.Chat.Send(ctx, chat.SendParams{Principal: dan, MeetingID: fixture.ID, Text: "hola"}); !errors.Is(err, testfixtures.ErrInjected) {
			t.Fatalf("expected injected error, got %v", err)
		}
	})
}

func TestService_RelayInRemoteMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixture := assignedMeeting()
	store := testfixtures.NewMemoryStore(true)
	svc := testfixtures.NewServiceFactory(testfixtures.WithStore(store)).NewServices(t, fixture)

	stop, err := svc.Chat.Relay(ctx)
	if err != nil {
		t.Fatalf("Relay returned error: %v", err)
	}
	defer stop()

	updates, stopWatch := svc.Chat.Watch(fixture.ID)
	defer stopWatch()

	sent, err := svc.Chat.Send(ctx, chat.SendParams{Principal: testfixtures.UserPrincipal("Dan"), MeetingID: fixture.ID, Text: "solucionado"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	got := <-updates
	if got.ID != sent.ID || got.Text != "solucionado" {
		t.Fatalf("unexpected relayed message %+v", got)
	}
	select {
	case dup := <-updates:
		t.Fatalf("message delivered twice: %+v", dup)
	default:
	}

	messages, err := svc.Chat.List(ctx, testfixtures.AdminPrincipal(), fixture.ID)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("remote mode has no welcome message, got %+v", messages)
	}
}

func TestScenarioChatAccess(t *testing.T) {
	t.Parallel()

	m := meeting.Meeting{ID: "m", Date: "2026-02-04", Type: meeting.TypeWednesday, Assignments: `{"P":"Dan|_"}`}
	if !chat.IsAuthorized(m, testfixtures.AdminPrincipal()) {
		t.Fatalf("expected Ángel authorized")
	}
	if chat.IsAuthorized(m, testfixtures.UserPrincipal("Thiago")) {
		t.Fatalf("expected Thiago not authorized")
	}
}
