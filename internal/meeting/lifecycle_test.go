package meeting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/testfixtures"
)

func TestLifecycleService_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("admin creates scheduled meeting", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t)
		created, err := svc.Lifecycle.Create(ctx, meeting.CreateParams{
			Principal: testfixtures.AdminPrincipal(),
			Date:      "2026-02-04",
			Type:      "Miércoles",
		})
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if created.ID == "" {
			t.Fatalf("expected generated id")
		}
		if created.Status != meeting.StatusScheduled {
			t.Fatalf("expected scheduled status, got %q", created.Status)
		}
		if created.Assignments != "{}" {
			t.Fatalf("expected empty assignments, got %q", created.Assignments)
		}
		got, err := svc.Lifecycle.Get(created.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got != created {
			t.Fatalf("collection holds %+v, want %+v", got, created)
		}
	})

	t.Run("empty type defaults to Miércoles", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t)
		created, err := svc.Lifecycle.Create(ctx, meeting.CreateParams{
			Principal: testfixtures.AdminPrincipal(),
			Date:      "2026-02-07",
		})
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if created.Type != meeting.TypeWednesday {
			t.Fatalf("expected default type, got %q", created.Type)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		t.Parallel()

		cases := map[string]struct {
			params meeting.CreateParams
			field  string
		}{
			"empty date":   {params: meeting.CreateParams{Date: ""}, field: "date"},
			"bad date":     {params: meeting.CreateParams{Date: "04/02/2026"}, field: "date"},
			"unknown type": {params: meeting.CreateParams{Date: "2026-02-04", Type: "Domingo"}, field: "type"},
		}
		for name, tc := range cases {
			tc := tc
			t.Run(name, func(t *testing.T) {
				factory := testfixtures.NewServiceFactory()
				svc := factory.NewServices(t)
				tc.params.Principal = testfixtures.AdminPrincipal()

				_, err := svc.Lifecycle.Create(ctx, tc.params)
				var vErr *meeting.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if _, ok := vErr.FieldErrors[tc.field]; !ok {
					t.Fatalf("expected error on %s, got %v", tc.field, vErr.FieldErrors)
				}
				if factory.Store.CallCount("create") != 0 {
					t.Fatalf("invalid input must not reach the store")
				}
			})
		}
	})

	t.Run("non admin is rejected", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t)
		_, err := svc.Lifecycle.Create(ctx, meeting.CreateParams{
			Principal: testfixtures.UserPrincipal("Thiago"),
			Date:      "2026-02-04",
		})
		if !errors.Is(err, meeting.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("store failure leaves collection untouched", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t)
		factory.Store.FailNext("create", persistence.Unavailable("create", errors.New("connection refused")))

		_, err := svc.Lifecycle.Create(ctx, meeting.CreateParams{
			Principal: testfixtures.AdminPrincipal(),
			Date:      "2026-02-04",
		})
		if !errors.Is(err, persistence.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if svc.Meetings.Len() != 0 {
			t.Fatalf("expected empty collection, got %d meetings", svc.Meetings.Len())
		}
	})
}

func TestLifecycleService_SetStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := testfixtures.AdminPrincipal()

	t.Run("walks the state machine", func(t *testing.T) {
		t.Parallel()

		recorder := &spyRecorder{}
		factory := testfixtures.NewServiceFactory(testfixtures.WithRecorder(recorder))
		fixture := testfixtures.NewMeetingFixture()
		svc := factory.NewServices(t, fixture)

		for _, status := range []meeting.Status{meeting.StatusInProgress, meeting.StatusCompleted} {
			got, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: fixture.ID, Status: status})
			if err != nil {
				t.Fatalf("SetStatus(%s) returned error: %v", status, err)
			}
			if got.Status != status {
				t.Fatalf("expected %s, got %s", status, got.Status)
			}
		}

		doc, _ := factory.Store.Document(persistence.CollectionMeetings, fixture.ID)
		if doc.Fields.String("status") != string(meeting.StatusCompleted) {
			t.Fatalf("store holds status %q", doc.Fields.String("status"))
		}
		if len(recorder.transitions) != 2 || recorder.transitions[1] != "in-progress->completed" {
			t.Fatalf("unexpected transitions %v", recorder.transitions)
		}
	})

	t.Run("completed is terminal", func(t *testing.T) {
		t.Parallel()

		fixture := testfixtures.NewMeetingFixture(testfixtures.WithMeetingStatus(meeting.StatusCompleted))
		svc := testfixtures.NewServiceFactory().NewServices(t, fixture)

		_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: fixture.ID, Status: meeting.StatusInProgress})
		if !errors.Is(err, meeting.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		fixture := testfixtures.NewMeetingFixture()
		svc := factory.NewServices(t, fixture)

		if _, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: fixture.ID, Status: meeting.StatusScheduled}); err != nil {
			t.Fatalf("SetStatus returned error: %v", err)
		}
		if n := factory.Store.CallCount("update"); n != 0 {
			t.Fatalf("expected no store update, got %d", n)
		}
	})

	t.Run("single active meeting", func(t *testing.T) {
		t.Parallel()

		a := testfixtures.NewMeetingFixture()
		b := testfixtures.NewMeetingFixture()
		svc := testfixtures.NewServiceFactory().NewServices(t, a, b)

		if _, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: a.ID, Status: meeting.StatusInProgress}); err != nil {
			t.Fatalf("starting first meeting: %v", err)
		}
		_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: b.ID, Status: meeting.StatusInProgress})
		if !errors.Is(err, meeting.ErrMeetingAlreadyActive) {
			t.Fatalf("expected ErrMeetingAlreadyActive, got %v", err)
		}

		active := 0
		for _, m := range svc.Lifecycle.List() {
			if m.Status == meeting.StatusInProgress {
				active++
			}
		}
		if active != 1 {
			t.Fatalf("expected exactly one active meeting, got %d", active)
		}
		got, ok := svc.Lifecycle.Active()
		if !ok || got.ID != a.ID {
			t.Fatalf("expected %s active, got %+v", a.ID, got)
		}
	})

	t.Run("concurrent starts keep one active meeting", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		first := testfixtures.NewMeetingFixture()
		second := testfixtures.NewMeetingFixture()
		svc := factory.NewServices(t, first, second)

		reached, release := factory.Store.PauseNext("update")
		defer release()

		errFirst := make(chan error, 1)
		go func() {
			_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: first.ID, Status: meeting.StatusInProgress})
			errFirst <- err
		}()
		select {
		case <-reached:
		case <-time.After(5 * time.Second):
			t.Fatalf("first start never reached the store")
		}

		// a local write reloads the collection while the status write is pending
		if _, err := svc.Assignments.Assign(ctx, meeting.AssignParams{Principal: admin, MeetingID: second.ID, Position: assignment.Plataforma, Name: "Jorge"}); err != nil {
			t.Fatalf("Assign returned error: %v", err)
		}

		errSecond := make(chan error, 1)
		go func() {
			_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: second.ID, Status: meeting.StatusInProgress})
			errSecond <- err
		}()
		select {
		case err := <-errSecond:
			t.Fatalf("second start finished before the first was stored: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		release()

		if err := <-errFirst; err != nil {
			t.Fatalf("first start returned error: %v", err)
		}
		if err := <-errSecond; !errors.Is(err, meeting.ErrMeetingAlreadyActive) {
			t.Fatalf("expected ErrMeetingAlreadyActive, got %v", err)
		}

		for id, want := range map[string]meeting.Status{first.ID: meeting.StatusInProgress, second.ID: meeting.StatusScheduled} {
			doc, _ := factory.Store.Document(persistence.CollectionMeetings, id)
			if got := doc.Fields.String("status"); got != string(want) {
				t.Fatalf("store holds %s for %s, want %s", got, id, want)
			}
		}
	})

	t.Run("remote start sees meetings started elsewhere", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryStore(true)
		factory := testfixtures.NewServiceFactory(testfixtures.WithStore(store))
		target := testfixtures.NewMeetingFixture()
		svc := factory.NewServices(t, target)

		other := testfixtures.NewMeetingFixture(testfixtures.WithMeetingStatus(meeting.StatusInProgress))
		store.Put(persistence.CollectionMeetings, other.Document())

		_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: target.ID, Status: meeting.StatusInProgress})
		if !errors.Is(err, meeting.ErrMeetingAlreadyActive) {
			t.Fatalf("expected ErrMeetingAlreadyActive, got %v", err)
		}
	})

	t.Run("failed write rolls back", func(t *testing.T) {
		t.Parallel()

		recorder := &spyRecorder{}
		factory := testfixtures.NewServiceFactory(testfixtures.WithRecorder(recorder))
		fixture := testfixtures.NewMeetingFixture()
		svc := factory.NewServices(t, fixture)
		factory.Store.FailNext("update", nil)

		_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: fixture.ID, Status: meeting.StatusInProgress})
		if !errors.Is(err, testfixtures.ErrInjected) {
			t.Fatalf("expected injected error, got %v", err)
		}
		got, _ := svc.Lifecycle.Get(fixture.ID)
		if got.Status != meeting.StatusScheduled {
			t.Fatalf("expected rollback to scheduled, got %s", got.Status)
		}
		if len(recorder.rollbacks) != 1 || recorder.rollbacks[0] != "status" {
			t.Fatalf("unexpected rollbacks %v", recorder.rollbacks)
		}
	})

	t.Run("unknown meeting and status", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t)
		_, err := svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: "missing", Status: meeting.StatusInProgress})
		if !errors.Is(err, meeting.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		_, err = svc.Lifecycle.SetStatus(ctx, meeting.SetStatusParams{Principal: admin, MeetingID: "missing", Status: "paused"})
		var vErr *meeting.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestLifecycleService_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := testfixtures.AdminPrincipal()

	t.Run("deletes from any state", func(t *testing.T) {
		t.Parallel()

		fixture := testfixtures.NewMeetingFixture(testfixtures.WithMeetingStatus(meeting.StatusInProgress))
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)

		if err := svc.Lifecycle.Delete(ctx, admin, fixture.ID); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if _, ok := factory.Store.Document(persistence.CollectionMeetings, fixture.ID); ok {
			t.Fatalf("expected document removed from store")
		}
		if _, ok := svc.Lifecycle.Active(); ok {
			t.Fatalf("expected no active meeting after delete")
		}
	})

	t.Run("removed remotely drops stale copy", func(t *testing.T) {
		t.Parallel()

		fixture := testfixtures.NewMeetingFixture()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)
		factory.Store.Remove(persistence.CollectionMeetings, fixture.ID)

		err := svc.Lifecycle.Delete(ctx, admin, fixture.ID)
		if !errors.Is(err, meeting.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if svc.Meetings.Len() != 0 {
			t.Fatalf("expected stale meeting dropped")
		}
	})

	t.Run("failure keeps meeting", func(t *testing.T) {
		t.Parallel()

		fixture := testfixtures.NewMeetingFixture()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, fixture)
		factory.Store.FailNext("delete", nil)

		if err := svc.Lifecycle.Delete(ctx, admin, fixture.ID); err == nil {
			t.Fatalf("expected error")
		}
		if _, err := svc.Lifecycle.Get(fixture.ID); err != nil {
			t.Fatalf("expected meeting kept, got %v", err)
		}
	})

	t.Run("non admin is rejected", func(t *testing.T) {
		t.Parallel()

		fixture := testfixtures.NewMeetingFixture()
		svc := testfixtures.NewServiceFactory().NewServices(t, fixture)
		if err := svc.Lifecycle.Delete(ctx, testfixtures.UserPrincipal("Thiago"), fixture.ID); !errors.Is(err, meeting.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestLifecycleService_DeleteAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := testfixtures.AdminPrincipal()

	t.Run("deletes everything", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t,
			testfixtures.NewMeetingFixture(), testfixtures.NewMeetingFixture(), testfixtures.NewMeetingFixture())

		deleted, err := svc.Lifecycle.DeleteAll(ctx, admin)
		if err != nil {
			t.Fatalf("DeleteAll returned error: %v", err)
		}
		if deleted != 3 || svc.Meetings.Len() != 0 {
			t.Fatalf("expected 3 deleted and empty collection, got %d and %d", deleted, svc.Meetings.Len())
		}
	})

	t.Run("stops at first failure without rollback", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t,
			testfixtures.NewMeetingFixture(), testfixtures.NewMeetingFixture(), testfixtures.NewMeetingFixture())
		factory.Store.FailAfter("delete", 1, nil)

		deleted, err := svc.Lifecycle.DeleteAll(ctx, admin)
		if !errors.Is(err, testfixtures.ErrInjected) {
			t.Fatalf("expected injected error, got %v", err)
		}
		if deleted != 1 {
			t.Fatalf("expected 1 deletion before the failure, got %d", deleted)
		}
		if svc.Meetings.Len() != 2 {
			t.Fatalf("expected 2 meetings left, got %d", svc.Meetings.Len())
		}
		if factory.Store.CallCount("delete") != 2 {
			t.Fatalf("expected the loop to stop after the failure")
		}
	})

	t.Run("skips meetings already gone", func(t *testing.T) {
		t.Parallel()

		gone := testfixtures.NewMeetingFixture()
		factory := testfixtures.NewServiceFactory()
		svc := factory.NewServices(t, gone, testfixtures.NewMeetingFixture())
		factory.Store.Remove(persistence.CollectionMeetings, gone.ID)

		deleted, err := svc.Lifecycle.DeleteAll(ctx, admin)
		if err != nil {
			t.Fatalf("DeleteAll returned error: %v", err)
		}
		if deleted != 1 || svc.Meetings.Len() != 0 {
			t.Fatalf("expected 1 deleted and empty collection, got %d and %d", deleted, svc.Meetings.Len())
		}
	})
}

func TestLifecycleService_ScheduleRecurring(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	admin := testfixtures.AdminPrincipal()

	t.Run("creates missing weekly meetings", func(t *testing.T) {
		t.Parallel()

		existing := testfixtures.NewMeetingFixture(testfixtures.WithMeetingDate("2026-02-04"))
		svc := testfixtures.NewServiceFactory().NewServices(t, existing)

		created, err := svc.Lifecycle.ScheduleRecurring(ctx, meeting.ScheduleRecurringParams{
			Principal: admin,
			From:      "2026-02-02",
			Until:     "2026-02-15",
		})
		if err != nil {
			t.Fatalf("ScheduleRecurring returned error: %v", err)
		}

		want := []struct {
			date string
			kind meeting.Type
		}{
			{"2026-02-07", meeting.TypeSaturday},
			{"2026-02-11", meeting.TypeWednesday},
			{"2026-02-14", meeting.TypeSaturday},
		}
		if len(created) != len(want) {
			t.Fatalf("expected %d meetings, got %+v", len(want), created)
		}
		for i, w := range want {
			if created[i].Date != w.date || created[i].Type != w.kind {
				t.Fatalf("meeting %d = %s %s, want %s %s", i, created[i].Date, created[i].Type, w.date, w.kind)
			}
		}
		if svc.Meetings.Len() != 4 {
			t.Fatalf("expected 4 meetings, got %d", svc.Meetings.Len())
		}
	})

	t.Run("rejects invalid windows", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().NewServices(t)
		cases := map[string]meeting.ScheduleRecurringParams{
			"bad from":  {Principal: admin, From: "tomorrow", Until: "2026-02-15"},
			"reversed":  {Principal: admin, From: "2026-03-01", Until: "2026-02-01"},
			"too large": {Principal: admin, From: "2026-01-01", Until: "2028-01-01"},
		}
		for name, params := range cases {
			_, err := svc.Lifecycle.ScheduleRecurring(ctx, params)
			var vErr *meeting.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("%s: expected validation error, got %v", name, err)
			}
		}
	})
}

func TestLifecycleService_Watch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testfixtures.NewMemoryStore(true)
	factory := testfixtures.NewServiceFactory(testfixtures.WithStore(store))
	svc := factory.NewServices(t)

	stop, err := svc.Lifecycle.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	remote := testfixtures.NewMeetingFixture()
	store.Put(persistence.CollectionMeetings, remote.Document())
	store.Emit(persistence.Event{Type: persistence.EventCreate, Collection: persistence.CollectionMeetings, DocumentID: remote.ID})

	if _, err := svc.Lifecycle.Get(remote.ID); err != nil {
		t.Fatalf("expected remote meeting after event, got %v", err)
	}

	stop()
	if store.Subscribers(persistence.CollectionMeetings) != 0 {
		t.Fatalf("expected subscription released")
	}
}

func TestLifecycleService_LocalModeReloadsAfterWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewServices(t)
	before := factory.Store.CallCount("list")

	if _, err := svc.Lifecycle.Create(ctx, meeting.CreateParams{Principal: testfixtures.AdminPrincipal(), Date: "2026-02-04"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if got := factory.Store.CallCount("list"); got != before+1 {
		t.Fatalf("expected a reload after create, list calls %d -> %d", before, got)
	}
}
