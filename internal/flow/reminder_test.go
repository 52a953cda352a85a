package flow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ysdkz/graycells/internal/models"
	"github.com/ysdkz/graycells/internal/store"
)

type fakePusher struct {
	pushed []string
	errFor map[string]error
}

func (p *fakePusher) Push(ctx context.Context, userID, text string) error {
	if err := p.errFor[userID]; err != nil {
		return err
	}
	p.pushed = append(p.pushed, userID)
	return nil
}

func TestReminderNudgesOnlyStaleUsers(t *testing.T) {
	st := store.NewInMemoryStore()
	seed := func(userID, date string) {
		t.Helper()
		if err := st.SaveUserStatus(models.UserStatus{UserID: userID, Status: models.StatusIdle, LatestDiaryDate: date}); err != nil {
			t.Fatalf("seed status failed: %v", err)
		}
	}
	seed("fresh", "2026-08-29")
	seed("stale1", "2026-08-28")
	seed("stale2", "")

	pusher := &fakePusher{}
	reminder := NewReminder(st, pusher,
		WithReminderLocation(time.UTC),
		WithReminderClock(func() time.Time { return testDay }))

	if err := reminder.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(pusher.pushed) != 2 || pusher.pushed[0] != "stale1" || pusher.pushed[1] != "stale2" {
		t.Errorf("expected [stale1 stale2], got %v", pusher.pushed)
	}
}

func TestReminderContinuesPastPushFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	for _, userID := range []string{"a", "b", "c"} {
		if err := st.SaveUserStatus(models.UserStatus{UserID: userID, Status: models.StatusIdle}); err != nil {
			t.Fatalf("seed status failed: %v", err)
		}
	}

	pusher := &fakePusher{errFor: map[string]error{"b": fmt.Errorf("user blocked the bot")}}
	reminder := NewReminder(st, pusher,
		WithReminderLocation(time.UTC),
		WithReminderClock(func() time.Time { return testDay }))

	if err := reminder.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(pusher.pushed) != 2 || pusher.pushed[0] != "a" || pusher.pushed[1] != "c" {
		t.Errorf("delivery must continue past a failing user, got %v", pusher.pushed)
	}
}
