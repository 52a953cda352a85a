package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ysdkz/graycells/internal/models"
	"github.com/ysdkz/graycells/internal/store"
)

// Pusher delivers a message to a user outside a reply context.
type Pusher interface {
	Push(ctx context.Context, userID string, text string) error
}

// Reminder nudges users who have not written a diary entry today. It is
// meant to run on a schedule, typically once in the evening.
type Reminder struct {
	store    store.Store
	pusher   Pusher
	location *time.Location
	now      func() time.Time
}

// ReminderOption defines a configuration option for the Reminder.
type ReminderOption func(*Reminder)

// WithReminderLocation sets the timezone used to determine today's date.
func WithReminderLocation(loc *time.Location) ReminderOption {
	return func(r *Reminder) {
		r.location = loc
	}
}

// WithReminderClock sets the time source (for tests).
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(r *Reminder) {
		r.now = now
	}
}

// NewReminder creates a reminder over the given store and push transport.
func NewReminder(st store.Store, pusher Pusher, opts ...ReminderOption) *Reminder {
	r := &Reminder{
		store:    st,
		pusher:   pusher,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sends one reminder to every user without a diary for today. Delivery
// failures are logged per user so one blocked recipient does not stop the
// rest.
func (r *Reminder) Run(ctx context.Context) error {
	date := r.now().In(r.location).Format(models.DateLayout)
	users, err := r.store.ListUsersWithoutDiaryOn(date)
	if err != nil {
		slog.Error("Reminder failed to list users", "error", err, "date", date)
		return err
	}
	slog.Debug("Reminder run", "date", date, "candidates", len(users))

	for _, userID := range users {
		if err := r.pusher.Push(ctx, userID, textReminder); err != nil {
			slog.Error("Reminder push failed", "error", err, "userID", userID)
			continue
		}
		slog.Debug("Reminder sent", "userID", userID)
	}
	return nil
}
