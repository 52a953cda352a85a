package models

import (
	"errors"
	"testing"
)

func TestStatusLegacyRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusQuizzing, StatusAsking} {
		got, err := StatusFromLegacy(s.Legacy())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", s, err)
		}
		if got != s {
			t.Errorf("round trip mismatch: %s -> %s -> %s", s, s.Legacy(), got)
		}
	}
}

func TestStatusFromLegacyUnknown(t *testing.T) {
	if _, err := StatusFromLegacy("9"); err == nil {
		t.Error("expected error for unknown legacy value")
	}
}

func TestStatusFromLegacyEmptyDefaultsToIdle(t *testing.T) {
	got, err := StatusFromLegacy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StatusIdle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{"valid text", Event{UserID: "u1", Kind: EventKindText, Text: "hello"}, nil},
		{"valid postback", Event{UserID: "u1", Kind: EventKindPostback, Postback: PostbackTryToAnswer}, nil},
		{"missing user", Event{Kind: EventKindText, Text: "hello"}, ErrEmptyUserID},
		{"empty text", Event{UserID: "u1", Kind: EventKindText}, ErrEmptyMessageText},
		{"empty postback", Event{UserID: "u1", Kind: EventKindPostback}, ErrEmptyPostbackKey},
		{"unknown kind", Event{UserID: "u1", Kind: "sticker"}, ErrUnknownEventKind},
	}
	for _, tc := range cases {
		err := tc.event.Validate()
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}
