package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseConversationKey(t *testing.T) {
	cases := []struct {
		name    string
		item    string
		recv    string
		want    ConversationKey
		wantErr bool
	}{
		{"valid", "42", "7", ConversationKey{ItemID: 42, CounterpartID: 7}, false},
		{"whitespace", " 42 ", "7", ConversationKey{ItemID: 42, CounterpartID: 7}, false},
		{"non-numeric item", "abc", "7", ConversationKey{}, true},
		{"non-numeric receiver", "42", "x", ConversationKey{}, true},
		{"zero item", "0", "7", ConversationKey{}, true},
		{"negative receiver", "42", "-1", ConversationKey{}, true},
		{"empty", "", "", ConversationKey{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConversationKey(tc.item, tc.recv)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseConversationKey(%q, %q) = %v, want error", tc.item, tc.recv, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConversationKey(%q, %q): %v", tc.item, tc.recv, err)
			}
			if got != tc.want {
				t.Fatalf("ParseConversationKey(%q, %q) = %v, want %v", tc.item, tc.recv, got, tc.want)
			}
		})
	}
}

func TestMessageWireFields(t *testing.T) {
	raw := `{"id":5,"sender":2,"sender_username":"ada","receiver":3,"item":9,"message":"hello","timestamp":"2026-03-01T10:00:00Z","is_read":false}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Body != "hello" {
		t.Fatalf("Body=%q, want %q", m.Body, "hello")
	}
	if m.SenderUsername != "ada" {
		t.Fatalf("SenderUsername=%q, want %q", m.SenderUsername, "ada")
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Fatalf("Timestamp=%v, want %v", m.Timestamp, want)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusLost, StatusFound, StatusClaimed} {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q)=false, want true", s)
		}
	}
	if ValidStatus("stolen") {
		t.Fatalf("ValidStatus(%q)=true, want false", "stolen")
	}
}
