package bus

import (
	"testing"
	"time"
)

func TestNewWSOpenerDialer(t *testing.T) {
	o := NewWSOpener("wss://sync.example/bus", "token", 7*time.Second)

	if o.Dialer == nil {
		t.Fatal("opener should carry its own dialer")
	}
	if o.Dialer.HandshakeTimeout != 7*time.Second {
		t.Fatalf("handshake timeout = %v, want 7s", o.Dialer.HandshakeTimeout)
	}
}

func TestResourceKeys(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{MessagesKey("alice"), "messages:alice"},
		{TypingKey("alice"), "typing:alice"},
		{PresenceKey("alice"), "presence:alice"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key = %q, want %q", tc.got, tc.want)
		}
	}
}
