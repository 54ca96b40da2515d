package cache

import "testing"

func TestTicketKey(t *testing.T) {
	got := TicketKey("bk-123")
	want := "ticket:bk-123"
	if got != want {
		t.Errorf("TicketKey() = %q, want %q", got, want)
	}
}

func TestTicketListKey(t *testing.T) {
	got := TicketListKey("user-1", 2, 20)
	want := "user:user-1:tickets:page:2:limit:20"
	if got != want {
		t.Errorf("TicketListKey() = %q, want %q", got, want)
	}
}

func TestTicketListPrefix(t *testing.T) {
	got := TicketListPrefix("user-1")
	want := "user:user-1:tickets:"
	if got != want {
		t.Errorf("TicketListPrefix() = %q, want %q", got, want)
	}

	key := TicketListKey("user-1", 1, 10)
	if len(key) < len(got) || key[:len(got)] != got {
		t.Errorf("TicketListKey() %q does not start with prefix %q", key, got)
	}
}
