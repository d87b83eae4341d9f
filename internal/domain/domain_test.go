package domain

import "testing"

func TestPairRoomID(t *testing.T) {
	if got := PairRoomID("bob", "alice"); got != "alice:bob" {
		t.Errorf("PairRoomID(bob, alice) = %q, want %q", got, "alice:bob")
	}
	if PairRoomID("alice", "bob") != PairRoomID("bob", "alice") {
		t.Error("PairRoomID is not symmetric")
	}
}

func TestPairCounterpart(t *testing.T) {
	cases := []struct {
		room RoomID
		id   UserID
		want UserID
	}{
		{"alice:bob", "alice", "bob"},
		{"alice:bob", "bob", "alice"},
		{"alice:bob", "carol", ""},
		{"not-a-pair", "alice", ""},
	}
	for _, tc := range cases {
		if got := PairCounterpart(tc.room, tc.id); got != tc.want {
			t.Errorf("PairCounterpart(%q, %q) = %q, want %q", tc.room, tc.id, got, tc.want)
		}
	}
}

func TestPresenceMerge(t *testing.T) {
	base := Presence{Online: true, Status: StatusOnline, StatusText: "hi"}

	got := base.Merge(Presence{Online: true, Status: StatusDND})
	if got.Status != StatusDND {
		t.Errorf("Status = %q, want %q", got.Status, StatusDND)
	}
	if got.StatusText != "hi" {
		t.Errorf("StatusText = %q, want preserved %q", got.StatusText, "hi")
	}

	got = base.Merge(Presence{Online: false})
	if got.Online {
		t.Error("Online not overwritten by update")
	}
	if got.Status != StatusOnline {
		t.Errorf("empty Status overwrote %q", StatusOnline)
	}
}

func TestPublicStripsCredentials(t *testing.T) {
	u := User{
		ID:            "alice",
		Username:      "alice",
		Password:      "hash",
		Secret:        "s3cret",
		LastPassReset: 123,
		Presence:      Presence{Online: true, Status: StatusOnline},
	}
	pub := u.Public()
	if pub.ID != u.ID || pub.Username != u.Username {
		t.Error("Public dropped identity fields")
	}
	if pub.Presence != u.Presence {
		t.Error("Public dropped presence")
	}
}
