package domain

import (
	"sort"
	"strings"
)

type RoomID string

type SpaceID string

// PairRoomID derives the room key for a direct call between two users.
// The order of the arguments does not matter, the key just has to be
// consistent for both sides.
func PairRoomID(a, b UserID) RoomID {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return RoomID(strings.Join(ids, ":"))
}

// PairCounterpart returns the other participant encoded in a pair room key,
// or "" when the key does not mention id.
func PairCounterpart(room RoomID, id UserID) UserID {
	ids := strings.SplitN(string(room), ":", 2)
	if len(ids) != 2 {
		return ""
	}
	switch UserID(ids[0]) {
	case id:
		return UserID(ids[1])
	default:
		if UserID(ids[1]) == id {
			return UserID(ids[0])
		}
	}
	return ""
}
