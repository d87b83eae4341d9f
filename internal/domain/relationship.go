package domain

// RelationshipStatus mirrors the friend request lifecycle in the platform
// store. Only accepted relationships count for presence fan-out.
const (
	RelationshipPending  = "pending"
	RelationshipAccepted = "accepted"
)

// Relationship is one friend edge. Requests exist in both directions, so a
// user's friend set is the union of edges where they are sender or receiver.
type Relationship struct {
	SenderID   UserID `json:"sender_id"`
	ReceiverID UserID `json:"receiver_id"`
	Status     string `json:"status"`
}

// Counterpart returns the other end of the edge relative to id.
func (r Relationship) Counterpart(id UserID) UserID {
	if r.SenderID == id {
		return r.ReceiverID
	}
	return r.SenderID
}
