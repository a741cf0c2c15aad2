package shared

import "time"

// TransitionEvent describes a committed workflow transition for post-commit
// consumers such as requester notifications.
type TransitionEvent struct {
	Aggregate   string    `json:"aggregate"`
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Operation   string    `json:"operation"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
	ActorID     int64     `json:"actorId"`
	RecipientID int64     `json:"recipientId"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}
