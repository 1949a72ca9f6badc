package diplomacy

import "time"

// Message is one diplomatic message. Messages are never edited once created.
type Message struct {
	Sender    Power     `json:"sender"`
	Recipient Power     `json:"recipient"`
	Body      string    `json:"message"`
	Phase     string    `json:"phase"`
	SentAt    time.Time `json:"time_sent"`
}

// IsPublic reports whether the message was broadcast to every power.
func (m Message) IsPublic() bool {
	return m.Recipient == Global
}

// VisibleTo reports whether the power may read the message.
func (m Message) VisibleTo(p Power) bool {
	return m.IsPublic() || m.Sender == p || m.Recipient == p
}
