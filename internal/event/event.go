package event

type Type string

const (
	TypeLoggedIn       Type = "session.logged_in"
	TypeLoggedOut      Type = "session.logged_out"
	TypeSessionExpired Type = "session.expired"
	TypeTokenRefreshed Type = "token.refreshed"
	TypeCartMerged     Type = "cart.merged"
	TypeCartSynced     Type = "cart.synced"
	TypeCartSyncFailed Type = "cart.sync_failed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Notice is the payload of user-facing events such as session expiry.
type Notice struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
