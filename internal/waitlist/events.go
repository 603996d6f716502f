package waitlist

import "time"

// ChangeOperation names the kind of row mutation carried by a ChangeEvent.
type ChangeOperation string

const (
	ChangeInsert ChangeOperation = "insert"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// ChangeEvent describes one committed mutation of a party row.
// Party holds the row after the mutation, or the last known row for deletes.
type ChangeEvent struct {
	Operation  ChangeOperation
	Slug       string
	Party      Party
	OccurredAt time.Time
}

// ChangePublisher receives committed change events, scoped by restaurant slug.
type ChangePublisher interface {
	PublishChange(event ChangeEvent)
}

// NotificationKind identifies the guest-facing message to send.
type NotificationKind string

const (
	// NotificationJoinConfirmation confirms a queue join and reports the position.
	NotificationJoinConfirmation NotificationKind = "join_confirmation"
	// NotificationTableReady tells the party their table is ready.
	NotificationTableReady NotificationKind = "table_ready"
)

// NotificationRequest is emitted by queue operations that warrant an SMS.
type NotificationRequest struct {
	Kind        NotificationKind
	Slug        string
	PartyID     string
	PartyName   string
	Phone       string
	Position    int
	RequestedAt time.Time
}

// NotificationSink accepts notification requests without blocking the caller.
// It reports whether the request was accepted for delivery.
type NotificationSink interface {
	Enqueue(request NotificationRequest) bool
}
