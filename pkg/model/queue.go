package model

import "time"

// Queue entry statuses. waiting and admitted are live; expired and left are
// terminal and never reused — a rejoin creates a fresh entry.
const (
	EntryWaiting  = "waiting"
	EntryAdmitted = "admitted"
	EntryExpired  = "expired"
	EntryLeft     = "left"
)

// QueueEntry is one participant's position record for one resource. Sequence
// is assigned once at join time and never changes.
type QueueEntry struct {
	ID            string     `json:"id,omitempty" bson:"_id,omitempty"`
	ResourceID    string     `json:"resource_id" bson:"resource_id"`
	ParticipantID string     `json:"participant_id" bson:"participant_id"`
	Sequence      uint64     `json:"sequence" bson:"sequence"`
	Status        string     `json:"status" bson:"status"`
	JoinedAt      time.Time  `json:"joined_at" bson:"joined_at"`
	ExpiresAt     time.Time  `json:"expires_at" bson:"expires_at"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty" bson:"cooldown_until,omitempty"`
}

// Live reports whether the entry still occupies the queue.
func (e *QueueEntry) Live() bool {
	return e.Status == EntryWaiting || e.Status == EntryAdmitted
}

// CheckoutSession is a time-boxed slot letting one admitted participant
// complete payment for one resource. The count of live sessions per resource
// never exceeds the configured checkout limit.
type CheckoutSession struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	ResourceID    string    `json:"resource_id" bson:"resource_id"`
	ParticipantID string    `json:"participant_id" bson:"participant_id"`
	Token         string    `json:"token,omitempty" bson:"token,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt     time.Time `json:"expires_at" bson:"expires_at"`
}

// AdmissionLock is an advisory lock serializing slot accounting for one
// resource. Acquired by inserting a document with a well-known _id; a
// duplicate key error means another request holds the lock. A TTL index on
// expires_at reclaims locks left behind by crashed holders.
type AdmissionLock struct {
	ID        string    `json:"id" bson:"_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
