package models

import "time"

// EventEntry is one entry in a resource's append-only event log. Ordering is
// by Time with ties broken by insertion order.
type EventEntry struct {
	EventID string                 `bson:"event_id" json:"event_id"`
	Time    time.Time              `bson:"time" json:"time"`
	Type    string                 `bson:"type" json:"type"`
	Meta    map[string]interface{} `bson:"meta,omitempty" json:"meta,omitempty"`
}

// ComputeResource is the current projection plus event log for a compute
// instance. LastBilledUntil is the billing cursor; it never moves backwards.
type ComputeResource struct {
	ResourceID      string       `bson:"resource_id" json:"resource_id"`
	UserID          string       `bson:"user_id" json:"user_id"`
	State           string       `bson:"state" json:"state"`
	CurrentFlavor   string       `bson:"current_flavor" json:"current_flavor"`
	CreatedAt       time.Time    `bson:"created_at" json:"created_at"`
	DeletedAt       *time.Time   `bson:"deleted_at" json:"deleted_at"`
	LastBilledUntil time.Time    `bson:"last_billed_until" json:"last_billed_until"`
	Events          []EventEntry `bson:"events" json:"events"`
}

// DiskResource is the current projection plus event log for a block volume.
type DiskResource struct {
	ResourceID      string       `bson:"resource_id" json:"resource_id"`
	UserID          string       `bson:"user_id" json:"user_id"`
	SizeGB          int          `bson:"size_gb" json:"size_gb"`
	State           string       `bson:"state" json:"state"`
	AttachedTo      *string      `bson:"attached_to" json:"attached_to"`
	CreatedAt       time.Time    `bson:"created_at" json:"created_at"`
	DeletedAt       *time.Time   `bson:"deleted_at" json:"deleted_at"`
	LastBilledUntil time.Time    `bson:"last_billed_until" json:"last_billed_until"`
	Events          []EventEntry `bson:"events" json:"events"`
}

// FloatingIPResource is the current projection plus event log for a floating IP.
type FloatingIPResource struct {
	ResourceID      string       `bson:"resource_id" json:"resource_id"`
	UserID          string       `bson:"user_id" json:"user_id"`
	IPAddress       string       `bson:"ip_address" json:"ip_address"`
	PortID          *string      `bson:"port_id" json:"port_id"`
	AttachedTo      *string      `bson:"attached_to" json:"attached_to"`
	CreatedAt       time.Time    `bson:"created_at" json:"created_at"`
	ReleasedAt      *time.Time   `bson:"released_at" json:"released_at"`
	LastBilledUntil time.Time    `bson:"last_billed_until" json:"last_billed_until"`
	Events          []EventEntry `bson:"events" json:"events"`
}
