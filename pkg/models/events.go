package models

import "time"

// ResourceType identifies the class of cloud resource an event refers to
type ResourceType string

const (
	ResourceCompute    ResourceType = "compute"
	ResourceDisk       ResourceType = "disk"
	ResourceFloatingIP ResourceType = "floating_ip"
)

// EventType is the canonical lifecycle event vocabulary
type EventType string

const (
	EventCreate   EventType = "create"
	EventUpdate   EventType = "update"
	EventDelete   EventType = "delete"
	EventStart    EventType = "start"
	EventStop     EventType = "stop"
	EventResize   EventType = "resize"
	EventAttach   EventType = "attach"
	EventDetach   EventType = "detach"
	EventAllocate EventType = "allocate"
	EventRelease  EventType = "release"
)

// Billing-internal resource states
const (
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateDeleted  = "deleted"
	StateAttached = "attached"
	StateDetached = "detached"
)

// Event is the canonical record produced by the normalizer from a raw
// queue message. Payload carries only normalized fields: flavor/state for
// compute, size_gb/state for disks, ip_address/port_id/attached_to for
// floating IPs.
type Event struct {
	ResourceType ResourceType           `json:"resource_type"`
	EventType    EventType              `json:"event_type"`
	ResourceID   string                 `json:"resource_id"`
	UserID       string                 `json:"user_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Payload      map[string]interface{} `json:"payload"`
}

// PayloadString returns a string payload field, or the fallback when absent.
func (e *Event) PayloadString(key, fallback string) string {
	if v, ok := e.Payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// PayloadInt returns an integer payload field, or the fallback when absent.
func (e *Event) PayloadInt(key string, fallback int) int {
	switch v := e.Payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
