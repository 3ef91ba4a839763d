// Package normalizer maps heterogeneous broker messages onto the canonical
// event model. Classification is pure: no I/O, no clock except the
// missing-timestamp fallback.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// RoutingKeyField is injected into the raw message by the consumer before
// normalization.
const RoutingKeyField = "_routing_key"

// openstackStateMap folds upstream compute states into the billing
// vocabulary {running, stopped, deleted}.
var openstackStateMap = map[string]string{
	"active":    models.StateRunning,
	"build":     models.StateRunning,
	"stopped":   models.StateStopped,
	"paused":    models.StateStopped,
	"suspended": models.StateStopped,
	"shutoff":   models.StateStopped,
	"error":     models.StateStopped,
	"deleted":   models.StateDeleted,
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Normalize classifies one decoded broker message. It returns false when the
// message cannot be mapped to a resource type or lacks resource/user ids;
// such messages must be dead-lettered, not retried.
func Normalize(raw map[string]interface{}) (*models.Event, bool) {
	resourceType, ok := detectResourceType(raw)
	if !ok {
		return nil, false
	}

	eventType := detectEventType(raw)
	resourceID := extractResourceID(raw)
	userID := extractUserID(raw)
	if resourceID == "" || userID == "" {
		return nil, false
	}

	ts := parseTimestamp(firstOf(raw, "timestamp", "generated", "created_at"))

	var payload map[string]interface{}
	switch resourceType {
	case models.ResourceCompute:
		payload = parseCompute(raw, eventType)
	case models.ResourceDisk:
		payload = parseDisk(raw, eventType)
	case models.ResourceFloatingIP:
		payload = parseFloatingIP(raw)
	}

	return &models.Event{
		ResourceType: resourceType,
		EventType:    eventType,
		ResourceID:   resourceID,
		UserID:       userID,
		Timestamp:    ts,
		Payload:      payload,
	}, true
}

func detectResourceType(raw map[string]interface{}) (models.ResourceType, bool) {
	eventType := strings.ToLower(stringField(raw, "event_type"))
	routingKey := strings.ToLower(stringField(raw, RoutingKeyField))

	if containsAny(eventType, "instance", "compute", "server") {
		return models.ResourceCompute, true
	}
	if containsAny(eventType, "volume", "disk") {
		return models.ResourceDisk, true
	}
	if containsAny(eventType, "floatingip", "floating_ip", "fip") {
		return models.ResourceFloatingIP, true
	}

	if containsAny(routingKey, "compute", "nova") {
		return models.ResourceCompute, true
	}
	if containsAny(routingKey, "volume", "cinder") {
		return models.ResourceDisk, true
	}
	if containsAny(routingKey, "floatingip", "neutron") {
		if strings.Contains(strings.ToLower(fmt.Sprint(raw)), "floatingip") {
			return models.ResourceFloatingIP, true
		}
	}

	payload := payloadMap(raw)
	if _, ok := payload["instance_id"]; ok {
		return models.ResourceCompute, true
	}
	if _, ok := payload["flavor"]; ok {
		return models.ResourceCompute, true
	}
	if _, ok := payload["volume_id"]; ok {
		return models.ResourceDisk, true
	}
	if _, ok := payload["size"]; ok {
		return models.ResourceDisk, true
	}
	if _, ok := payload["floating_ip_address"]; ok {
		return models.ResourceFloatingIP, true
	}
	if _, ok := payload["floatingip"]; ok {
		return models.ResourceFloatingIP, true
	}

	return "", false
}

func detectEventType(raw map[string]interface{}) models.EventType {
	eventStr := strings.ToLower(stringField(raw, "event_type"))

	switch {
	case containsAny(eventStr, "create", "build", "spawn"):
		return models.EventCreate
	case containsAny(eventStr, "delete", "destroy", "terminate"):
		return models.EventDelete
	case containsAny(eventStr, "start", "power_on", "resume", "unpause"):
		return models.EventStart
	case containsAny(eventStr, "stop", "power_off", "pause", "suspend", "shutdown"):
		return models.EventStop
	case strings.Contains(eventStr, "resize"):
		return models.EventResize
	case strings.Contains(eventStr, "attach") && !strings.Contains(eventStr, "detach"):
		return models.EventAttach
	case strings.Contains(eventStr, "detach"):
		return models.EventDetach
	case strings.Contains(eventStr, "allocate") && !strings.Contains(eventStr, "deallocate"):
		return models.EventAllocate
	case containsAny(eventStr, "release", "deallocate"):
		return models.EventRelease
	default:
		return models.EventUpdate
	}
}

func extractResourceID(raw map[string]interface{}) string {
	payload := payloadMap(raw)

	if fip, ok := payload["floatingip"].(map[string]interface{}); ok {
		if id := stringField(fip, "id"); id != "" {
			return id
		}
	}

	for _, key := range []string{"resource_id", "instance_id", "volume_id", "floatingip_id", "id"} {
		if v := stringField(raw, key); v != "" {
			return v
		}
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}

func extractUserID(raw map[string]interface{}) string {
	payload := payloadMap(raw)

	if fip, ok := payload["floatingip"].(map[string]interface{}); ok {
		for _, key := range []string{"tenant_id", "project_id", "user_id"} {
			if v := stringField(fip, key); v != "" {
				return v
			}
		}
	}

	for _, key := range []string{"user_id", "tenant_id", "project_id", "owner_id", "owner"} {
		if v := stringField(raw, key); v != "" {
			return v
		}
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}

// parseTimestamp accepts the upstream timestamp formats plus epoch seconds.
// An unparseable or missing timestamp falls back to the current UTC time so
// the event is still billable.
func parseTimestamp(v interface{}) time.Time {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC()
	case float64:
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	case int64:
		return time.Unix(ts, 0).UTC()
	case int:
		return time.Unix(int64(ts), 0).UTC()
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

func parseCompute(raw map[string]interface{}, eventType models.EventType) map[string]interface{} {
	payload := payloadOrSelf(raw)
	result := map[string]interface{}{}

	var flavorName string
	if flavor, ok := payload["flavor"]; ok {
		switch f := flavor.(type) {
		case map[string]interface{}:
			flavorName = stringField(f, "name")
			if flavorName == "" {
				flavorName = stringField(f, "id")
			}
		default:
			flavorName = fmt.Sprint(f)
		}
	} else if it := stringField(payload, "instance_type"); it != "" {
		flavorName = it
	}

	var state string
	if s := stringField(payload, "state"); s != "" {
		osState := strings.ToLower(s)
		if mapped, ok := openstackStateMap[osState]; ok {
			state = mapped
		} else {
			state = osState
		}
	} else {
		switch eventType {
		case models.EventCreate, models.EventStart:
			state = models.StateRunning
		case models.EventStop:
			state = models.StateStopped
		case models.EventDelete:
			state = models.StateDeleted
		}
	}

	if flavorName != "" {
		result["flavor"] = flavorName
	}
	if state != "" {
		result["state"] = state
	}
	return result
}

func parseDisk(raw map[string]interface{}, eventType models.EventType) map[string]interface{} {
	payload := payloadOrSelf(raw)
	result := map[string]interface{}{}

	if size, ok := intField(payload, "size"); ok {
		result["size_gb"] = size
	}

	if attachments, ok := payload["attachments"]; ok {
		var attachment map[string]interface{}
		switch a := attachments.(type) {
		case []interface{}:
			if len(a) > 0 {
				attachment, _ = a[0].(map[string]interface{})
			}
		case map[string]interface{}:
			attachment = a
		}
		if attachment != nil {
			if server := stringField(attachment, "server_id"); server != "" {
				result["attached_to"] = server
			} else if inst := stringField(attachment, "instance_id"); inst != "" {
				result["attached_to"] = inst
			}
		}
	} else if inst := stringField(payload, "instance_uuid"); inst != "" {
		result["attached_to"] = inst
	}

	var state string
	if status := strings.ToLower(stringField(payload, "status")); status != "" {
		switch status {
		case "in-use":
			state = models.StateAttached
		case "available":
			state = models.StateDetached
		case "deleted":
			state = models.StateDeleted
		}
	} else {
		switch eventType {
		case models.EventDelete:
			state = models.StateDeleted
		case models.EventAttach:
			state = models.StateAttached
		case models.EventDetach:
			state = models.StateDetached
		}
	}
	if state != "" {
		result["state"] = state
	}
	return result
}

func parseFloatingIP(raw map[string]interface{}) map[string]interface{} {
	payload := payloadOrSelf(raw)
	if fip, ok := payload["floatingip"].(map[string]interface{}); ok {
		payload = fip
	}

	result := map[string]interface{}{}

	for _, key := range []string{"floating_ip_address", "ip_address", "floating_ip", "address"} {
		if v := stringField(payload, key); v != "" {
			result["ip_address"] = v
			break
		}
	}

	if port := stringField(payload, "port_id"); port != "" {
		result["port_id"] = port
	}

	for _, key := range []string{"fixed_ip_address", "instance_id", "server_id"} {
		if _, ok := payload[key]; ok {
			if inst := stringField(payload, "instance_id"); inst != "" {
				result["attached_to"] = inst
			} else if server := stringField(payload, "server_id"); server != "" {
				result["attached_to"] = server
			}
			break
		}
	}

	return result
}

func payloadMap(raw map[string]interface{}) map[string]interface{} {
	if p, ok := raw["payload"].(map[string]interface{}); ok {
		return p
	}
	return map[string]interface{}{}
}

// payloadOrSelf falls back to the whole message for flat producers that
// don't nest fields under "payload".
func payloadOrSelf(raw map[string]interface{}) map[string]interface{} {
	if p, ok := raw["payload"].(map[string]interface{}); ok {
		return p
	}
	return raw
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprint(s)
	default:
		return fmt.Sprint(s)
	}
}

func intField(m map[string]interface{}, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstOf(m map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
