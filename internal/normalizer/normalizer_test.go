package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

func TestNormalizeComputeCreate(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"timestamp":  "2026-01-15T10:00:00Z",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
			"flavor":      map[string]interface{}{"name": "m1.small"},
			"state":       "active",
		},
	}

	event, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, models.ResourceCompute, event.ResourceType)
	assert.Equal(t, models.EventCreate, event.EventType)
	assert.Equal(t, "vm-1", event.ResourceID)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), event.Timestamp)
	assert.Equal(t, "m1.small", event.Payload["flavor"])
	assert.Equal(t, models.StateRunning, event.Payload["state"])
}

func TestNormalizeStateFolding(t *testing.T) {
	tests := []struct {
		upstream string
		want     string
	}{
		{"active", models.StateRunning},
		{"build", models.StateRunning},
		{"stopped", models.StateStopped},
		{"paused", models.StateStopped},
		{"suspended", models.StateStopped},
		{"shutoff", models.StateStopped},
		{"error", models.StateStopped},
		{"deleted", models.StateDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.upstream, func(t *testing.T) {
			raw := map[string]interface{}{
				"event_type": "compute.instance.update",
				"payload": map[string]interface{}{
					"instance_id": "vm-1",
					"user_id":     "user-1",
					"state":       tt.upstream,
				},
			}
			event, ok := Normalize(raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, event.Payload["state"])
		})
	}
}

func TestNormalizeEventTypeDetection(t *testing.T) {
	tests := []struct {
		eventType string
		want      models.EventType
	}{
		{"compute.instance.create.end", models.EventCreate},
		{"compute.instance.spawn", models.EventCreate},
		{"compute.instance.delete.start", models.EventDelete},
		{"compute.instance.terminate", models.EventDelete},
		{"compute.instance.power_on.end", models.EventStart},
		{"compute.instance.resume", models.EventStart},
		{"compute.instance.power_off.end", models.EventStop},
		{"compute.instance.shutdown.end", models.EventStop},
		{"compute.instance.resize.confirm.end", models.EventResize},
		{"volume.attach.end", models.EventAttach},
		{"volume.detach.end", models.EventDetach},
		{"floatingip.allocate", models.EventAllocate},
		{"floatingip.deallocate", models.EventRelease},
		{"compute.instance.whatever", models.EventUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			raw := map[string]interface{}{
				"event_type": tt.eventType,
				"payload": map[string]interface{}{
					"resource_id": "r-1",
					"user_id":     "user-1",
					"size":        float64(10),
					"floatingip":  map[string]interface{}{"id": "fip-1", "tenant_id": "user-1"},
					"instance_id": "vm-1",
				},
			}
			event, ok := Normalize(raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, event.EventType)
		})
	}
}

func TestNormalizeRoutingKeyFallback(t *testing.T) {
	raw := map[string]interface{}{
		"event_type":    "something.opaque",
		RoutingKeyField: "nova.notifications.info",
		"payload": map[string]interface{}{
			"resource_id": "vm-9",
			"user_id":     "user-2",
		},
	}

	event, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, models.ResourceCompute, event.ResourceType)
}

func TestNormalizePayloadShapeFallback(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "noise",
		"payload": map[string]interface{}{
			"volume_id": "vol-1",
			"user_id":   "user-1",
			"size":      float64(50),
			"status":    "in-use",
		},
	}

	event, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, models.ResourceDisk, event.ResourceType)
	assert.Equal(t, 50, event.Payload["size_gb"])
	assert.Equal(t, models.StateAttached, event.Payload["state"])
}

func TestNormalizeFloatingIPNested(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "floatingip.create.end",
		"payload": map[string]interface{}{
			"floatingip": map[string]interface{}{
				"id":                  "fip-1",
				"tenant_id":           "user-3",
				"floating_ip_address": "203.0.113.7",
				"port_id":             "port-1",
			},
		},
	}

	event, ok := Normalize(raw)
	require.True(t, ok)
	assert.Equal(t, models.ResourceFloatingIP, event.ResourceType)
	assert.Equal(t, "fip-1", event.ResourceID)
	assert.Equal(t, "user-3", event.UserID)
	assert.Equal(t, "203.0.113.7", event.Payload["ip_address"])
	assert.Equal(t, "port-1", event.Payload["port_id"])
}

func TestNormalizeMissingIdentifiers(t *testing.T) {
	t.Run("no user id", func(t *testing.T) {
		raw := map[string]interface{}{
			"event_type": "compute.instance.create",
			"payload":    map[string]interface{}{"instance_id": "vm-1"},
		}
		_, ok := Normalize(raw)
		assert.False(t, ok)
	})

	t.Run("no resource id", func(t *testing.T) {
		raw := map[string]interface{}{
			"event_type": "compute.instance.create",
			"payload":    map[string]interface{}{"user_id": "user-1"},
		}
		_, ok := Normalize(raw)
		assert.False(t, ok)
	})

	t.Run("unclassifiable", func(t *testing.T) {
		raw := map[string]interface{}{
			"event_type": "unrelated.audit.log",
			"payload":    map[string]interface{}{"id": "x", "user_id": "user-1"},
		}
		_, ok := Normalize(raw)
		assert.False(t, ok)
	})
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
	}{
		{"iso with Z", "2026-01-15T10:30:00Z"},
		{"iso fractional Z", "2026-01-15T10:30:00.000000Z"},
		{"iso bare", "2026-01-15T10:30:00"},
		{"space separated", "2026-01-15 10:30:00"},
		{"epoch seconds", float64(want.Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTimestamp(tt.value)
			assert.True(t, got.Equal(want), "got %v", got)
		})
	}

	t.Run("garbage falls back to now", func(t *testing.T) {
		got := parseTimestamp("not a timestamp")
		assert.WithinDuration(t, time.Now().UTC(), got, 5*time.Second)
	})
}

func TestNormalizeDefaultStateFromEventType(t *testing.T) {
	tests := []struct {
		eventType string
		wantState string
	}{
		{"compute.instance.create.end", models.StateRunning},
		{"compute.instance.power_on.end", models.StateRunning},
		{"compute.instance.power_off.end", models.StateStopped},
		{"compute.instance.delete.end", models.StateDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			raw := map[string]interface{}{
				"event_type": tt.eventType,
				"payload": map[string]interface{}{
					"instance_id": "vm-1",
					"user_id":     "user-1",
				},
			}
			event, ok := Normalize(raw)
			require.True(t, ok)
			assert.Equal(t, tt.wantState, event.Payload["state"])
		})
	}
}
