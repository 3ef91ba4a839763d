package consumer

import (
	"context"
	"encoding/json"

	"github.com/bhaijames252-sketch/billbillbill/internal/normalizer"
	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	billingclient "github.com/bhaijames252-sketch/billbillbill/pkg/clients/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// Disposition tells the consumer what to do with a delivery once the
// handler is done with it.
type Disposition int

const (
	// DispositionAck removes the message from the queue.
	DispositionAck Disposition = iota
	// DispositionReject dead-letters the message; it is unprocessable and
	// retrying will not help.
	DispositionReject
	// DispositionRequeue returns the message for another delivery attempt.
	DispositionRequeue
)

func (d Disposition) String() string {
	switch d {
	case DispositionAck:
		return "ack"
	case DispositionReject:
		return "reject"
	default:
		return "requeue"
	}
}

// API is the slice of the billing client the handler needs
type API interface {
	CreateCompute(ctx context.Context, req *api.ComputeCreateRequest) billingclient.Result
	UpdateCompute(ctx context.Context, resourceID string, req *api.ComputeUpdateRequest) billingclient.Result
	DeleteCompute(ctx context.Context, resourceID string) billingclient.Result
	CreateDisk(ctx context.Context, req *api.DiskCreateRequest) billingclient.Result
	UpdateDisk(ctx context.Context, resourceID string, req *api.DiskUpdateRequest) billingclient.Result
	DeleteDisk(ctx context.Context, resourceID string) billingclient.Result
	CreateFloatingIP(ctx context.Context, req *api.FloatingIPCreateRequest) billingclient.Result
	ReleaseFloatingIP(ctx context.Context, resourceID string) billingclient.Result
	EnsureWallet(ctx context.Context, userID string) billingclient.Result
}

// Handler turns raw queue payloads into billing API calls
type Handler struct {
	api        API
	skipWallet bool
	logger     logging.Logger
	metrics    *Metrics
}

// NewHandler creates an event handler. When skipWallet is false the handler
// makes a best-effort wallet check before each resource operation.
func NewHandler(client API, skipWallet bool, logger logging.Logger, metrics *Metrics) *Handler {
	return &Handler{
		api:        client,
		skipWallet: skipWallet,
		logger:     logger,
		metrics:    metrics,
	}
}

// HandleRaw decodes, normalizes, and dispatches one queue message.
// routingKey is threaded into the raw message so the normalizer can use it
// as a classification fallback.
func (h *Handler) HandleRaw(ctx context.Context, body []byte, routingKey string) Disposition {
	h.metrics.recvd()

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		h.logger.WithError(err).Warn("Dropping undecodable message")
		h.metrics.reject()
		return DispositionReject
	}
	if routingKey != "" {
		raw[normalizer.RoutingKeyField] = routingKey
	}

	event, ok := normalizer.Normalize(raw)
	if !ok {
		h.logger.WithField("routing_key", routingKey).Warn("Dropping unclassifiable message")
		h.metrics.reject()
		return DispositionReject
	}

	return h.Handle(ctx, event)
}

// Handle dispatches a normalized event to the billing API and maps the
// outcome to a queue disposition. Success and conflict are terminal;
// everything else goes back for redelivery.
func (h *Handler) Handle(ctx context.Context, event *models.Event) Disposition {
	log := h.logger.WithFields(logging.Fields{
		"resource_type": event.ResourceType,
		"event_type":    event.EventType,
		"resource_id":   event.ResourceID,
		"user_id":       event.UserID,
	})

	if !h.skipWallet {
		// Best effort: a wallet failure must not block resource tracking.
		if res := h.api.EnsureWallet(ctx, event.UserID); !res.Terminal() {
			log.WithError(res.Err).Warn("Wallet check failed; continuing")
		}
	}

	var res billingclient.Result
	switch event.ResourceType {
	case models.ResourceCompute:
		res = h.handleCompute(ctx, event)
	case models.ResourceDisk:
		res = h.handleDisk(ctx, event)
	case models.ResourceFloatingIP:
		res = h.handleFloatingIP(ctx, event)
	default:
		log.Warn("Dropping event with unknown resource type")
		h.metrics.reject()
		return DispositionReject
	}

	h.metrics.done(string(event.ResourceType), string(event.EventType), res.Outcome.String())
	if res.Terminal() {
		log.WithField("outcome", res.Outcome.String()).Debug("Event processed")
		return DispositionAck
	}

	h.metrics.fail(string(event.ResourceType))
	h.metrics.requeue()
	log.WithError(res.Err).WithField("status", res.StatusCode).Warn("Event processing failed; requeueing")
	return DispositionRequeue
}

func (h *Handler) handleCompute(ctx context.Context, event *models.Event) billingclient.Result {
	switch event.EventType {
	case models.EventCreate:
		return h.api.CreateCompute(ctx, &api.ComputeCreateRequest{
			ResourceID: event.ResourceID,
			UserID:     event.UserID,
			Flavor:     event.PayloadString("flavor", "small"),
		})
	case models.EventDelete:
		return h.api.DeleteCompute(ctx, event.ResourceID)
	case models.EventResize:
		patch := &api.ComputeUpdateRequest{}
		if flavor := event.PayloadString("flavor", ""); flavor != "" {
			patch.Flavor = &flavor
		}
		return h.api.UpdateCompute(ctx, event.ResourceID, patch)
	case models.EventStart, models.EventStop, models.EventUpdate:
		patch := &api.ComputeUpdateRequest{}
		if state := event.PayloadString("state", ""); state != "" {
			patch.State = &state
		}
		return h.api.UpdateCompute(ctx, event.ResourceID, patch)
	default:
		patch := &api.ComputeUpdateRequest{}
		if state := event.PayloadString("state", ""); state != "" {
			patch.State = &state
		}
		if flavor := event.PayloadString("flavor", ""); flavor != "" {
			patch.Flavor = &flavor
		}
		return h.api.UpdateCompute(ctx, event.ResourceID, patch)
	}
}

func (h *Handler) handleDisk(ctx context.Context, event *models.Event) billingclient.Result {
	switch event.EventType {
	case models.EventCreate:
		req := &api.DiskCreateRequest{
			ResourceID: event.ResourceID,
			UserID:     event.UserID,
			SizeGB:     event.PayloadInt("size_gb", 10),
		}
		if attached := event.PayloadString("attached_to", ""); attached != "" {
			req.AttachedTo = &attached
		}
		return h.api.CreateDisk(ctx, req)
	case models.EventDelete:
		return h.api.DeleteDisk(ctx, event.ResourceID)
	case models.EventResize:
		patch := &api.DiskUpdateRequest{}
		if size := event.PayloadInt("size_gb", 0); size > 0 {
			patch.SizeGB = &size
		}
		return h.api.UpdateDisk(ctx, event.ResourceID, patch)
	case models.EventAttach, models.EventDetach:
		// Attachment does not affect the billed price.
		return billingclient.Result{Outcome: billingclient.OutcomeSuccess}
	default:
		patch := &api.DiskUpdateRequest{}
		if size := event.PayloadInt("size_gb", 0); size > 0 {
			patch.SizeGB = &size
		}
		if state := event.PayloadString("state", ""); state != "" {
			patch.State = &state
		}
		return h.api.UpdateDisk(ctx, event.ResourceID, patch)
	}
}

func (h *Handler) handleFloatingIP(ctx context.Context, event *models.Event) billingclient.Result {
	switch event.EventType {
	case models.EventCreate, models.EventAllocate:
		req := &api.FloatingIPCreateRequest{
			ResourceID: event.ResourceID,
			UserID:     event.UserID,
			IPAddress:  event.PayloadString("ip_address", "0.0.0.0"),
		}
		if port := event.PayloadString("port_id", ""); port != "" {
			req.PortID = &port
		}
		if attached := event.PayloadString("attached_to", ""); attached != "" {
			req.AttachedTo = &attached
		}
		return h.api.CreateFloatingIP(ctx, req)
	case models.EventDelete, models.EventRelease:
		return h.api.ReleaseFloatingIP(ctx, event.ResourceID)
	default:
		// Association changes do not affect the flat hourly price.
		return billingclient.Result{Outcome: billingclient.OutcomeSuccess}
	}
}
