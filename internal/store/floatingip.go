package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// CreateFloatingIP inserts a floating IP document with its initial allocate
// event. A duplicate resource_id returns ErrConflict.
func (s *Store) CreateFloatingIP(ctx context.Context, resourceID, userID, ipAddress string, portID, attachedTo *string) (*models.FloatingIPResource, error) {
	now := nowUTC()
	resource := &models.FloatingIPResource{
		ResourceID:      resourceID,
		UserID:          userID,
		IPAddress:       ipAddress,
		PortID:          portID,
		AttachedTo:      attachedTo,
		CreatedAt:       now,
		LastBilledUntil: now,
		Events: []models.EventEntry{{
			EventID: newEventID("evt_ip"),
			Time:    now,
			Type:    string(models.EventAllocate),
		}},
	}

	if _, err := s.floatingIPs.InsertOne(ctx, resource); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"resource_id": resourceID,
		"user_id":     userID,
		"ip_address":  ipAddress,
	}).Info("Floating IP registered")

	return resource, nil
}

// GetFloatingIP fetches one floating IP document
func (s *Store) GetFloatingIP(ctx context.Context, resourceID string) (*models.FloatingIPResource, error) {
	var resource models.FloatingIPResource
	err := s.floatingIPs.FindOne(ctx, bson.M{"resource_id": resourceID}).Decode(&resource)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// GetUserFloatingIPs lists a user's floating IPs, optionally including
// released ones
func (s *Store) GetUserFloatingIPs(ctx context.Context, userID string, includeReleased bool) ([]models.FloatingIPResource, error) {
	filter := bson.M{"user_id": userID}
	if !includeReleased {
		filter["released_at"] = nil
	}

	cursor, err := s.floatingIPs.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resources []models.FloatingIPResource
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// UpdateFloatingIP applies a port or attachment change
func (s *Store) UpdateFloatingIP(ctx context.Context, resourceID string, portID, attachedTo *string) (*models.FloatingIPResource, error) {
	current, err := s.GetFloatingIP(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	updates := bson.M{}
	event := models.EventEntry{
		EventID: newEventID("evt_ip"),
		Time:    now,
	}

	if portID != nil {
		updates["port_id"] = *portID
	}
	if attachedTo != nil {
		if *attachedTo != "" {
			updates["attached_to"] = *attachedTo
			event.Type = string(models.EventAttach)
		} else {
			updates["attached_to"] = nil
			event.Type = string(models.EventDetach)
		}
	}

	if len(updates) == 0 {
		return current, nil
	}
	if event.Type == "" {
		event.Type = string(models.EventUpdate)
	}

	_, err = s.floatingIPs.UpdateOne(ctx,
		bson.M{"resource_id": resourceID},
		bson.M{"$set": updates, "$push": bson.M{"events": event}},
	)
	if err != nil {
		return nil, err
	}

	return s.GetFloatingIP(ctx, resourceID)
}

// ReleaseFloatingIP sets released_at and appends a release event. Releasing
// an already-released IP is a no-op success.
func (s *Store) ReleaseFloatingIP(ctx context.Context, resourceID string) (*models.FloatingIPResource, error) {
	current, err := s.GetFloatingIP(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if current.ReleasedAt != nil {
		return current, nil
	}

	now := nowUTC()
	event := models.EventEntry{
		EventID: newEventID("evt_ip"),
		Time:    now,
		Type:    string(models.EventRelease),
	}

	_, err = s.floatingIPs.UpdateOne(ctx,
		bson.M{"resource_id": resourceID},
		bson.M{"$set": bson.M{"released_at": now}, "$push": bson.M{"events": event}},
	)
	if err != nil {
		return nil, err
	}

	return s.GetFloatingIP(ctx, resourceID)
}
