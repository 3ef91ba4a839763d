package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// CreateCompute inserts a compute document with its initial create event.
// A duplicate resource_id returns ErrConflict.
func (s *Store) CreateCompute(ctx context.Context, resourceID, userID, flavor string) (*models.ComputeResource, error) {
	if flavor == "" {
		flavor = "small"
	}
	now := nowUTC()
	resource := &models.ComputeResource{
		ResourceID:      resourceID,
		UserID:          userID,
		State:           models.StateRunning,
		CurrentFlavor:   flavor,
		CreatedAt:       now,
		LastBilledUntil: now,
		Events: []models.EventEntry{{
			EventID: newEventID("evt"),
			Time:    now,
			Type:    string(models.EventCreate),
			Meta:    map[string]interface{}{"flavor": flavor},
		}},
	}

	if _, err := s.computes.InsertOne(ctx, resource); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"resource_id": resourceID,
		"user_id":     userID,
		"flavor":      flavor,
	}).Info("Compute resource registered")

	return resource, nil
}

// GetCompute fetches one compute document
func (s *Store) GetCompute(ctx context.Context, resourceID string) (*models.ComputeResource, error) {
	var resource models.ComputeResource
	err := s.computes.FindOne(ctx, bson.M{"resource_id": resourceID}).Decode(&resource)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// GetUserComputes lists a user's compute resources. Soft-deleted resources
// are included only when includeDeleted is set; billing needs them to charge
// partial periods.
func (s *Store) GetUserComputes(ctx context.Context, userID string, includeDeleted bool) ([]models.ComputeResource, error) {
	filter := bson.M{"user_id": userID}
	if !includeDeleted {
		filter["deleted_at"] = nil
	}

	cursor, err := s.computes.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resources []models.ComputeResource
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// UpdateCompute applies a state and/or flavor change, appending the matching
// event. state=deleted sets deleted_at; a flavor change records a resize.
// Deleting an already-deleted resource is a no-op success.
func (s *Store) UpdateCompute(ctx context.Context, resourceID string, state, flavor *string) (*models.ComputeResource, error) {
	current, err := s.GetCompute(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	updates := bson.M{}
	event := models.EventEntry{
		EventID: newEventID("evt"),
		Time:    now,
	}

	if state != nil && *state != "" {
		if *state == models.StateDeleted && current.DeletedAt != nil {
			// deleted_at is monotonic; replays land here
			return current, nil
		}
		updates["state"] = *state
		event.Type = *state
		if *state == models.StateDeleted {
			updates["deleted_at"] = now
		}
	}

	if flavor != nil && *flavor != "" {
		updates["current_flavor"] = *flavor
		event.Type = string(models.EventResize)
		event.Meta = map[string]interface{}{"flavor": *flavor}
	}

	if len(updates) == 0 {
		return current, nil
	}

	_, err = s.computes.UpdateOne(ctx,
		bson.M{"resource_id": resourceID},
		bson.M{"$set": updates, "$push": bson.M{"events": event}},
	)
	if err != nil {
		return nil, err
	}

	return s.GetCompute(ctx, resourceID)
}

// DeleteCompute soft-deletes a compute resource
func (s *Store) DeleteCompute(ctx context.Context, resourceID string) (*models.ComputeResource, error) {
	deleted := models.StateDeleted
	return s.UpdateCompute(ctx, resourceID, &deleted, nil)
}
