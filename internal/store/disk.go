package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// CreateDisk inserts a disk document with its initial create event.
// A duplicate resource_id returns ErrConflict.
func (s *Store) CreateDisk(ctx context.Context, resourceID, userID string, sizeGB int, attachedTo *string) (*models.DiskResource, error) {
	now := nowUTC()
	state := models.StateDetached
	if attachedTo != nil && *attachedTo != "" {
		state = models.StateAttached
	}

	resource := &models.DiskResource{
		ResourceID:      resourceID,
		UserID:          userID,
		SizeGB:          sizeGB,
		State:           state,
		AttachedTo:      attachedTo,
		CreatedAt:       now,
		LastBilledUntil: now,
		Events: []models.EventEntry{{
			EventID: newEventID("evt_d"),
			Time:    now,
			Type:    string(models.EventCreate),
			Meta:    map[string]interface{}{"size_gb": sizeGB},
		}},
	}

	if _, err := s.disks.InsertOne(ctx, resource); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"resource_id": resourceID,
		"user_id":     userID,
		"size_gb":     sizeGB,
	}).Info("Disk resource registered")

	return resource, nil
}

// GetDisk fetches one disk document
func (s *Store) GetDisk(ctx context.Context, resourceID string) (*models.DiskResource, error) {
	var resource models.DiskResource
	err := s.disks.FindOne(ctx, bson.M{"resource_id": resourceID}).Decode(&resource)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// GetUserDisks lists a user's disks, optionally including soft-deleted ones
func (s *Store) GetUserDisks(ctx context.Context, userID string, includeDeleted bool) ([]models.DiskResource, error) {
	filter := bson.M{"user_id": userID}
	if !includeDeleted {
		filter["deleted_at"] = nil
	}

	cursor, err := s.disks.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resources []models.DiskResource
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// UpdateDisk applies a state, size, or attachment change. A size change
// records a resize event with meta.size_gb; attach/detach events are recorded
// but carry no billing weight (disks bill on size alone).
func (s *Store) UpdateDisk(ctx context.Context, resourceID string, state *string, sizeGB *int, attachedTo *string) (*models.DiskResource, error) {
	current, err := s.GetDisk(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	updates := bson.M{}
	event := models.EventEntry{
		EventID: newEventID("evt_d"),
		Time:    now,
	}

	if state != nil && *state != "" {
		if *state == models.StateDeleted && current.DeletedAt != nil {
			return current, nil
		}
		updates["state"] = *state
		event.Type = *state
		if *state == models.StateDeleted {
			updates["deleted_at"] = now
		}
	}

	if sizeGB != nil && *sizeGB > 0 {
		updates["size_gb"] = *sizeGB
		event.Type = string(models.EventResize)
		event.Meta = map[string]interface{}{"size_gb": *sizeGB}
	}

	if attachedTo != nil {
		if *attachedTo != "" {
			updates["attached_to"] = *attachedTo
			updates["state"] = models.StateAttached
			event.Type = string(models.EventAttach)
		} else {
			updates["attached_to"] = nil
			updates["state"] = models.StateDetached
			event.Type = string(models.EventDetach)
		}
	}

	if len(updates) == 0 {
		return current, nil
	}

	_, err = s.disks.UpdateOne(ctx,
		bson.M{"resource_id": resourceID},
		bson.M{"$set": updates, "$push": bson.M{"events": event}},
	)
	if err != nil {
		return nil, err
	}

	return s.GetDisk(ctx, resourceID)
}

// DeleteDisk soft-deletes a disk
func (s *Store) DeleteDisk(ctx context.Context, resourceID string) (*models.DiskResource, error) {
	deleted := models.StateDeleted
	return s.UpdateDisk(ctx, resourceID, &deleted, nil, nil)
}
