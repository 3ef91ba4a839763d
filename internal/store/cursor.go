package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

func (s *Store) collectionFor(resourceType models.ResourceType) (*mongo.Collection, error) {
	switch resourceType {
	case models.ResourceCompute:
		return s.computes, nil
	case models.ResourceDisk:
		return s.disks, nil
	case models.ResourceFloatingIP:
		return s.floatingIPs, nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
}

// UpdateLastBilled advances a resource's billing cursor. $max keeps the
// cursor monotonic non-decreasing even under concurrent billing runs.
func (s *Store) UpdateLastBilled(ctx context.Context, resourceType models.ResourceType, resourceID string, billedUntil time.Time) error {
	col, err := s.collectionFor(resourceType)
	if err != nil {
		return err
	}

	result, err := col.UpdateOne(ctx,
		bson.M{"resource_id": resourceID},
		bson.M{"$max": bson.M{"last_billed_until": billedUntil.UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
