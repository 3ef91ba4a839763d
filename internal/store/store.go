// Package store persists resource state and bills. Each resource document
// carries a current projection plus an append-only event log; every mutation
// updates both in a single write.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

var (
	// ErrNotFound means the resource id has no document
	ErrNotFound = errors.New("resource not found")
	// ErrConflict means a create hit an existing resource id; callers treat
	// this as success under at-least-once replay
	ErrConflict = errors.New("resource already exists")
)

// Collection names
const (
	ComputeCollection    = "compute_resources"
	DiskCollection       = "disk_resources"
	FloatingIPCollection = "floating_ip_resources"
	BillCollection       = "billing_cycles"
)

// Store is the Mongo-backed resource and bill store
type Store struct {
	computes    *mongo.Collection
	disks       *mongo.Collection
	floatingIPs *mongo.Collection
	bills       *mongo.Collection
	logger      logging.Logger
}

// New creates a Store over db
func New(db *mongo.Database, logger logging.Logger) *Store {
	return &Store{
		computes:    db.Collection(ComputeCollection),
		disks:       db.Collection(DiskCollection),
		floatingIPs: db.Collection(FloatingIPCollection),
		bills:       db.Collection(BillCollection),
		logger:      logger,
	}
}

// EnsureIndexes creates the unique resource_id indexes that back create
// idempotence, plus the bill lookups.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	resourceIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "resource_id", Value: 1}},
		Options: unique,
	}
	userIdx := mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	}

	for _, col := range []*mongo.Collection{s.computes, s.disks, s.floatingIPs} {
		if _, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{resourceIdx, userIdx}); err != nil {
			return err
		}
	}

	billIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "bill_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "generated_at", Value: -1}}},
	}
	_, err := s.bills.Indexes().CreateMany(ctx, billIdx)
	return err
}

// newEventID returns a fresh short event id with the given prefix
// (evt for compute, evt_d for disk, evt_ip for floating IPs).
func newEventID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
