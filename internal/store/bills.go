package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// ErrBillImmutable means an update targeted a bill already settled as
// success/paid
var ErrBillImmutable = errors.New("bill already paid")

// InsertBill persists a new bill document
func (s *Store) InsertBill(ctx context.Context, bill *models.Bill) error {
	if _, err := s.bills.InsertOne(ctx, bill); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetBill fetches one bill by id
func (s *Store) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	var bill models.Bill
	err := s.bills.FindOne(ctx, bson.M{"bill_id": billID}).Decode(&bill)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// GetUserBills lists a user's bills, newest first
func (s *Store) GetUserBills(ctx context.Context, userID string) ([]models.Bill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: -1}})
	cursor, err := s.bills.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bills []models.Bill
	if err := cursor.All(ctx, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// SetBillStatus transitions a bill's status/paid flags. Paid bills are
// immutable; the filter excludes them so a concurrent retry cannot
// double-settle.
func (s *Store) SetBillStatus(ctx context.Context, billID, status string, paid bool) error {
	result, err := s.bills.UpdateOne(ctx,
		bson.M{"bill_id": billID, "paid": false},
		bson.M{"$set": bson.M{"status": status, "paid": paid}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Either missing or already paid; disambiguate for the caller.
		if _, getErr := s.GetBill(ctx, billID); getErr != nil {
			return getErr
		}
		return ErrBillImmutable
	}
	return nil
}
