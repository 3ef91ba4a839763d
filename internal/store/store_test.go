package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

func TestNewEventIDPrefixes(t *testing.T) {
	for _, prefix := range []string{"evt", "evt_d", "evt_ip"} {
		id := newEventID(prefix)
		assert.True(t, strings.HasPrefix(id, prefix+"_"), "id %q", id)
		assert.Len(t, id, len(prefix)+1+8)
	}

	assert.NotEqual(t, newEventID("evt"), newEventID("evt"))
}

func TestCollectionFor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("maps resource types", func(mt *mtest.T) {
		s := New(mt.DB, logging.NewLogger())

		for _, rt := range []models.ResourceType{models.ResourceCompute, models.ResourceDisk, models.ResourceFloatingIP} {
			col, err := s.collectionFor(rt)
			require.NoError(mt, err)
			require.NotNil(mt, col)
		}

		_, err := s.collectionFor(models.ResourceType("bogus"))
		assert.Error(mt, err)
	})
}

func TestCreateCompute(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success seeds projection and create event", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s := New(mt.DB, logging.NewLogger())
		resource, err := s.CreateCompute(context.Background(), "vm-1", "user-1", "m1.small")
		require.NoError(mt, err)

		assert.Equal(mt, "vm-1", resource.ResourceID)
		assert.Equal(mt, models.StateRunning, resource.State)
		assert.Equal(mt, "m1.small", resource.CurrentFlavor)
		assert.Nil(mt, resource.DeletedAt)
		assert.True(mt, resource.LastBilledUntil.Equal(resource.CreatedAt))
		require.Len(mt, resource.Events, 1)
		assert.Equal(mt, "create", resource.Events[0].Type)
		assert.Equal(mt, "m1.small", resource.Events[0].Meta["flavor"])
	})

	mt.Run("empty flavor defaults", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		s := New(mt.DB, logging.NewLogger())
		resource, err := s.CreateCompute(context.Background(), "vm-2", "user-1", "")
		require.NoError(mt, err)
		assert.Equal(mt, "small", resource.CurrentFlavor)
	})

	mt.Run("duplicate resource id is conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		s := New(mt.DB, logging.NewLogger())
		_, err := s.CreateCompute(context.Background(), "vm-1", "user-1", "m1.small")
		assert.ErrorIs(mt, err, ErrConflict)
	})
}

func TestGetComputeNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "billing.compute_resources", mtest.FirstBatch))

		s := New(mt.DB, logging.NewLogger())
		_, err := s.GetCompute(context.Background(), "vm-404")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestDeleteComputeIdempotent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("second delete is a no-op", func(mt *mtest.T) {
		deletedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		doc := bson.D{
			{Key: "resource_id", Value: "vm-1"},
			{Key: "user_id", Value: "user-1"},
			{Key: "state", Value: "deleted"},
			{Key: "current_flavor", Value: "m1.small"},
			{Key: "created_at", Value: primitive.NewDateTimeFromTime(deletedAt.Add(-time.Hour))},
			{Key: "deleted_at", Value: primitive.NewDateTimeFromTime(deletedAt)},
			{Key: "last_billed_until", Value: primitive.NewDateTimeFromTime(deletedAt)},
			{Key: "events", Value: bson.A{}},
		}
		// Only the FindOne fires; no update follows.
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "billing.compute_resources", mtest.FirstBatch, doc))

		s := New(mt.DB, logging.NewLogger())
		resource, err := s.DeleteCompute(context.Background(), "vm-1")
		require.NoError(mt, err)
		assert.Equal(mt, models.StateDeleted, resource.State)
		require.NotNil(mt, resource.DeletedAt)
		assert.True(mt, resource.DeletedAt.Equal(deletedAt))
	})
}

func TestSetBillStatusImmutableWhenPaid(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("paid bill refuses transition", func(mt *mtest.T) {
		// UpdateOne matches nothing (paid=false filter), then GetBill finds
		// the settled bill.
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "billing.billing_cycles", mtest.FirstBatch, bson.D{
				{Key: "bill_id", Value: "bill_2026_01_10_user-1_abc123"},
				{Key: "user_id", Value: "user-1"},
				{Key: "status", Value: models.BillStatusSuccess},
				{Key: "paid", Value: true},
				{Key: "total", Value: "1"},
			}),
		)

		s := New(mt.DB, logging.NewLogger())
		err := s.SetBillStatus(context.Background(), "bill_2026_01_10_user-1_abc123", models.BillStatusSuccess, true)
		assert.ErrorIs(mt, err, ErrBillImmutable)
	})

	mt.Run("missing bill surfaces not found", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "billing.billing_cycles", mtest.FirstBatch),
		)

		s := New(mt.DB, logging.NewLogger())
		err := s.SetBillStatus(context.Background(), "bill_nope", models.BillStatusFailed, false)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}
