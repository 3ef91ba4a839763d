package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

func lockedRow(balance string, allowNegative bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "archival_id", "balance", "allow_negative"}).
		AddRow("wallet-uuid", "abc123def456", balance, allowNegative)
}

func TestDebitInsufficientBalance(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("non-negative wallet rejects overdraft", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, archival_id, balance, allow_negative").
			WithArgs("user-1").
			WillReturnRows(lockedRow("0.5", false))
		mock.ExpectRollback()

		ledger := New(db, mt.DB, logging.NewLogger())
		_, err = ledger.Debit(context.Background(), "user-1", decimal.NewFromInt(1), "Billing cycle: bill_x", "")
		assert.ErrorIs(mt, err, ErrInsufficientBalance)
		assert.NoError(mt, mock.ExpectationsWereMet())
	})

	mt.Run("allow_negative wallet overdrafts", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		mt.AddMockResponses(mtest.CreateSuccessResponse())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, archival_id, balance, allow_negative").
			WithArgs("user-1").
			WillReturnRows(lockedRow("0.5", true))
		mock.ExpectExec("UPDATE user_wallets").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ledger := New(db, mt.DB, logging.NewLogger())
		tx, err := ledger.Debit(context.Background(), "user-1", decimal.NewFromInt(1), "Billing cycle: bill_x", "2026-01-15_v1")
		require.NoError(mt, err)
		assert.Equal(mt, "-1", tx.Amount)
		assert.Equal(mt, "-0.5", tx.BalanceAfter)
		assert.Equal(mt, models.TxDebit, tx.Type)
		assert.Equal(mt, "2026-01-15_v1", tx.PriceVersion)
		assert.NoError(mt, mock.ExpectationsWereMet())
	})
}

func TestCreditAppendsArchiveEntry(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("credit updates balance and archive", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		mt.AddMockResponses(mtest.CreateSuccessResponse())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, archival_id, balance, allow_negative").
			WithArgs("user-1").
			WillReturnRows(lockedRow("9", false))
		mock.ExpectExec("UPDATE user_wallets").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ledger := New(db, mt.DB, logging.NewLogger())
		tx, err := ledger.Credit(context.Background(), "user-1", decimal.RequireFromString("1.5"), "Top-up")
		require.NoError(mt, err)
		assert.Equal(mt, "1.5", tx.Amount)
		assert.Equal(mt, "10.5", tx.BalanceAfter)
		assert.Equal(mt, models.TxCredit, tx.Type)
		assert.True(mt, len(tx.TxID) == len("tx_")+12)
		assert.NoError(mt, mock.ExpectationsWereMet())
	})
}

func TestApplyRollsBackWhenArchiveFails(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("archive append failure rolls the balance back", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Message: "interrupted at shutdown",
			Name:    "InterruptedAtShutdown",
		}))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, archival_id, balance, allow_negative").
			WithArgs("user-1").
			WillReturnRows(lockedRow("9", false))
		mock.ExpectExec("UPDATE user_wallets").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		ledger := New(db, mt.DB, logging.NewLogger())
		_, err = ledger.Credit(context.Background(), "user-1", decimal.NewFromInt(1), "Top-up")
		assert.Error(mt, err)
		assert.NoError(mt, mock.ExpectationsWereMet())
	})
}

func TestApplyCompensatesArchiveOnCommitFailure(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("commit failure pulls the archived entry back out", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		// First response acknowledges the $push, second the compensating $pull.
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, archival_id, balance, allow_negative").
			WithArgs("user-1").
			WillReturnRows(lockedRow("9", false))
		mock.ExpectExec("UPDATE user_wallets").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("broken pipe"))

		ledger := New(db, mt.DB, logging.NewLogger())
		_, err = ledger.Credit(context.Background(), "user-1", decimal.NewFromInt(1), "Top-up")
		assert.Error(mt, err)
		assert.NoError(mt, mock.ExpectationsWereMet())

		var pulled bool
		for _, evt := range mt.GetAllStartedEvents() {
			if strings.Contains(evt.Command.String(), "$pull") {
				pulled = true
			}
		}
		assert.True(mt, pulled, "commit failure must remove the archived entry")
	})
}

func TestGetWalletNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing wallet", func(mt *mtest.T) {
		db, mock, err := sqlmock.New()
		require.NoError(mt, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM user_wallets").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "currency", "auto_recharge", "allow_negative", "last_deducted_at", "archival_id", "created_at", "updated_at"}))

		ledger := New(db, mt.DB, logging.NewLogger())
		_, err = ledger.Get(context.Background(), "ghost")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestArchiveChainInvariant(t *testing.T) {
	// Consecutive archive entries must chain:
	// balance_after[i] = balance_after[i-1] + amount[i].
	balance := decimal.Zero
	var entries []models.Transaction
	apply := func(delta decimal.Decimal, txType string) {
		balance = balance.Add(delta)
		entries = append(entries, models.Transaction{
			Amount:       models.FormatAmount(delta),
			BalanceAfter: models.FormatAmount(balance),
			Type:         txType,
		})
	}

	apply(decimal.RequireFromString("10"), models.TxCredit)
	apply(decimal.RequireFromString("-1.25"), models.TxDebit)
	apply(decimal.RequireFromString("-0.000001"), models.TxDebit)
	apply(decimal.RequireFromString("2.5"), models.TxCredit)

	prev := decimal.Zero
	for i, e := range entries {
		amount := decimal.RequireFromString(e.Amount)
		after := decimal.RequireFromString(e.BalanceAfter)
		assert.True(t, prev.Add(amount).Equal(after), "entry %d breaks the chain", i)
		prev = after
	}
}
