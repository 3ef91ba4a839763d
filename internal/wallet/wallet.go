// Package wallet implements the balance ledger: a relational wallet row per
// user plus a document-side transaction archive. The wallet row is the
// commit point; the archive append happens inside the same SQL transaction
// window and a failed append rolls the balance change back.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

var (
	// ErrNotFound means the user has no wallet
	ErrNotFound = errors.New("wallet not found")
	// ErrConflict means the user already has a wallet
	ErrConflict = errors.New("wallet already exists")
	// ErrInsufficientBalance means a debit exceeded the balance of a
	// non-negative wallet; no state was changed
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// ArchiveCollection holds one transaction document per wallet
const ArchiveCollection = "transaction_archives"

// Ledger is the wallet store
type Ledger struct {
	db       *sql.DB
	archives *mongo.Collection
	logger   logging.Logger
}

// New creates a Ledger over the SQL handle and Mongo database
func New(db *sql.DB, mongoDB *mongo.Database, logger logging.Logger) *Ledger {
	return &Ledger{
		db:       db,
		archives: mongoDB.Collection(ArchiveCollection),
		logger:   logger,
	}
}

func newTxID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "tx_" + hex[:12]
}

func newArchivalID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:12]
}

// Create opens a wallet with an optional starting balance. The starting
// balance is archived as an initial credit.
func (l *Ledger) Create(ctx context.Context, userID string, balance decimal.Decimal, currency string, autoRecharge, allowNegative bool) (*models.Wallet, error) {
	if currency == "" {
		currency = billing.DefaultCurrency()
	}

	archivalID := newArchivalID()
	now := time.Now().UTC()
	wallet := &models.Wallet{
		ID:            uuid.NewString(),
		UserID:        userID,
		Balance:       balance,
		Currency:      currency,
		AutoRecharge:  autoRecharge,
		AllowNegative: allowNegative,
		ArchivalID:    archivalID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO user_wallets (id, user_id, balance, currency, auto_recharge, allow_negative, archival_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, wallet.ID, userID, balance.String(), currency, autoRecharge, allowNegative, archivalID, now, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, err
	}

	archive := models.TransactionArchive{
		ID:           archivalID,
		UserID:       userID,
		Transactions: []models.Transaction{},
	}
	if balance.IsPositive() {
		archive.Transactions = append(archive.Transactions, models.Transaction{
			TxID:         newTxID(),
			Time:         now,
			Amount:       models.FormatAmount(balance),
			BalanceAfter: models.FormatAmount(balance),
			Type:         models.TxCredit,
			Reason:       "Initial Balance",
		})
	}
	if _, err := l.archives.InsertOne(ctx, archive); err != nil {
		// The wallet row exists but the archive doesn't; drop the row so
		// the caller can retry cleanly.
		_, _ = l.db.ExecContext(ctx, `DELETE FROM user_wallets WHERE id = $1`, wallet.ID)
		return nil, err
	}

	l.logger.WithFields(logging.Fields{
		"user_id":     userID,
		"currency":    currency,
		"archival_id": archivalID,
	}).Info("Wallet created")

	return wallet, nil
}

const walletColumns = `id, user_id, balance, currency, auto_recharge, allow_negative, last_deducted_at, archival_id, created_at, updated_at`

func scanWallet(row *sql.Row) (*models.Wallet, error) {
	var w models.Wallet
	var balance string
	err := row.Scan(&w.ID, &w.UserID, &balance, &w.Currency, &w.AutoRecharge, &w.AllowNegative,
		&w.LastDeductedAt, &w.ArchivalID, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Get fetches a user's wallet
func (l *Ledger) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM user_wallets
		WHERE user_id = $1
	`, userID)
	return scanWallet(row)
}

// Update patches wallet settings (currency, auto_recharge, allow_negative)
func (l *Ledger) Update(ctx context.Context, userID string, autoRecharge, allowNegative *bool, currency *string) (*models.Wallet, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{userID}
	appendSet := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if autoRecharge != nil {
		appendSet("auto_recharge", *autoRecharge)
	}
	if allowNegative != nil {
		appendSet("allow_negative", *allowNegative)
	}
	if currency != nil {
		appendSet("currency", *currency)
	}

	result, err := l.db.ExecContext(ctx, `
		UPDATE user_wallets SET `+strings.Join(sets, ", ")+`
		WHERE user_id = $1
	`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return l.Get(ctx, userID)
}

// Credit adds amount to the balance and archives the transaction
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	return l.apply(ctx, userID, amount, models.TxCredit, reason, "")
}

// Debit subtracts amount from the balance and archives the transaction.
// A non-negative wallet rejects debits exceeding the balance with
// ErrInsufficientBalance and no state change.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason, priceVersion string) (*models.Transaction, error) {
	return l.apply(ctx, userID, amount.Neg(), models.TxDebit, reason, priceVersion)
}

// apply runs the read-modify-write under a row lock. The signed delta is
// positive for credits, negative for debits.
func (l *Ledger) apply(ctx context.Context, userID string, delta decimal.Decimal, txType, reason, priceVersion string) (*models.Transaction, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id, archivalID, balanceStr string
	var allowNegative bool
	err = tx.QueryRowContext(ctx, `
		SELECT id, archival_id, balance, allow_negative
		FROM user_wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&id, &archivalID, &balanceStr, &allowNegative)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, err
	}

	if txType == models.TxDebit && !allowNegative && balance.Add(delta).IsNegative() {
		return nil, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	balanceAfter := balance.Add(delta)

	if txType == models.TxDebit {
		_, err = tx.ExecContext(ctx, `
			UPDATE user_wallets
			SET balance = $2, last_deducted_at = $3, updated_at = $3
			WHERE id = $1
		`, id, balanceAfter.String(), now)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE user_wallets
			SET balance = $2, updated_at = $3
			WHERE id = $1
		`, id, balanceAfter.String(), now)
	}
	if err != nil {
		return nil, err
	}

	record := models.Transaction{
		TxID:         newTxID(),
		Time:         now,
		Amount:       models.FormatAmount(delta),
		BalanceAfter: models.FormatAmount(balanceAfter),
		Type:         txType,
		Reason:       reason,
		PriceVersion: priceVersion,
	}

	// Archive before commit: a failed append rolls the balance change back.
	_, err = l.archives.UpdateOne(ctx,
		bson.M{"_id": archivalID},
		bson.M{"$push": bson.M{"transactions": record}},
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		// The balance change is lost; take the archived entry back out so
		// the chain stays anchored to the committed balance.
		if _, pullErr := l.archives.UpdateOne(ctx,
			bson.M{"_id": archivalID},
			bson.M{"$pull": bson.M{"transactions": bson.M{"tx_id": record.TxID}}},
		); pullErr != nil {
			l.logger.WithFields(logging.Fields{
				"user_id": userID,
				"tx_id":   record.TxID,
				"error":   pullErr.Error(),
			}).Error("Commit failed and archive entry could not be removed")
		}
		return nil, err
	}

	l.logger.WithFields(logging.Fields{
		"user_id": userID,
		"type":    txType,
		"amount":  record.Amount,
		"tx_id":   record.TxID,
	}).Info("Wallet transaction applied")

	return &record, nil
}

// History returns the wallet's archived transactions in order
func (l *Ledger) History(ctx context.Context, userID string) (*models.TransactionArchive, error) {
	wallet, err := l.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var archive models.TransactionArchive
	err = l.archives.FindOne(ctx, bson.M{"_id": wallet.ArchivalID}).Decode(&archive)
	if err == mongo.ErrNoDocuments {
		return &models.TransactionArchive{ID: wallet.ArchivalID, UserID: userID, Transactions: []models.Transaction{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &archive, nil
}
