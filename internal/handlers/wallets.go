package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bhaijames252-sketch/billbillbill/internal/wallet"
	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	pkgbilling "github.com/bhaijames252-sketch/billbillbill/pkg/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/middleware"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// CreateWallet opens a wallet for a user. One wallet per user; a second
// create returns 409.
func CreateWallet(c middleware.Context) {
	var req api.WalletCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "user_id is required"})
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		parsed, err := models.ParseAmount(req.Balance)
		if err != nil || parsed.IsNegative() {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "balance must be a non-negative decimal"})
			return
		}
		balance = parsed
	}

	currency := req.Currency
	if currency == "" {
		currency = pkgbilling.DefaultCurrency()
	}

	w, err := wallets.Create(c.Request.Context(), req.UserID, balance, currency, req.AutoRecharge, req.AllowNegative)
	if err != nil {
		if errors.Is(err, wallet.ErrConflict) {
			metrics.walletOp("create", "conflict")
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "wallet already exists"})
			return
		}
		logger.WithFields(logging.Fields{
			"error":   err,
			"user_id": req.UserID,
		}).Error("Failed to create wallet")
		metrics.walletOp("create", "error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create wallet"})
		return
	}

	metrics.walletOp("create", "success")
	c.JSON(http.StatusCreated, walletResponse(w))
}

// GetWallet returns a user's wallet
func GetWallet(c middleware.Context) {
	w, err := wallets.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondWalletError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse(w))
}

// GetBalance returns just the balance string
func GetBalance(c middleware.Context) {
	w, err := wallets.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondWalletError(c, err)
		return
	}
	c.JSON(http.StatusOK, middleware.H{
		"user_id":  w.UserID,
		"balance":  models.FormatAmount(w.Balance),
		"currency": w.Currency,
	})
}

// UpdateWallet patches wallet settings (auto_recharge, allow_negative,
// currency). Balance is never set directly; use credit/debit.
func UpdateWallet(c middleware.Context) {
	var req struct {
		AutoRecharge  *bool   `json:"auto_recharge,omitempty"`
		AllowNegative *bool   `json:"allow_negative,omitempty"`
		Currency      *string `json:"currency,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	w, err := wallets.Update(c.Request.Context(), c.Param("user_id"), req.AutoRecharge, req.AllowNegative, req.Currency)
	if err != nil {
		respondWalletError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse(w))
}

// CreditWallet adds funds to a wallet
func CreditWallet(c middleware.Context) {
	amount, reason, ok := bindAmount(c)
	if !ok {
		return
	}

	tx, err := wallets.Credit(c.Request.Context(), c.Param("user_id"), amount, reason)
	if err != nil {
		metrics.walletOp("credit", "error")
		respondWalletError(c, err)
		return
	}

	metrics.walletOp("credit", "success")
	c.JSON(http.StatusOK, transactionResponse(tx))
}

// DebitWallet removes funds from a wallet. Overdrafts are rejected with 402
// unless the wallet allows a negative balance.
func DebitWallet(c middleware.Context) {
	var req api.WalletAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount is required"})
		return
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount must be a positive decimal"})
		return
	}

	tx, err := wallets.Debit(c.Request.Context(), c.Param("user_id"), amount, req.Reason, req.PriceVersion)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			metrics.walletOp("debit", "insufficient")
			c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "insufficient balance"})
			return
		}
		metrics.walletOp("debit", "error")
		respondWalletError(c, err)
		return
	}

	metrics.walletOp("debit", "success")
	c.JSON(http.StatusOK, transactionResponse(tx))
}

// GetTransactions returns a wallet's full transaction history, oldest first
func GetTransactions(c middleware.Context) {
	archive, err := wallets.History(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondWalletError(c, err)
		return
	}
	c.JSON(http.StatusOK, archive)
}

func bindAmount(c middleware.Context) (decimal.Decimal, string, bool) {
	var req api.WalletAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount is required"})
		return decimal.Zero, "", false
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "amount must be a positive decimal"})
		return decimal.Zero, "", false
	}
	return amount, req.Reason, true
}

func walletResponse(w *models.Wallet) api.WalletResponse {
	resp := api.WalletResponse{
		UserID:        w.UserID,
		Balance:       models.FormatAmount(w.Balance),
		Currency:      w.Currency,
		AutoRecharge:  w.AutoRecharge,
		AllowNegative: w.AllowNegative,
		ArchivalID:    w.ArchivalID,
	}
	if w.LastDeductedAt != nil {
		s := w.LastDeductedAt.UTC().Format(time.RFC3339Nano)
		resp.LastDeductedAt = &s
	}
	return resp
}

func transactionResponse(tx *models.Transaction) api.TransactionResponse {
	return api.TransactionResponse{
		TxID:         tx.TxID,
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		Type:         tx.Type,
		Reason:       tx.Reason,
		PriceVersion: tx.PriceVersion,
	}
}

func respondWalletError(c middleware.Context, err error) {
	if errors.Is(err, wallet.ErrNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "wallet not found"})
		return
	}
	logger.WithFields(logging.Fields{
		"error": err,
		"path":  c.Request.URL.Path,
	}).Error("Wallet operation failed")
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
}
