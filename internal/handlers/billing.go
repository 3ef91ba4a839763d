package handlers

import (
	"errors"
	"net/http"

	"github.com/bhaijames252-sketch/billbillbill/internal/billing"
	"github.com/bhaijames252-sketch/billbillbill/internal/store"
	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/middleware"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// ComputeBilling runs one billing cycle for a user: charge accrued usage
// since the last cycle and settle against the wallet.
func ComputeBilling(c middleware.Context) {
	var req api.BillingComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "user_id is required"})
		return
	}

	result, err := engine.Compute(c.Request.Context(), req.UserID, req.PeriodEnd)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrWalletNotFound):
			metrics.billingRun("no_wallet")
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "wallet not found"})
		case errors.Is(err, billing.ErrPricingNotFound):
			metrics.billingRun("no_pricing")
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no price schedule for wallet currency"})
		default:
			logger.WithFields(logging.Fields{
				"error":   err,
				"user_id": req.UserID,
			}).Error("Billing cycle failed")
			metrics.billingRun("error")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "billing cycle failed"})
		}
		return
	}

	if result.NoUsage {
		metrics.billingRun("no_usage")
		c.JSON(http.StatusOK, api.MessageResponse{Message: "no billable usage", UserID: result.UserID})
		return
	}

	metrics.billingRun(result.Bill.Status)
	c.JSON(http.StatusCreated, result.Bill)
}

// GetBill returns one billing cycle document
func GetBill(c middleware.Context) {
	bill, err := resources.GetBill(c.Request.Context(), c.Param("bill_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "bill not found"})
			return
		}
		logger.WithError(err).Error("Failed to fetch bill")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, bill)
}

// GetUserBills lists a user's bills, newest first
func GetUserBills(c middleware.Context) {
	bills, err := resources.GetUserBills(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		logger.WithError(err).Error("Failed to fetch user bills")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	if bills == nil {
		bills = []models.Bill{}
	}
	c.JSON(http.StatusOK, bills)
}

// RetryBilling re-attempts settlement of a pending or failed bill. Usage is
// not recomputed; only the wallet debit is retried.
func RetryBilling(c middleware.Context) {
	bill, err := engine.Retry(c.Request.Context(), c.Param("bill_id"))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrBillNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "bill not found"})
		case errors.Is(err, billing.ErrAlreadyPaid):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "bill is already paid"})
		default:
			logger.WithFields(logging.Fields{
				"error":   err,
				"bill_id": c.Param("bill_id"),
			}).Error("Billing retry failed")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "retry failed"})
		}
		return
	}
	c.JSON(http.StatusOK, bill)
}
