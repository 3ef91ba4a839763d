package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/bhaijames252-sketch/billbillbill/internal/pricing"
	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/middleware"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

// CreatePricing publishes a full price schedule. Every write gets a fresh
// date-scoped version tag shared by all currencies in the request.
func CreatePricing(c middleware.Context) {
	var req api.PricingCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Pricing) == 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "pricing is required"})
		return
	}

	schedules := make([]models.PriceSchedule, 0, len(req.Pricing))
	for _, data := range req.Pricing {
		schedules = append(schedules, models.PriceSchedule{
			Currency:   data.Currency,
			Compute:    computeRates(data.Compute),
			Disk:       models.DiskRate{PerGBHour: decimal.NewFromFloat(data.Disk["per_gb_hour"])},
			FloatingIP: models.FloatingIPRate{PerHour: decimal.NewFromFloat(data.FloatingIP["per_hour"])},
		})
	}

	version, err := prices.Create(c.Request.Context(), schedules)
	if err != nil {
		logger.WithError(err).Error("Failed to publish price schedule")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to publish pricing"})
		return
	}
	c.JSON(http.StatusCreated, api.PriceVersionResponse{PriceVersion: version})
}

// UpdatePricing partially updates existing schedules. Compute entries merge
// per flavor; absent sections keep their current rates. Unknown currencies
// must come with a full schedule via CreatePricing instead.
func UpdatePricing(c middleware.Context) {
	var req api.PricingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Pricing) == 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "pricing is required"})
		return
	}

	updates := make([]pricing.PartialSchedule, 0, len(req.Pricing))
	for _, data := range req.Pricing {
		update := pricing.PartialSchedule{
			Currency: data.Currency,
			Compute:  computeRates(data.Compute),
		}
		if data.Disk != nil {
			update.Disk = &models.DiskRate{PerGBHour: decimal.NewFromFloat(data.Disk["per_gb_hour"])}
		}
		if data.FloatingIP != nil {
			update.FloatingIP = &models.FloatingIPRate{PerHour: decimal.NewFromFloat(data.FloatingIP["per_hour"])}
		}
		updates = append(updates, update)
	}

	version, err := prices.Update(c.Request.Context(), updates)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownCurrency) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "partial update references an unknown currency"})
			return
		}
		logger.WithError(err).Error("Failed to update price schedule")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to update pricing"})
		return
	}
	c.JSON(http.StatusOK, api.PriceVersionResponse{PriceVersion: version})
}

// GetPricing returns the latest schedule across all currencies
func GetPricing(c middleware.Context) {
	version, schedules, err := prices.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no pricing published"})
			return
		}
		logger.WithError(err).Error("Failed to fetch pricing")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, middleware.H{
		"price_version": version,
		"pricing":       schedules,
	})
}

// GetPricingByCurrency returns the latest schedule for one currency
func GetPricingByCurrency(c middleware.Context) {
	schedule, err := prices.ByCurrency(c.Request.Context(), c.Param("currency"))
	if err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no pricing for currency"})
			return
		}
		logger.WithError(err).Error("Failed to fetch pricing by currency")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// GetPricingHistory returns every published version
func GetPricingHistory(c middleware.Context) {
	history, err := prices.History(c.Request.Context())
	if err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no pricing published"})
			return
		}
		logger.WithError(err).Error("Failed to fetch pricing history")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, history)
}

// GetPricingByVersion returns one historical schedule by its version tag
func GetPricingByVersion(c middleware.Context) {
	entry, err := prices.ByVersion(c.Request.Context(), c.Param("version"))
	if err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "price version not found"})
			return
		}
		logger.WithError(err).Error("Failed to fetch price version")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func computeRates(raw map[string]map[string]float64) map[string]models.ComputeRate {
	if raw == nil {
		return nil
	}
	rates := make(map[string]models.ComputeRate, len(raw))
	for flavor, fields := range raw {
		rates[flavor] = models.ComputeRate{PerHour: decimal.NewFromFloat(fields["per_hour"])}
	}
	return rates
}
