package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the billing API under /api/v1
func RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	computes := v1.Group("/resources/computes")
	{
		computes.POST("", CreateCompute)
		computes.GET("/:resource_id", GetCompute)
		computes.GET("/user/:user_id", GetUserComputes)
		computes.PATCH("/:resource_id", UpdateCompute)
		computes.DELETE("/:resource_id", DeleteCompute)
	}

	disks := v1.Group("/resources/disks")
	{
		disks.POST("", CreateDisk)
		disks.GET("/:resource_id", GetDisk)
		disks.GET("/user/:user_id", GetUserDisks)
		disks.PATCH("/:resource_id", UpdateDisk)
		disks.DELETE("/:resource_id", DeleteDisk)
	}

	fips := v1.Group("/resources/floating-ips")
	{
		fips.POST("", CreateFloatingIP)
		fips.GET("/:resource_id", GetFloatingIP)
		fips.GET("/user/:user_id", GetUserFloatingIPs)
		fips.PATCH("/:resource_id", UpdateFloatingIP)
		fips.DELETE("/:resource_id", ReleaseFloatingIP)
	}

	wallets := v1.Group("/wallets")
	{
		wallets.POST("", CreateWallet)
		wallets.GET("/:user_id", GetWallet)
		wallets.GET("/:user_id/balance", GetBalance)
		wallets.PATCH("/:user_id", UpdateWallet)
		wallets.POST("/:user_id/credit", CreditWallet)
		wallets.POST("/:user_id/debit", DebitWallet)
		wallets.GET("/:user_id/transactions", GetTransactions)
	}

	billing := v1.Group("/billing")
	{
		billing.POST("/compute", ComputeBilling)
		billing.GET("/:bill_id", GetBill)
		billing.GET("/user/:user_id", GetUserBills)
		billing.POST("/:bill_id/retry", RetryBilling)
	}

	prices := v1.Group("/prices")
	{
		prices.POST("", CreatePricing)
		prices.PUT("", UpdatePricing)
		prices.GET("", GetPricing)
		prices.GET("/currency/:currency", GetPricingByCurrency)
		prices.GET("/history", GetPricingHistory)
		prices.GET("/version/:version", GetPricingByVersion)
	}
}
