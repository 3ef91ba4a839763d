// Package billing reconstructs billable segments from resource event logs,
// prices them, and settles the resulting bill against the user's wallet.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pricestore "github.com/bhaijames252-sketch/billbillbill/internal/pricing"
	walletstore "github.com/bhaijames252-sketch/billbillbill/internal/wallet"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

var (
	// ErrWalletNotFound means the user has no wallet to settle against
	ErrWalletNotFound = errors.New("user wallet not found")
	// ErrPricingNotFound means no schedule exists for the wallet's currency
	ErrPricingNotFound = errors.New("no pricing for currency")
	// ErrBillNotFound means the bill id has no document
	ErrBillNotFound = errors.New("bill not found")
	// ErrAlreadyPaid means a retry targeted a settled bill; nothing changed
	ErrAlreadyPaid = errors.New("bill already paid")
)

// ResourceSource supplies resources (including soft-deleted ones) and
// advances their billing cursors.
type ResourceSource interface {
	GetUserComputes(ctx context.Context, userID string, includeDeleted bool) ([]models.ComputeResource, error)
	GetUserDisks(ctx context.Context, userID string, includeDeleted bool) ([]models.DiskResource, error)
	GetUserFloatingIPs(ctx context.Context, userID string, includeReleased bool) ([]models.FloatingIPResource, error)
	UpdateLastBilled(ctx context.Context, resourceType models.ResourceType, resourceID string, billedUntil time.Time) error
}

// BillStore persists bills
type BillStore interface {
	InsertBill(ctx context.Context, bill *models.Bill) error
	GetBill(ctx context.Context, billID string) (*models.Bill, error)
	SetBillStatus(ctx context.Context, billID, status string, paid bool) error
}

// Ledger is the wallet side the engine settles against
type Ledger interface {
	Get(ctx context.Context, userID string) (*models.Wallet, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, reason, priceVersion string) (*models.Transaction, error)
}

// PriceSource resolves the current schedule for a currency
type PriceSource interface {
	ByCurrency(ctx context.Context, currency string) (*models.PriceSchedule, error)
}

// Engine is the billing computation engine
type Engine struct {
	resources ResourceSource
	bills     BillStore
	ledger    Ledger
	prices    PriceSource
	logger    logging.Logger
	now       func() time.Time
}

// New creates an Engine
func New(resources ResourceSource, bills BillStore, ledger Ledger, prices PriceSource, logger logging.Logger) *Engine {
	return &Engine{
		resources: resources,
		bills:     bills,
		ledger:    ledger,
		prices:    prices,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of one billing run. Bill is nil when the period held
// no billable usage.
type Result struct {
	Bill        *models.Bill
	NoUsage     bool
	UserID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

func newBillID(userID string, now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("bill_%s_%s_%s", now.Format("2006_01_02"), userID, hex[:6])
}

// Compute runs one billing cycle for a user up to periodEnd (default now).
// Cursors advance for every resource examined, before settlement, so a
// failed debit never reprocesses the same interval.
func (e *Engine) Compute(ctx context.Context, userID string, periodEnd *time.Time) (*Result, error) {
	wallet, err := e.ledger.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, walletstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, userID)
		}
		// Transient ledger faults must not masquerade as a missing wallet.
		return nil, fmt.Errorf("fetching wallet for %s: %w", userID, err)
	}

	schedule, err := e.prices.ByCurrency(ctx, wallet.Currency)
	if err != nil {
		if errors.Is(err, pricestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPricingNotFound, wallet.Currency)
		}
		return nil, fmt.Errorf("fetching pricing for %s: %w", wallet.Currency, err)
	}

	now := e.now()
	end := now
	if periodEnd != nil {
		end = periodEnd.UTC()
		if end.After(now) {
			end = now
		}
	}

	periodStart := now
	if wallet.LastDeductedAt != nil {
		periodStart = wallet.LastDeductedAt.UTC()
	}

	charges, total, err := e.resourceCharges(ctx, userID, end, schedule)
	if err != nil {
		return nil, err
	}

	if total.IsZero() {
		return &Result{NoUsage: true, UserID: userID, PeriodStart: periodStart, PeriodEnd: end}, nil
	}

	bill := &models.Bill{
		BillID:       newBillID(userID, now),
		UserID:       userID,
		PeriodStart:  periodStart,
		PeriodEnd:    end,
		Status:       models.BillStatusPending,
		Charges:      charges,
		Total:        models.FormatAmount(total),
		Paid:         false,
		PriceVersion: schedule.PriceVersion,
		GeneratedAt:  now,
	}
	if err := e.bills.InsertBill(ctx, bill); err != nil {
		return nil, err
	}

	e.settle(ctx, bill, total, "Billing cycle: "+bill.BillID)

	return &Result{Bill: bill, UserID: userID, PeriodStart: periodStart, PeriodEnd: end}, nil
}

// Retry re-runs settlement for a pending or failed bill. The charges and
// cursors from the original run stand; only the debit executes again.
func (e *Engine) Retry(ctx context.Context, billID string) (*models.Bill, error) {
	bill, err := e.bills.GetBill(ctx, billID)
	if err != nil {
		return nil, ErrBillNotFound
	}
	if bill.Paid {
		return nil, ErrAlreadyPaid
	}

	total, err := models.ParseAmount(bill.Total)
	if err != nil {
		return nil, fmt.Errorf("bill %s has malformed total %q: %w", billID, bill.Total, err)
	}

	e.settle(ctx, bill, total, "Retry billing: "+bill.BillID)
	return bill, nil
}

// settle debits the wallet and flips the bill to success or failed. The bill
// document and advanced cursors survive a failed debit.
func (e *Engine) settle(ctx context.Context, bill *models.Bill, total decimal.Decimal, reason string) {
	_, err := e.ledger.Debit(ctx, bill.UserID, total, reason, bill.PriceVersion)
	if err != nil {
		e.logger.WithFields(logging.Fields{
			"bill_id": bill.BillID,
			"user_id": bill.UserID,
			"total":   bill.Total,
			"error":   err.Error(),
		}).Warn("Bill settlement failed")

		if setErr := e.bills.SetBillStatus(ctx, bill.BillID, models.BillStatusFailed, false); setErr != nil {
			e.logger.WithFields(logging.Fields{"bill_id": bill.BillID, "error": setErr.Error()}).
				Error("Failed to mark bill failed")
		}
		bill.Status = models.BillStatusFailed
		return
	}

	if setErr := e.bills.SetBillStatus(ctx, bill.BillID, models.BillStatusSuccess, true); setErr != nil {
		e.logger.WithFields(logging.Fields{"bill_id": bill.BillID, "error": setErr.Error()}).
			Error("Debit succeeded but bill status update failed")
		return
	}
	bill.Status = models.BillStatusSuccess
	bill.Paid = true

	e.logger.WithFields(logging.Fields{
		"bill_id": bill.BillID,
		"user_id": bill.UserID,
		"total":   bill.Total,
	}).Info("Bill settled")
}

// resourceCharges walks every resource the user owns, prices the unbilled
// window, and advances each cursor to its billing end.
func (e *Engine) resourceCharges(ctx context.Context, userID string, periodEnd time.Time, schedule *models.PriceSchedule) ([]models.Charge, decimal.Decimal, error) {
	var charges []models.Charge
	total := decimal.Zero

	addCharge := func(resourceType models.ResourceType, resourceID string, amount decimal.Decimal, billingEnd time.Time) error {
		if amount.IsPositive() {
			charges = append(charges, models.Charge{
				Type:       string(resourceType),
				ResourceID: resourceID,
				Amount:     models.FormatAmount(amount),
			})
			total = total.Add(amount)
		}
		return e.resources.UpdateLastBilled(ctx, resourceType, resourceID, billingEnd)
	}

	computes, err := e.resources.GetUserComputes(ctx, userID, true)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for i := range computes {
		c := &computes[i]
		billingEnd := cutoff(periodEnd, c.DeletedAt)
		if !c.LastBilledUntil.Before(billingEnd) {
			continue
		}
		amount := computeCharge(c, c.LastBilledUntil, billingEnd, schedule)
		if err := addCharge(models.ResourceCompute, c.ResourceID, amount, billingEnd); err != nil {
			return nil, decimal.Zero, err
		}
	}

	disks, err := e.resources.GetUserDisks(ctx, userID, true)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for i := range disks {
		d := &disks[i]
		billingEnd := cutoff(periodEnd, d.DeletedAt)
		if !d.LastBilledUntil.Before(billingEnd) {
			continue
		}
		amount := diskCharge(d, d.LastBilledUntil, billingEnd, schedule)
		if err := addCharge(models.ResourceDisk, d.ResourceID, amount, billingEnd); err != nil {
			return nil, decimal.Zero, err
		}
	}

	fips, err := e.resources.GetUserFloatingIPs(ctx, userID, true)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for i := range fips {
		f := &fips[i]
		billingEnd := cutoff(periodEnd, f.ReleasedAt)
		if !f.LastBilledUntil.Before(billingEnd) {
			continue
		}
		amount := hoursBetween(f.LastBilledUntil, billingEnd).Mul(schedule.FloatingIP.PerHour)
		if err := addCharge(models.ResourceFloatingIP, f.ResourceID, amount, billingEnd); err != nil {
			return nil, decimal.Zero, err
		}
	}

	return charges, total, nil
}

// cutoff truncates the billing window at the deletion instant when the
// resource died inside the period.
func cutoff(periodEnd time.Time, deletedAt *time.Time) time.Time {
	if deletedAt != nil && deletedAt.Before(periodEnd) {
		return *deletedAt
	}
	return periodEnd
}

// hoursBetween converts a window to decimal hours at millisecond resolution
func hoursBetween(start, end time.Time) decimal.Decimal {
	ms := end.Sub(start).Milliseconds()
	return decimal.New(ms, -3).Div(decimal.NewFromInt(3600))
}

// billableSegments selects events strictly after lastBilled and up through
// billingEnd, ordered by time.
func billableSegments(events []models.EventEntry, lastBilled, billingEnd time.Time) []models.EventEntry {
	var segments []models.EventEntry
	for _, event := range events {
		if event.Time.After(lastBilled) && !event.Time.After(billingEnd) {
			segments = append(segments, event)
		}
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Time.Before(segments[j].Time)
	})
	return segments
}

// computeCharge reconstructs the compute resource's (flavor, state) at
// lastBilled by replaying the log, then walks the segment boundaries
// charging running intervals at the flavor rate. Iteration stops at a
// delete; the tail to billingEnd is charged only when still running.
func computeCharge(c *models.ComputeResource, lastBilled, billingEnd time.Time, schedule *models.PriceSchedule) decimal.Decimal {
	sorted := make([]models.EventEntry, len(c.Events))
	copy(sorted, c.Events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	var flavor, state string
	for _, event := range sorted {
		if event.Time.After(lastBilled) {
			break
		}
		switch event.Type {
		case string(models.EventCreate):
			flavor = metaString(event.Meta, "flavor", flavor)
			state = models.StateRunning
		case string(models.EventResize):
			flavor = metaString(event.Meta, "flavor", flavor)
		case models.StateRunning, models.StateStopped, models.StateDeleted:
			state = event.Type
		}
	}
	if flavor == "" {
		flavor = c.CurrentFlavor
	}
	if state == "" {
		state = models.StateRunning
	}

	segments := billableSegments(sorted, lastBilled, billingEnd)

	charge := decimal.Zero
	currentTime := lastBilled
	deleted := false

	for _, segment := range segments {
		if state == models.StateRunning && flavor != "" {
			hours := hoursBetween(currentTime, segment.Time)
			charge = charge.Add(hours.Mul(schedule.ComputeRateFor(flavor)))
		}

		currentTime = segment.Time
		switch segment.Type {
		case string(models.EventResize):
			flavor = metaString(segment.Meta, "flavor", flavor)
		case models.StateRunning, models.StateStopped:
			state = segment.Type
		case models.StateDeleted:
			deleted = true
		}
		if deleted {
			break
		}
	}

	if !deleted && state == models.StateRunning && flavor != "" && currentTime.Before(billingEnd) {
		hours := hoursBetween(currentTime, billingEnd)
		charge = charge.Add(hours.Mul(schedule.ComputeRateFor(flavor)))
	}

	return charge
}

// diskCharge bills size_gb x per_gb_hour over the window. Size changes at
// resize boundaries; attach state never matters.
func diskCharge(d *models.DiskResource, lastBilled, billingEnd time.Time, schedule *models.PriceSchedule) decimal.Decimal {
	sorted := make([]models.EventEntry, len(d.Events))
	copy(sorted, d.Events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	size := 0
	for _, event := range sorted {
		if event.Time.After(lastBilled) {
			break
		}
		if event.Type == string(models.EventCreate) || event.Type == string(models.EventResize) {
			size = metaInt(event.Meta, "size_gb", size)
		}
	}
	if size == 0 {
		size = d.SizeGB
	}

	perGBHour := schedule.Disk.PerGBHour
	segments := billableSegments(sorted, lastBilled, billingEnd)

	charge := decimal.Zero
	currentTime := lastBilled
	deleted := false

	for _, segment := range segments {
		hours := hoursBetween(currentTime, segment.Time)
		charge = charge.Add(hours.Mul(decimal.NewFromInt(int64(size))).Mul(perGBHour))

		currentTime = segment.Time
		switch segment.Type {
		case string(models.EventResize):
			size = metaInt(segment.Meta, "size_gb", size)
		case models.StateDeleted:
			deleted = true
		}
		if deleted {
			break
		}
	}

	if !deleted && currentTime.Before(billingEnd) {
		hours := hoursBetween(currentTime, billingEnd)
		charge = charge.Add(hours.Mul(decimal.NewFromInt(int64(size))).Mul(perGBHour))
	}

	return charge
}

func metaString(meta map[string]interface{}, key, fallback string) string {
	if v, ok := meta[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func metaInt(meta map[string]interface{}, key string, fallback int) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
