// Package pricing manages the price catalog: the current schedule per
// currency in SQL, the append-only version history in a single Mongo
// document, and an optional Redis read-through cache for the hot
// by-currency lookup.
package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/models"
)

var (
	// ErrNotFound means no schedule exists for the requested currency or
	// version
	ErrNotFound = errors.New("pricing not found")
	// ErrUnknownCurrency means a partial update targeted a currency with no
	// existing schedule
	ErrUnknownCurrency = errors.New("currency does not exist; create it with a full schedule first")
)

// HistoryCollection holds the single price history document
const HistoryCollection = "price_history"

const cacheTTL = time.Minute

// Service is the price catalog store
type Service struct {
	db      *sql.DB
	history *mongo.Collection
	cache   redis.UniversalClient
	logger  logging.Logger
}

// New creates a pricing Service. cache may be nil to disable caching; any
// go-redis topology (standalone, Sentinel, Cluster) works.
func New(db *sql.DB, mongoDB *mongo.Database, cache redis.UniversalClient, logger logging.Logger) *Service {
	return &Service{
		db:      db,
		history: mongoDB.Collection(HistoryCollection),
		cache:   cache,
		logger:  logger,
	}
}

// generateVersion derives the next version tag: the UTC date plus a daily
// counter over the history document (2026-01-15_v1, _v2, ...).
func (s *Service) generateVersion(ctx context.Context) (string, error) {
	dateStr := time.Now().UTC().Format("2006-01-02")

	var doc models.PriceHistory
	err := s.history.FindOne(ctx, bson.M{}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return dateStr + "_v1", nil
	}
	if err != nil {
		return "", err
	}

	count := 1
	for _, entry := range doc.History {
		if strings.HasPrefix(entry.PriceVersion, dateStr) {
			count++
		}
	}
	return fmt.Sprintf("%s_v%d", dateStr, count), nil
}

// Create publishes full schedules for one or more currencies under a fresh
// version tag.
func (s *Service) Create(ctx context.Context, schedules []models.PriceSchedule) (string, error) {
	version, err := s.generateVersion(ctx)
	if err != nil {
		return "", err
	}

	for i := range schedules {
		schedules[i].Currency = strings.ToUpper(schedules[i].Currency)
		schedules[i].PriceVersion = version
		if err := s.upsertLatest(ctx, &schedules[i]); err != nil {
			return "", err
		}
	}

	if err := s.appendHistory(ctx, schedules, version); err != nil {
		return "", err
	}

	s.invalidate(ctx, schedules)
	s.logger.WithFields(logging.Fields{
		"price_version": version,
		"currencies":    len(schedules),
	}).Info("Price schedule published")

	return version, nil
}

// PartialSchedule is a currency's partial update. Nil sections keep their
// current values; Compute merges per flavor.
type PartialSchedule struct {
	Currency   string
	Compute    map[string]models.ComputeRate
	Disk       *models.DiskRate
	FloatingIP *models.FloatingIPRate
}

// Update merges partial schedules into the existing ones and publishes the
// merged result under a fresh version tag. A currency with no existing
// schedule must carry all sections or the update fails.
func (s *Service) Update(ctx context.Context, updates []PartialSchedule) (string, error) {
	version, err := s.generateVersion(ctx)
	if err != nil {
		return "", err
	}

	merged := make([]models.PriceSchedule, 0, len(updates))
	for _, upd := range updates {
		currency := strings.ToUpper(upd.Currency)
		current, err := s.fetchLatest(ctx, currency)
		if err == ErrNotFound {
			if upd.Compute == nil || upd.Disk == nil || upd.FloatingIP == nil {
				return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
			}
			current = &models.PriceSchedule{Currency: currency, Compute: map[string]models.ComputeRate{}}
		} else if err != nil {
			return "", err
		}

		if upd.Compute != nil {
			if current.Compute == nil {
				current.Compute = map[string]models.ComputeRate{}
			}
			for flavor, rate := range upd.Compute {
				current.Compute[flavor] = rate
			}
		}
		if upd.Disk != nil {
			current.Disk = *upd.Disk
		}
		if upd.FloatingIP != nil {
			current.FloatingIP = *upd.FloatingIP
		}

		current.PriceVersion = version
		if err := s.upsertLatest(ctx, current); err != nil {
			return "", err
		}
		merged = append(merged, *current)
	}

	if err := s.appendHistory(ctx, merged, version); err != nil {
		return "", err
	}

	s.invalidate(ctx, merged)
	return version, nil
}

// Latest returns the current schedule for every currency
func (s *Service) Latest(ctx context.Context) (string, []models.PriceSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, compute, disk, floating_ip, price_version
		FROM latest_prices
		ORDER BY currency
	`)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var schedules []models.PriceSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return "", nil, err
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if len(schedules) == 0 {
		return "", nil, ErrNotFound
	}
	return schedules[0].PriceVersion, schedules, nil
}

// ByCurrency returns the current schedule for one currency, consulting the
// cache first.
func (s *Service) ByCurrency(ctx context.Context, currency string) (*models.PriceSchedule, error) {
	currency = strings.ToUpper(currency)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey(currency)).Bytes(); err == nil {
			var schedule models.PriceSchedule
			if json.Unmarshal(cached, &schedule) == nil {
				return &schedule, nil
			}
		}
	}

	schedule, err := s.fetchLatest(ctx, currency)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(schedule); err == nil {
			s.cache.Set(ctx, cacheKey(currency), payload, cacheTTL)
		}
	}
	return schedule, nil
}

// History returns the full version history document
func (s *Service) History(ctx context.Context) (*models.PriceHistory, error) {
	var doc models.PriceHistory
	err := s.history.FindOne(ctx, bson.M{}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ByVersion returns one historical version's schedules
func (s *Service) ByVersion(ctx context.Context, version string) (*models.PriceVersionEntry, error) {
	doc, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.History {
		if doc.History[i].PriceVersion == version {
			return &doc.History[i], nil
		}
	}
	return nil, ErrNotFound
}

func cacheKey(currency string) string {
	return "pricing:currency:" + currency
}

func (s *Service) invalidate(ctx context.Context, schedules []models.PriceSchedule) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(schedules))
	for _, schedule := range schedules {
		keys = append(keys, cacheKey(schedule.Currency))
	}
	if len(keys) > 0 {
		s.cache.Del(ctx, keys...)
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*models.PriceSchedule, error) {
	var schedule models.PriceSchedule
	var computeRaw, diskRaw, fipRaw []byte
	err := row.Scan(&schedule.Currency, &computeRaw, &diskRaw, &fipRaw, &schedule.PriceVersion)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(computeRaw, &schedule.Compute); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(diskRaw, &schedule.Disk); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fipRaw, &schedule.FloatingIP); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *Service) fetchLatest(ctx context.Context, currency string) (*models.PriceSchedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT currency, compute, disk, floating_ip, price_version
		FROM latest_prices
		WHERE currency = $1
	`, currency)
	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *Service) upsertLatest(ctx context.Context, schedule *models.PriceSchedule) error {
	computeRaw, err := json.Marshal(schedule.Compute)
	if err != nil {
		return err
	}
	diskRaw, err := json.Marshal(schedule.Disk)
	if err != nil {
		return err
	}
	fipRaw, err := json.Marshal(schedule.FloatingIP)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO latest_prices (id, currency, compute, disk, floating_ip, price_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (currency) DO UPDATE SET
			compute = EXCLUDED.compute,
			disk = EXCLUDED.disk,
			floating_ip = EXCLUDED.floating_ip,
			price_version = EXCLUDED.price_version,
			updated_at = NOW()
	`, uuid.NewString(), schedule.Currency, computeRaw, diskRaw, fipRaw, schedule.PriceVersion)
	return err
}

func (s *Service) appendHistory(ctx context.Context, schedules []models.PriceSchedule, version string) error {
	entry := models.PriceVersionEntry{
		PriceVersion: version,
		Pricing:      schedules,
	}

	var existing struct {
		ID interface{} `bson:"_id"`
	}
	err := s.history.FindOne(ctx, bson.M{}).Decode(&existing)
	if err == mongo.ErrNoDocuments {
		_, err = s.history.InsertOne(ctx, models.PriceHistory{
			Latest:  version,
			History: []models.PriceVersionEntry{entry},
		})
		return err
	}
	if err != nil {
		return err
	}

	_, err = s.history.UpdateOne(ctx,
		bson.M{"_id": existing.ID},
		bson.M{
			"$set":  bson.M{"latest": version},
			"$push": bson.M{"price_history": entry},
		},
	)
	return err
}
