// Package availability composes day views and applies owner schedule changes.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	// Location is the fixed offset all owner wall-clock times are read in.
	Location     *time.Location
	StoreTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	store   storage.Store
	cache   cache.DayCache
	logger  *slog.Logger
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
	tracer  trace.Tracer
}

func NewService(store storage.Store, dayCache cache.DayCache, logger *slog.Logger, cfg Config) *Service {
	if dayCache == nil {
		dayCache = cache.Noop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:   store,
		cache:   dayCache,
		logger:  logger,
		loc:     cfg.Location,
		timeout: cfg.StoreTimeout,
		now:     cfg.Now,
		tracer:  otel.Tracer("availability-service/availability"),
	}
}

// Day returns the windows of one date. Booking details are included only for
// the owner's own view.
func (s *Service) Day(ctx context.Context, ownerID, date string, ownerView bool) (model.DayView, error) {
	if ownerID == "" {
		return model.DayView{}, apperr.Validation("owner_id is required")
	}
	if !timeutil.ValidDate(date) {
		return model.DayView{}, apperr.Validation("date must be YYYY-MM-DD")
	}

	ctx, span := s.tracer.Start(ctx, "availability.Day", trace.WithAttributes(
		attribute.String("owner_id", ownerID),
		attribute.String("date", date),
	))
	defer span.End()

	view, hit := s.cache.Get(ctx, ownerID, date)
	metrics.IncDayView(hit)
	if !hit {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		ver := s.cache.Version(ctx, ownerID, date)
		start := time.Now()
		var err error
		view, err = Compose(ctx, s.store, ownerID, date, s.now())
		metrics.ObserveCompose(time.Since(start).Seconds())
		if err != nil {
			s.logger.Error("compose day failed", "owner_id", ownerID, "date", date, "err", err)
			return model.DayView{}, apperr.Internal("load availability", err)
		}
		s.cache.Set(ctx, ownerID, view, ver)
	}

	if !ownerView {
		view.TimeSlots = slots.StripDetails(view.TimeSlots)
	}
	return view, nil
}

// Compose runs the full pipeline for one date against r: the weekly rule tiled
// by the owner's settings, then persisted windows and the date exception, then
// active bookings. The result always carries booking details.
func Compose(ctx context.Context, r storage.Reader, ownerID, date string, now time.Time) (model.DayView, error) {
	weekday, err := timeutil.Weekday(date)
	if err != nil {
		return model.DayView{}, err
	}
	settings, err := r.Settings(ctx, ownerID, now)
	if err != nil {
		return model.DayView{}, err
	}
	rules, err := r.WorkingHours(ctx, ownerID, now)
	if err != nil {
		return model.DayView{}, err
	}
	exc, err := r.DateException(ctx, ownerID, date)
	if err != nil {
		return model.DayView{}, err
	}
	rows, err := r.Windows(ctx, ownerID, date)
	if err != nil {
		return model.DayView{}, err
	}
	bookings, err := r.ActiveBookings(ctx, ownerID, date)
	if err != nil {
		return model.DayView{}, err
	}

	var rule *model.WorkingHourRule
	for i := range rules {
		if rules[i].DayOfWeek == weekday {
			rule = &rules[i]
			break
		}
	}

	base := slots.Generate(date, rule, settings)
	windows, working := slots.ApplyExceptions(date, base, len(base) > 0, rows, exc)
	windows = slots.ApplyBookings(windows, bookings, true)
	if windows == nil {
		windows = []model.ComputedWindow{}
	}
	return model.DayView{Date: date, IsWorkingDay: working, TimeSlots: windows}, nil
}

// invalidate drops a cached date after a committed write. A failure is logged
// and counted; the entry still expires with its TTL.
func (s *Service) invalidate(ctx context.Context, ownerID, date string) {
	if err := s.cache.Invalidate(ctx, ownerID, date); err != nil {
		metrics.IncCacheInvalidationFailed()
		s.logger.Error("cache invalidation failed", "owner_id", ownerID, "date", date, "err", err)
	}
}

func (s *Service) invalidateOwner(ctx context.Context, ownerID string) {
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		metrics.IncCacheInvalidationFailed()
		s.logger.Error("cache invalidation failed", "owner_id", ownerID, "err", err)
	}
}

// Invalidate is exported for the booking write path.
func (s *Service) Invalidate(ctx context.Context, ownerID, date string) {
	s.invalidate(ctx, ownerID, date)
}

func storeErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}
