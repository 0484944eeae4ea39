package warehouse

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"itdesk.org/internal/ids"
	"itdesk.org/internal/obs"
)

const sweepTimeout = time.Minute

// SweepStore is the subset of Store the alert sweep needs.
type SweepStore interface {
	LowStockWithoutAlert(ctx context.Context) ([]Item, error)
	CreateAlert(ctx context.Context, alert Alert) (bool, error)
}

// Sweeper raises alerts for items already at or below their minimum that
// have no open alert, e.g. after a threshold was raised.
type Sweeper struct {
	store SweepStore
	log   *logrus.Logger
	now   func() time.Time
	cron  *cron.Cron
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store SweepStore, log *logrus.Logger) *Sweeper {
	if log == nil {
		log = obs.Logger()
	}
	return &Sweeper{store: store, log: log, now: time.Now}
}

// Sweep runs one reconciliation pass and returns how many alerts it created.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	items, err := s.store.LowStockWithoutAlert(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, item := range items {
		ok, err := s.store.CreateAlert(ctx, Alert{
			ID:           ids.New(),
			ItemID:       item.ID,
			Message:      LowStockMessage(item.CurrentStock, item.MinStockLevel),
			CurrentStock: item.CurrentStock,
			MinLevel:     item.MinStockLevel,
			CreatedAt:    s.now().UTC(),
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
			obs.ObserveStockAlert("sweep")
		}
	}
	return created, nil
}

// Start schedules Sweep on spec (a cron expression such as "@every 15m").
// An empty spec disables the sweep.
func (s *Sweeper) Start(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", spec).Info("stock_alert_sweep_scheduled")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := s.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Error("stock_alert_sweep_failed")
		return
	}
	if n > 0 {
		s.log.WithField("created", n).Info("stock_alert_sweep")
	}
}
