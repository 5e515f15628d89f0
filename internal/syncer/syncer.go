package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tradebridge/internal/domain"
)

// BrokerView provides the account state to refresh. Satisfied by
// bridge.Bridge.
type BrokerView interface {
	GetAccount(ctx context.Context) (domain.Account, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
}

// SnapshotHandler receives each refreshed snapshot.
type SnapshotHandler interface {
	HandleSnapshot(snapshot Snapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(Snapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s Snapshot) error {
	return f(s)
}

// Snapshot is one consistent view of the account taken at RefreshedAt.
type Snapshot struct {
	Account     domain.Account
	Positions   []domain.Position
	RefreshedAt time.Time
}

// Config holds syncer configuration.
type Config struct {
	Interval time.Duration // Refresh interval (default: 30s)
	Timeout  time.Duration // Per-refresh timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Syncer periodically fetches account and position snapshots.
type Syncer struct {
	cfg     Config
	broker  BrokerView
	handler SnapshotHandler
	logger  *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Syncer.
func New(cfg Config, broker BrokerView, handler SnapshotHandler, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		cfg:     cfg,
		broker:  broker,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the refresh loop.
func (s *Syncer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("account syncer started", "interval", s.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the syncer.
func (s *Syncer) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("account syncer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the most recent snapshot. RefreshedAt is zero if no
// refresh has succeeded yet.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// run is the main refresh loop.
func (s *Syncer) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start.
	s.refresh()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// refresh fetches one snapshot and publishes it. Failures keep the
// previous snapshot; transient disconnects are expected.
func (s *Syncer) refresh() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		s.logger.Warn("account refresh failed", "err", err)
		return
	}

	positions, err := s.broker.GetPositions(ctx)
	if err != nil {
		s.logger.Warn("position refresh failed", "err", err)
		return
	}

	snapshot := Snapshot{
		Account:     account,
		Positions:   positions,
		RefreshedAt: time.Now(),
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	if s.handler != nil {
		if err := s.handler.HandleSnapshot(snapshot); err != nil {
			s.logger.Warn("snapshot handler failed", "err", err)
		}
	}

	s.logger.Debug("account refreshed",
		"positions", len(positions),
		"net_liquidation", account.NetLiquidation,
		"duration", time.Since(start),
	)
}
