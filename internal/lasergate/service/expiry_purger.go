package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
)

// ExpiryPurger periodically deletes expired user records. An interval of
// 0 disables it.
type ExpiryPurger struct {
	store         store.UserStore
	clock         clock.Clock
	interval      time.Duration
	includeAdmins bool
	logger        *slog.Logger
	cancel        context.CancelFunc
	done          chan struct{}
}

// PurgerConfig holds the parameters for NewExpiryPurger.
type PurgerConfig struct {
	// IntervalHours is how often the purger runs. 0 means never.
	IntervalHours int

	// IncludeAdmins lets the sweep delete expired admin records too.
	IncludeAdmins bool
}

// NewExpiryPurger creates a purger but does not start it.
func NewExpiryPurger(s store.UserStore, clk clock.Clock, cfg PurgerConfig, logger *slog.Logger) *ExpiryPurger {
	if clk == nil {
		clk = clock.Real()
	}
	return &ExpiryPurger{
		store:         s,
		clock:         clk,
		interval:      time.Duration(cfg.IntervalHours) * time.Hour,
		includeAdmins: cfg.IncludeAdmins,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// Start runs an immediate sweep and then repeats on the interval until ctx
// is cancelled or Stop is called.
func (p *ExpiryPurger) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("expiry purger disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("expiry purger started",
		"interval", p.interval, "include_admins", p.includeAdmins)
}

// Stop signals the purger to exit and waits for it. Safe to call twice,
// and a no-op before Start.
func (p *ExpiryPurger) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *ExpiryPurger) loop(ctx context.Context) {
	defer close(p.done)

	p.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
			p.purge(ctx)
		}
	}
}

func (p *ExpiryPurger) purge(ctx context.Context) {
	now := p.clock.Now().UTC()
	n, err := p.store.PurgeExpired(ctx, now, p.includeAdmins)
	if err != nil {
		p.logger.Error("expiry purge failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("expired users removed", "count", n)
	}
}
