// Package loadgen drives a message engine with concurrent producers and
// consumers while periodically toggling its ordering mode, and reports how
// many messages went through.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pmengine/internal/config"
	"pmengine/internal/domain"
	"pmengine/internal/queue"
)

// priorityLevels is the number of distinct priorities producers cycle through.
const priorityLevels = 10

// ErrInvalidConfig is returned when a run is requested with unusable settings.
var ErrInvalidConfig = errors.New("invalid load generator config")

// Config controls a load run.
type Config struct {
	Producers           int
	Consumers           int
	MessagesPerProducer int

	// SwitchInterval is the period of mode toggles. The first toggle happens
	// after half an interval. Zero disables switching.
	SwitchInterval time.Duration

	// ProducerRate limits each producer to this many messages per second.
	// Zero means unlimited.
	ProducerRate float64

	// ReportInterval is how often OnProgress is called. Zero disables it.
	ReportInterval time.Duration
	OnProgress     func(Progress)
}

// FromConfig builds a run configuration from the loadgen config section.
func FromConfig(cfg *config.LoadgenConfig) Config {
	return Config{
		Producers:           cfg.Producers,
		Consumers:           cfg.Consumers,
		MessagesPerProducer: cfg.MessagesPerProducer,
		SwitchInterval:      cfg.SwitchInterval,
		ProducerRate:        cfg.ProducerRate,
		ReportInterval:      cfg.ReportInterval,
	}
}

// Total returns the number of messages the run produces.
func (c Config) Total() int64 {
	return int64(c.Producers) * int64(c.MessagesPerProducer)
}

func (c Config) validate() error {
	switch {
	case c.Producers <= 0:
		return fmt.Errorf("%w: producers must be positive, got %d", ErrInvalidConfig, c.Producers)
	case c.Consumers <= 0:
		return fmt.Errorf("%w: consumers must be positive, got %d", ErrInvalidConfig, c.Consumers)
	case c.MessagesPerProducer <= 0:
		return fmt.Errorf("%w: messages per producer must be positive, got %d", ErrInvalidConfig, c.MessagesPerProducer)
	case c.SwitchInterval < 0 || c.ReportInterval < 0 || c.ProducerRate < 0:
		return fmt.Errorf("%w: intervals and rate must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Progress is a snapshot taken while a run is in flight.
type Progress struct {
	Produced     int64
	Consumed     int64
	Switches     int64
	HighPriority bool
	Elapsed      time.Duration
}

// Report summarizes a finished run.
type Report struct {
	Produced     int64         `json:"produced"`
	Consumed     int64         `json:"consumed"`
	Switches     int64         `json:"switches"`
	HighPriority bool          `json:"high_priority"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// Throughput returns consumed messages per second.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Consumed) / r.Elapsed.Seconds()
}

type counters struct {
	produced atomic.Int64
	consumed atomic.Int64
	switches atomic.Int64
}

// Run starts every producer and consumer at once and returns when all
// produced messages have been consumed or ctx ends.
func Run(ctx context.Context, eng queue.Engine, cfg Config, logger *slog.Logger) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var c counters
	total := cfg.Total()
	start := time.Now()

	logger.Info("load run starting",
		"producers", cfg.Producers,
		"consumers", cfg.Consumers,
		"messages", total,
		"switch_interval", cfg.SwitchInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Producers; i++ {
		g.Go(func() error {
			return produce(gctx, eng, cfg, &c)
		})
	}
	for i := 0; i < cfg.Consumers; i++ {
		g.Go(func() error {
			return consume(gctx, eng, total, &c)
		})
	}

	// Background helpers stop once the workers are done.
	bgCtx, stopBackground := context.WithCancel(gctx)
	var bg sync.WaitGroup
	if cfg.SwitchInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			toggle(bgCtx, eng, cfg.SwitchInterval, &c, logger)
		}()
	}
	if cfg.ReportInterval > 0 && cfg.OnProgress != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			report(bgCtx, eng, cfg, start, &c)
		}()
	}

	err := g.Wait()
	stopBackground()
	bg.Wait()

	result := &Report{
		Produced:     c.produced.Load(),
		Consumed:     c.consumed.Load(),
		Switches:     c.switches.Load(),
		HighPriority: eng.HighPriorityMode(),
		Elapsed:      time.Since(start),
	}

	if err != nil {
		return result, fmt.Errorf("load run aborted: %w", err)
	}

	logger.Info("load run finished",
		"produced", result.Produced,
		"consumed", result.Consumed,
		"switches", result.Switches,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// produce puts MessagesPerProducer messages with priorities cycling 0..9.
func produce(ctx context.Context, eng queue.Producer, cfg Config, c *counters) error {
	var limiter *rate.Limiter
	if cfg.ProducerRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProducerRate), 1)
	}

	for i := 0; i < cfg.MessagesPerProducer; i++ {
		if limiter != nil {
			if err := throttle(ctx, limiter); err != nil {
				return err
			}
		}
		msg := domain.NewPriorityMessage(int64(i%priorityLevels), nil)
		if err := eng.Put(ctx, msg); err != nil {
			return err
		}
		c.produced.Add(1)
	}
	return nil
}

// throttle waits for a token or for ctx to end, returning ctx.Err() in the
// latter case.
func throttle(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// consume takes messages until total have been consumed across all consumers.
func consume(ctx context.Context, eng queue.Consumer, total int64, c *counters) error {
	for c.consumed.Load() < total {
		msg, err := eng.Get(ctx)
		if err != nil {
			return err
		}
		if msg != nil {
			c.consumed.Add(1)
		}
	}
	return nil
}

// toggle flips the mode every interval, starting half an interval in.
func toggle(ctx context.Context, eng queue.ModeSwitcher, interval time.Duration, c *counters, logger *slog.Logger) {
	first := time.NewTimer(interval / 2)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next := !eng.HighPriorityMode()
		if err := eng.SetMode(ctx, next); err != nil {
			if ctx.Err() == nil {
				logger.Warn("mode toggle failed", "error", err, "high_priority", next)
			}
			return
		}
		c.switches.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func report(ctx context.Context, eng queue.ModeSwitcher, cfg Config, start time.Time, c *counters) {
	ticker := time.NewTicker(cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg.OnProgress(Progress{
				Produced:     c.produced.Load(),
				Consumed:     c.consumed.Load(),
				Switches:     c.switches.Load(),
				HighPriority: eng.HighPriorityMode(),
				Elapsed:      time.Since(start),
			})
		}
	}
}
