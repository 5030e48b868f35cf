package api

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"satnet/internal/config"
	"satnet/internal/design"
	"satnet/internal/metrics"
	"satnet/internal/store"
)

type Server struct {
	Store  store.Store
	Broker EventBroker
	Runner *design.Runner
	Cfg    config.Config
	Log    *zap.SugaredLogger

	planLimiter *rate.Limiter
}

// NewServer wires the store, broker and design runner from configuration.
// Without a database URL the in-memory store is used; without a Redis URL
// events stay process-local.
func NewServer(cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Warnw("redis broker unavailable, falling back to in-memory", "err", err)
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	s := &Server{
		Store:       st,
		Broker:      broker,
		Cfg:         cfg,
		Log:         log,
		planLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.PlansPerMinute/60), cfg.RateLimit.Burst),
	}
	s.Runner = &design.Runner{
		Log: log,
		Emit: func(planID, event string, data map[string]any) {
			if stage, ok := strings.CutSuffix(event, ".built"); ok {
				metrics.ModelBuilds.WithLabelValues(stage).Inc()
			}
			broker.Publish(planID, PlanEvent{Type: event, Data: data})
		},
		Observe: func(stage, status string, seconds float64) {
			metrics.Solves.WithLabelValues(stage, status).Inc()
			metrics.SolveDuration.WithLabelValues(stage, status).Observe(seconds)
		},
	}
	return s, nil
}
