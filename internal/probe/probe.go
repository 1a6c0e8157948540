package probe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/kpi"
)

const defaultTimeout = 5 * time.Second

const (
	StatusUp       = "up"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

type Result struct {
	Name         string
	Type         string
	Status       string
	ResponseTime time.Duration
	Error        string
}

type Checker interface {
	Check(ctx context.Context, p config.ProbeConfig) Result
}

// Recorder receives one observation per probe run. *metrics.Collector satisfies it.
type Recorder interface {
	RecordProbe(name, probeType string, up bool, d time.Duration)
}

// Runner checks the configured dependencies and turns a round into the health source.
type Runner struct {
	probes   []config.ProbeConfig
	checkers map[string]Checker
	recorder Recorder
	logger   *zap.Logger

	mu         sync.Mutex
	lastUptime *float64
}

func NewRunner(probes []config.ProbeConfig, recorder Recorder, logger *zap.Logger) *Runner {
	return &Runner{
		probes: probes,
		checkers: map[string]Checker{
			"http": NewHTTPChecker(),
			"dns":  NewDNSChecker(),
			"tls":  NewTLSChecker(),
		},
		recorder: recorder,
		logger:   logger,
	}
}

// Run executes every probe concurrently. The uptime of the previous round is carried as
// the trend baseline.
func (r *Runner) Run(ctx context.Context) kpi.HealthSource {
	results := make([]Result, len(r.probes))

	var wg sync.WaitGroup
	for i, p := range r.probes {
		wg.Add(1)
		go func(i int, p config.ProbeConfig) {
			defer wg.Done()

			checker, ok := r.checkers[p.Type]
			if !ok {
				results[i] = Result{Name: p.Name, Type: p.Type, Status: StatusDown, Error: "unsupported probe type " + p.Type}
				return
			}

			timeout := p.Timeout
			if timeout <= 0 {
				timeout = defaultTimeout
			}
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = checker.Check(pctx, p)
		}(i, p)
	}
	wg.Wait()

	for _, res := range results {
		if r.recorder != nil {
			r.recorder.RecordProbe(res.Name, res.Type, res.Status == StatusUp, res.ResponseTime)
		}
		if res.Status != StatusUp {
			r.logger.Warn("Dependency probe failed",
				zap.String("probe", res.Name),
				zap.String("type", res.Type),
				zap.String("error", res.Error),
			)
		}
	}

	source := toHealthSource(results, r.probes)

	r.mu.Lock()
	source.PreviousUptime = r.lastUptime
	r.lastUptime = source.UptimePercentage
	r.mu.Unlock()

	return source
}

func toHealthSource(results []Result, probes []config.ProbeConfig) kpi.HealthSource {
	source := kpi.HealthSource{Probes: make([]kpi.ProbeResult, 0, len(results))}
	if len(results) == 0 {
		return source
	}

	up := 0
	for _, res := range results {
		if res.Status == StatusUp {
			up++
		}
		source.Probes = append(source.Probes, kpi.ProbeResult{
			Name:           res.Name,
			Status:         res.Status,
			ResponseTimeMs: float64(res.ResponseTime.Microseconds()) / 1000,
			Error:          res.Error,
		})
	}

	uptime := float64(up) / float64(len(results)) * 100
	score := HealthScore(results, probes)
	source.UptimePercentage = &uptime
	source.Score = &score
	return source
}

// HealthScore starts at 100 and subtracts each failed probe's share of the total weight.
func HealthScore(results []Result, probes []config.ProbeConfig) float64 {
	weights := make(map[string]int, len(probes))
	total := 0
	for _, p := range probes {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		weights[p.Name] = w
		total += w
	}
	if total == 0 {
		return 100
	}

	score := 100.0
	for _, res := range results {
		if res.Status != StatusUp {
			score -= float64(weights[res.Name]) / float64(total) * 100
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}
