package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/greengrocer/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyProbe describes one dependency checked during readiness.
type DependencyProbe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type probeHealthRepository struct {
	probes         []DependencyProbe
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository constructs a HealthRepository that runs the given
// dependency probes concurrently and folds them into one report.
func NewProbeHealthRepository(probes []DependencyProbe, clock func() time.Time) (HealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one probe is required")
	}
	for _, probe := range probes {
		if probe.Name == "" || probe.Check == nil {
			return nil, errors.New("health repository: probe requires name and check")
		}
	}
	if clock == nil {
		clock = time.Now
	}

	repo := &probeHealthRepository{
		probes:         make([]DependencyProbe, len(probes)),
		defaultTimeout: defaultProbeTimeout,
		now:            clock,
	}
	copy(repo.probes, probes)
	return repo, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]domain.HealthCheck, len(r.probes))
	)

	wg.Add(len(r.probes))
	for _, probe := range r.probes {
		probe := probe
		go func() {
			defer wg.Done()

			timeout := probe.Timeout
			if timeout <= 0 {
				timeout = r.defaultTimeout
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := r.now()
			err := probe.Check(probeCtx)
			end := r.now()

			check := domain.HealthCheck{
				Status:    domain.HealthStatusOK,
				Detail:    "ok",
				Latency:   end.Sub(start),
				CheckedAt: end,
			}
			switch {
			case err == nil:
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				check.Status = domain.HealthStatusError
				check.Detail = err.Error()
			default:
				check.Status = domain.HealthStatusDegraded
				check.Detail = err.Error()
			}

			mu.Lock()
			results[probe.Name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, check := range results {
		if check.Status == domain.HealthStatusError {
			status = domain.HealthStatusError
			break
		}
		if check.Status == domain.HealthStatusDegraded {
			status = domain.HealthStatusDegraded
		}
	}

	return domain.HealthReport{
		Status:      status,
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}
