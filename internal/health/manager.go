package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds each diagnostic when the Manager has no other
// timeout set.
const DefaultCheckTimeout = 5 * time.Second

// Manager runs diagnostics in parallel, each under its own timeout.
type Manager struct {
	mu       sync.Mutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a Manager using DefaultCheckTimeout.
func NewManager() *Manager {
	return &Manager{timeout: DefaultCheckTimeout}
}

// WithTimeout sets the per-check timeout. Non-positive values are ignored.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	if timeout > 0 {
		m.mu.Lock()
		m.timeout = timeout
		m.mu.Unlock()
	}
	return m
}

// AddChecker registers c. A later checker with the same name replaces it.
func (m *Manager) AddChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.checkers {
		if existing.Name() == c.Name() {
			m.checkers[i] = c
			return
		}
	}
	m.checkers = append(m.checkers, c)
}

// NamedResult pairs a result with the check that produced it.
type NamedResult struct {
	Name   string `json:"name" yaml:"name"`
	Result `yaml:",inline"`
}

// Report is the outcome of one Manager run, ordered by check name.
type Report struct {
	Status  Status        `json:"status" yaml:"status"`
	Results []NamedResult `json:"checks" yaml:"checks"`
}

// Failed returns the names of the unhealthy checks.
func (r *Report) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if res.Status == StatusUnhealthy {
			names = append(names, res.Name)
		}
	}
	return names
}

// Run executes every check and reports the worst status seen. A check that
// returns nil counts as unhealthy.
func (m *Manager) Run(ctx context.Context) *Report {
	m.mu.Lock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.Unlock()

	results := make([]NamedResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = NamedResult{Name: c.Name(), Result: *runCheck(ctx, c, timeout)}
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := &Report{Status: StatusHealthy, Results: results}
	for _, r := range results {
		report.Status = Worst(report.Status, r.Status)
	}
	return report
}

func runCheck(ctx context.Context, c Checker, timeout time.Duration) *Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := c.Check(ctx)
	if res == nil {
		res = Unhealthy("check returned no result")
	}
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	return res
}
