// Package health exposes liveness and readiness probes for the shop API.
//
// Probes are polled by a single background goroutine. A probe has to fail a
// few polls in a row before it is reported as down, and pass again before it
// is reported as up, so a single slow database round trip does not bounce the
// pod out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ProbeFunc reports whether a single dependency is currently usable.
// A nil return means healthy.
type ProbeFunc func(ctx context.Context) error

type probeClass int

const (
	classLiveness probeClass = iota
	classReadiness
)

// failAfter and recoverAfter are the consecutive-result streaks required to
// flip a probe down or back up.
const (
	failAfter    = 3
	recoverAfter = 1
)

type probe struct {
	name    string
	class   probeClass
	timeout time.Duration
	fn      ProbeFunc

	failing int
	passing int
	down    bool
	lastErr error
}

// record advances the streak counters after one poll. Caller holds the
// service mutex.
func (p *probe) record(err error) {
	p.lastErr = err
	if err != nil {
		p.passing = 0
		p.failing++
		if p.failing >= failAfter {
			p.down = true
		}
		return
	}
	p.failing = 0
	p.passing++
	if p.passing >= recoverAfter {
		p.down = false
	}
}

// Service aggregates probes and serves the /livez and /readyz endpoints.
type Service struct {
	mu     sync.Mutex
	probes []*probe
	ready  bool
	stop   context.CancelFunc
}

// New returns a Service with no probes. The service reports not-ready until
// SetReady(true) is called after startup finishes.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a probe that decides whether the process should
// be restarted, for example a goroutine leak detector.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn ProbeFunc) {
	s.add(name, classLiveness, timeout, fn)
}

// AddReadinessCheck registers a probe that decides whether the process should
// receive traffic, for example a database or cache ping.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn ProbeFunc) {
	s.add(name, classReadiness, timeout, fn)
}

func (s *Service) add(name string, class probeClass, timeout time.Duration, fn ProbeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, &probe{
		name:    name,
		class:   class,
		timeout: timeout,
		fn:      fn,
	})
}

// Start launches the poller goroutine. Register all probes before calling it.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	go s.loop(ctx, interval)
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	s.pollAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

func (s *Service) pollAll(ctx context.Context) {
	s.mu.Lock()
	probes := make([]*probe, len(s.probes))
	copy(probes, s.probes)
	s.mu.Unlock()

	for _, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.fn(pctx)
		cancel()

		s.mu.Lock()
		p.record(err)
		s.mu.Unlock()
	}
}

// SetReady flips the manual readiness gate. Pass false at the start of a
// graceful shutdown so the load balancer drains the pod before the listener
// closes.
func (s *Service) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// IsReady reports whether the manual gate is open and every readiness probe
// is up.
func (s *Service) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return false
	}
	for _, p := range s.probes {
		if p.class == classReadiness && p.down {
			return false
		}
	}
	return true
}

// Stop cancels the poller goroutine. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

type probeReport struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

// LiveEndpoint serves /livez: 200 while every liveness probe is up, 503 with
// the failing probe names otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.report(w, classLiveness, true)
}

// ReadyEndpoint serves /readyz: 200 while the manual gate is open and every
// readiness probe is up, 503 with details otherwise.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	s.report(w, classReadiness, ready)
}

func (s *Service) report(w http.ResponseWriter, class probeClass, gate bool) {
	failures := make(map[string]string)

	s.mu.Lock()
	for _, p := range s.probes {
		if p.class != class || !p.down {
			continue
		}
		if p.lastErr != nil {
			failures[p.name] = p.lastErr.Error()
		} else {
			failures[p.name] = "probe is down"
		}
	}
	s.mu.Unlock()

	if !gate {
		failures["_gate"] = "service is not accepting traffic"
	}

	resp := probeReport{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "degraded"
		resp.Failures = failures
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
