// Package telemetry reports balance snapshots to advisory HTTP endpoints.
// Reporting is fire-and-forget: nothing here ever blocks the engine.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/tuning"
)

type Config struct {
	Endpoints     []string
	SessionID     string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// ReportsPerSecond and Burst throttle Report; excess reports are dropped.
	ReportsPerSecond float64
	Burst            int
	Logger           *log.Logger
}

// ConfigFrom builds a Config from the tuning telemetry block.
func ConfigFrom(t tuning.Telemetry) Config {
	return Config{
		Endpoints:        t.Endpoints,
		BatchSize:        t.BatchSize,
		FlushInterval:    time.Duration(t.FlushIntervalMs) * time.Millisecond,
		HTTPTimeout:      time.Duration(t.HTTPTimeoutMs) * time.Millisecond,
		ReportsPerSecond: t.ReportsPerSecond,
		Burst:            t.Burst,
	}
}

// Payload is the body POSTed to each endpoint.
type Payload struct {
	MEP       float64 `json:"mep"`
	TotalMEP  float64 `json:"totalMep"`
	Rebirths  int     `json:"rebirths"`
	SessionID string  `json:"sessionId"`
	At        int64   `json:"at"`
}

type Stats struct {
	QueueDepth        int
	SentTotal         uint64
	FlushFailTotal    uint64
	QueueDroppedTotal uint64
	ThrottledTotal    uint64
	CoalescedTotal    uint64
}

type Reporter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	ch   chan Payload
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	sent      atomic.Uint64
	flushFail atomic.Uint64
	dropped   atomic.Uint64
	throttled atomic.Uint64
	coalesced atomic.Uint64
}

func New(cfg Config) (*Reporter, error) {
	eps := make([]string, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		if e = strings.TrimSpace(e); e != "" {
			eps = append(eps, e)
		}
	}
	if len(eps) == 0 {
		return nil, fmt.Errorf("telemetry: no endpoints")
	}
	cfg.Endpoints = eps
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.ReportsPerSecond > 0 {
		limit = rate.Limit(cfg.ReportsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	r := &Reporter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		ch:         make(chan Payload, 256),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
	return r, nil
}

func (r *Reporter) SessionID() string { return r.cfg.SessionID }

// Close flushes what is queued and stops the loop.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
	})
	return nil
}

func (r *Reporter) Stats() Stats {
	return Stats{
		QueueDepth:        len(r.ch),
		SentTotal:         r.sent.Load(),
		FlushFailTotal:    r.flushFail.Load(),
		QueueDroppedTotal: r.dropped.Load(),
		ThrottledTotal:    r.throttled.Load(),
		CoalescedTotal:    r.coalesced.Load(),
	}
}

// Report queues a snapshot of s. It matches game.Config.OnSaved.
func (r *Reporter) Report(at time.Time, s state.PlayerState) {
	if r == nil || r.closed.Load() {
		return
	}
	if !r.limiter.Allow() {
		r.throttled.Add(1)
		return
	}
	p := Payload{
		MEP:       s.Balance,
		TotalMEP:  s.LifetimeEarned,
		Rebirths:  s.RebirthCount,
		SessionID: r.cfg.SessionID,
		At:        at.UnixMilli(),
	}
	select {
	case r.ch <- p:
	default:
		r.dropped.Add(1)
		r.printf("telemetry queue full; drop")
	}
}

// loop coalesces queued reports: a flush sends only the newest payload. A
// failed flush keeps it pending until it is delivered or superseded.
func (r *Reporter) loop() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	var (
		pending *Payload
		n       int
	)
	flush := func() {
		if pending == nil {
			return
		}
		if err := r.send(*pending); err != nil {
			r.flushFail.Add(1)
			r.printf("telemetry flush failed err=%v", err)
			return
		}
		r.sent.Add(1)
		pending = nil
		n = 0
	}

	for {
		select {
		case p, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			if pending != nil {
				r.coalesced.Add(1)
			}
			pending = &p
			n++
			if n >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *Reporter) send(p Payload) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var firstErr error
	for _, ep := range r.cfg.Endpoints {
		if err := r.post(ep, buf); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", ep, err)
		}
	}
	return firstErr
}

func (r *Reporter) post(endpoint string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (r *Reporter) printf(format string, args ...any) {
	if r != nil && r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
