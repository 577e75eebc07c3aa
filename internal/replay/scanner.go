// Package replay re-derives outcome ranges from revealed seed material.
// Auditors use it after a rotation to sweep a whole nonce sequence and
// check what the chain actually produced.
package replay

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/games"
)

var (
	ErrInvalidRange  = errors.New("invalid nonce range")
	ErrRangeTooLarge = errors.New("nonce range exceeds scan cap")
)

// MaxRange bounds a single scan so one request cannot pin every core
// indefinitely.
const MaxRange = 10_000_000

const batchSize = 8192

// Op selects how a metric is matched against the filter values.
type Op string

const (
	OpEqual        Op = "eq"
	OpGreater      Op = "gt"
	OpGreaterEqual Op = "ge"
	OpLess         Op = "lt"
	OpLessEqual    Op = "le"
	OpBetween      Op = "between"
)

// Filter narrows a scan to outcomes of interest. A nil filter matches
// everything.
type Filter struct {
	Op        Op      `json:"op"`
	Value     float64 `json:"value"`
	Value2    float64 `json:"value2,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

func (f *Filter) matches(metric float64) bool {
	if f == nil {
		return true
	}
	tol := f.Tolerance
	switch f.Op {
	case OpEqual:
		return abs(metric-f.Value) <= tol
	case OpGreater:
		return metric > f.Value+tol
	case OpGreaterEqual:
		return metric >= f.Value-tol
	case OpLess:
		return metric < f.Value-tol
	case OpLessEqual:
		return metric <= f.Value+tol
	case OpBetween:
		return metric >= f.Value-tol && metric <= f.Value2+tol
	default:
		return false
	}
}

// Request describes one scan over a contiguous nonce range. The server
// seed here is a revealed secret, not a commitment.
type Request struct {
	GameID     string         `json:"game"`
	Seeds      games.Seeds    `json:"seeds"`
	NonceStart uint64         `json:"nonce_start"`
	NonceEnd   uint64         `json:"nonce_end"`
	Params     map[string]any `json:"params,omitempty"`
	Filter     *Filter        `json:"filter,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	TimeoutMs  int            `json:"timeout_ms,omitempty"`
}

// Hit is one nonce whose metric passed the filter.
type Hit struct {
	Nonce  uint64  `json:"nonce"`
	Metric float64 `json:"metric"`
}

// Summary aggregates the matched metrics.
type Summary struct {
	Evaluated  uint64  `json:"evaluated"`
	HitsFound  int     `json:"hits_found"`
	MinMetric  float64 `json:"min_metric"`
	MaxMetric  float64 `json:"max_metric"`
	MeanMetric float64 `json:"mean_metric"`
	TimedOut   bool    `json:"timed_out,omitempty"`
}

// Result is the complete scan output. Hits are ordered by nonce and
// truncated to the request limit.
type Result struct {
	Hits    []Hit   `json:"hits"`
	Summary Summary `json:"summary"`
}

// Scanner fans a nonce range out across the CPUs. Derivation is pure,
// so workers share nothing but the job feed.
type Scanner struct {
	games   *games.Registry
	workers int
}

// NewScanner sizes the worker pool to the machine.
func NewScanner(gameReg *games.Registry) *Scanner {
	return &Scanner{games: gameReg, workers: runtime.GOMAXPROCS(0)}
}

type span struct{ start, end uint64 }

// Scan evaluates every nonce in [NonceStart, NonceEnd] and returns the
// hits. A timeout yields the partial result with TimedOut set rather
// than an error.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	game, err := s.games.Get(req.GameID)
	if err != nil {
		return nil, err
	}
	if req.NonceEnd < req.NonceStart {
		return nil, fmt.Errorf("%w: %d..%d", ErrInvalidRange, req.NonceStart, req.NonceEnd)
	}
	if req.NonceEnd-req.NonceStart >= MaxRange {
		return nil, fmt.Errorf("%w: %d nonces, cap %d", ErrRangeTooLarge, req.NonceEnd-req.NonceStart+1, MaxRange)
	}
	// Validate params once up front so a bad request fails fast instead
	// of silently matching nothing.
	if _, err := game.Evaluate(req.Seeds, req.NonceStart, req.Params); err != nil {
		return nil, err
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	jobs := make(chan span, s.workers)
	perWorker := make([][]Hit, s.workers)
	var evaluated atomic.Uint64
	var timedOut atomic.Bool

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for cur := req.NonceStart; ; {
			end := cur + batchSize - 1
			if end > req.NonceEnd || end < cur { // overflow guard
				end = req.NonceEnd
			}
			select {
			case jobs <- span{cur, end}:
			case <-gctx.Done():
				timedOut.Store(true)
				return nil
			}
			if end == req.NonceEnd {
				return nil
			}
			cur = end + 1
		}
	})

	floatCount := game.FloatCount(req.Params)
	for i := 0; i < s.workers; i++ {
		i := i
		g.Go(func() error {
			buf := make([]float64, floatCount)
			for job := range jobs {
				for nonce := job.start; nonce <= job.end; nonce++ {
					select {
					case <-gctx.Done():
						timedOut.Store(true)
						return nil
					default:
					}
					engine.FloatsInto(buf, req.Seeds.Server, req.Seeds.Client, nonce, 0, floatCount)
					result, err := game.EvaluateWithFloats(buf, req.Params)
					if err != nil {
						continue
					}
					evaluated.Add(1)
					if req.Filter.matches(result.Metric) {
						perWorker[i] = append(perWorker[i], Hit{Nonce: nonce, Metric: result.Metric})
					}
					if nonce == job.end {
						break
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []Hit
	for _, hs := range perWorker {
		hits = append(hits, hs...)
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Nonce < hits[b].Nonce })

	summary := summarize(hits, evaluated.Load(), timedOut.Load())
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return &Result{Hits: hits, Summary: summary}, nil
}

func summarize(hits []Hit, evaluated uint64, timedOut bool) Summary {
	s := Summary{Evaluated: evaluated, HitsFound: len(hits), TimedOut: timedOut}
	if len(hits) == 0 {
		return s
	}
	s.MinMetric = hits[0].Metric
	s.MaxMetric = hits[0].Metric
	sum := 0.0
	for _, h := range hits {
		if h.Metric < s.MinMetric {
			s.MinMetric = h.Metric
		}
		if h.Metric > s.MaxMetric {
			s.MaxMetric = h.Metric
		}
		sum += h.Metric
	}
	s.MeanMetric = sum / float64(len(hits))
	return s
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
