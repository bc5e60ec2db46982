// Package engine executes a resolved Plan's node graph: it linearizes the
// DAG, dispatches HTTP_REQUEST/WAIT/ASSERTION nodes in order, and aggregates
// per-node outcomes into a Run result.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/ratelimit"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/resilience"
	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
	"github.com/griffin-open-source/griffin-sub001/internal/app/metrics"
)

// HTTPDoer is the minimal surface the engine needs from an HTTP client,
// satisfied by *http.Client, *ratelimit.RateLimitedClient, or a test double.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config parameterizes one Engine instance.
type Config struct {
	RequestTimeout time.Duration
	CircuitBreaker *resilience.CircuitBreaker
	Retry          resilience.RetryConfig
	Client         HTTPDoer
	Emitter        Emitter
	Logger         *logging.Logger
}

// Engine runs resolved Plan documents. One Engine can run many plans
// concurrently; it holds no per-run state.
type Engine struct {
	client  HTTPDoer
	timeout time.Duration
	cb      *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	emitter Emitter
	logger  *logging.Logger
}

// New builds an Engine from cfg, filling unset fields with safe defaults: a
// 30s per-request timeout, the package default circuit breaker and retry
// configs, a plain *http.Client wrapped in a generous rate limiter, and a
// no-op emitter.
func New(cfg Config) *Engine {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = resilience.New(resilience.DefaultConfig())
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Client == nil {
		cfg.Client = ratelimit.NewRateLimitedClient(&http.Client{}, ratelimit.DefaultConfig())
	}
	if cfg.Emitter == nil {
		cfg.Emitter = NoopEmitter{}
	}
	return &Engine{
		client:  cfg.Client,
		timeout: cfg.RequestTimeout,
		cb:      cfg.CircuitBreaker,
		retry:   cfg.Retry,
		emitter: cfg.Emitter,
		logger:  cfg.Logger,
	}
}

// Result is what Run returns: the execution's overall outcome plus one
// NodeResult per executed node, in execution order.
type Result struct {
	Success     bool
	Results     []run.NodeResult
	Errors      []string
	DurationMs  int64
}

// runContext carries the identifiers every emitted Event needs.
type runContext struct {
	runID  string
	planID string
	org    string
}

// Run executes p (already resolved: no $secret/$variable markers remain in
// headers or bodies) and returns the aggregate outcome. p.Nodes must form a
// DAG rooted at __START__; a cycle is a fatal pre-flight error reported
// before any node runs.
func (e *Engine) Run(ctx context.Context, runID string, p plan.Plan) (Result, error) {
	complete := core.StartObservation(ctx, metrics.ExecutionEngineHooks(), map[string]string{
		"organization": p.Organization,
		"plan":         p.Name,
	})
	result, err := e.run(ctx, runID, p)
	complete(err)
	return result, err
}

func (e *Engine) run(ctx context.Context, runID string, p plan.Plan) (Result, error) {
	order, err := linearize(p)
	if err != nil {
		return Result{}, err
	}

	rc := runContext{runID: runID, planID: p.ID, org: p.Organization}
	start := time.Now()
	e.emit(rc, "", EventPlanStart, nil)

	byID := make(map[string]plan.Node, len(p.Nodes))
	for _, n := range p.Nodes {
		byID[n.ID()] = n
	}

	responses := make(map[string]nodeResponse)
	var results []run.NodeResult
	var runErrors []string
	success := true

	for _, id := range order {
		if id == plan.StartSentinel || id == plan.EndSentinel {
			continue
		}
		node, ok := byID[id]
		if !ok {
			continue
		}

		e.emit(rc, id, EventNodeStart, nil)
		nodeStart := time.Now()

		var nodeErr error
		switch node.Type {
		case plan.NodeHTTPRequest:
			nodeErr = e.runHTTPRequest(ctx, rc, node.HTTPRequest, responses)
		case plan.NodeWait:
			e.emit(rc, id, EventWaitStart, map[string]interface{}{"duration_ms": node.Wait.DurationMs})
			nodeErr = e.runWait(ctx, node.Wait)
		case plan.NodeAssertion:
			nodeErr = e.runAssertion(rc, node.Assertion, responses)
		}

		duration := time.Since(nodeStart).Milliseconds()
		outcome := run.NodeResult{NodeID: id, Success: nodeErr == nil, DurationMs: duration}
		if nodeErr != nil {
			outcome.Error = nodeErr.Error()
			runErrors = append(runErrors, fmt.Sprintf("%s: %s", id, nodeErr.Error()))
			success = false
			e.emit(rc, id, EventError, map[string]interface{}{"error": nodeErr.Error()})
		}
		results = append(results, outcome)
		e.emit(rc, id, EventNodeEnd, map[string]interface{}{"success": outcome.Success, "duration_ms": duration})
	}

	totalDuration := time.Since(start).Milliseconds()
	e.emit(rc, "", EventPlanEnd, map[string]interface{}{"success": success, "duration_ms": totalDuration})

	return Result{
		Success:    success,
		Results:    results,
		Errors:     runErrors,
		DurationMs: totalDuration,
	}, nil
}

func (e *Engine) runWait(ctx context.Context, w *plan.WaitNode) error {
	d := time.Duration(w.DurationMs) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) runAssertion(rc runContext, a *plan.AssertionNode, responses map[string]nodeResponse) error {
	var failures []string
	for _, assertion := range a.Assertions {
		ok, actual, err := evaluateAssertion(responses, assertion)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		e.emit(rc, a.ID, EventAssertionResult, map[string]interface{}{
			"path":      assertion.Path,
			"predicate": string(assertion.Predicate),
			"actual":    actual,
			"passed":    ok,
		})
		if !ok {
			failures = append(failures, apperrors.AssertionFailed(
				joinPath(assertion.Path), string(assertion.Predicate), assertion.Expected,
			).Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d assertion(s) failed: %s", len(failures), failures[0])
	}
	return nil
}

func (e *Engine) runHTTPRequest(ctx context.Context, rc runContext, n *plan.HTTPRequestNode, responses map[string]nodeResponse) error {
	base, _ := n.Base.(string)
	url := base + n.Path

	var lastResp nodeResponse
	var lastErr error
	attempt := 0

	_ = resilience.Retry(ctx, e.retry, func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		body, err := encodeBody(n.Body)
		if err != nil {
			lastErr = apperrors.InvalidFormat("body", "JSON-serializable value")
			return nil
		}

		req, err := http.NewRequestWithContext(reqCtx, string(n.Method), url, bytes.NewReader(body))
		if err != nil {
			lastErr = apperrors.TransportRefused(err)
			return nil
		}
		for k, v := range n.Headers {
			req.Header.Set(k, toString(v))
		}

		if attempt > 1 {
			e.emit(rc, n.ID, EventHTTPRetry, map[string]interface{}{"attempt": attempt})
		}
		e.emit(rc, n.ID, EventHTTPRequest, map[string]interface{}{"method": string(n.Method), "url": url, "attempt": attempt})

		cbErr := e.cb.Execute(reqCtx, func() error {
			resp, doErr := e.client.Do(req)
			if doErr != nil {
				return doErr
			}
			defer resp.Body.Close()
			raw, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return readErr
			}

			headers := make(map[string]string, len(resp.Header))
			for k := range resp.Header {
				headers[k] = resp.Header.Get(k)
			}
			lastResp = nodeResponse{StatusCode: resp.StatusCode, Headers: headers, RawBody: raw, Format: n.ResponseFormat}

			if resp.StatusCode >= 500 {
				return apperrors.TransportStatus(resp.StatusCode, string(raw))
			}
			if resp.StatusCode >= 400 {
				lastErr = apperrors.TransportStatus(resp.StatusCode, string(raw))
			}
			return nil
		})

		if cbErr != nil {
			lastErr = classifyTransportError(cbErr)
			return cbErr
		}
		if lastResp.StatusCode < 400 {
			lastErr = nil
		}
		return nil
	})

	e.emit(rc, n.ID, EventHTTPResponse, map[string]interface{}{"status_code": lastResp.StatusCode, "attempts": attempt})

	responses[n.ID] = lastResp
	if lastErr != nil {
		return lastErr
	}
	return nil
}

func classifyTransportError(err error) error {
	if svcErr := apperrors.GetServiceError(err); svcErr != nil {
		return svcErr
	}
	return apperrors.TransportRefused(err)
}

func encodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if s, ok := body.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(body)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func (e *Engine) emit(rc runContext, nodeID string, t EventType, data map[string]interface{}) {
	e.emitter.Emit(Event{
		Type:      t,
		RunID:     rc.runID,
		PlanID:    rc.planID,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// NewRunID generates a fresh identifier for one execution of a Plan.
func NewRunID() string {
	return uuid.NewString()
}
