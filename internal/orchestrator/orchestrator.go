// Package orchestrator drives the logo generation pipeline: it walks the
// execution plan stage by stage, executes and retries agents, maintains the
// run's shared memory and message queue, and emits one progress event per
// agent status change.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/observability"
	"github.com/logoforge-dev/logoforge/internal/plan"
	pkgobs "github.com/logoforge-dev/logoforge/pkg/observability"
)

// ErrAborted marks a run cancelled through Abort.
var ErrAborted = errors.New("run aborted")

// ErrConfiguration marks a static wiring defect: a dependency missing from
// the plan, or input that cannot be assembled from shared memory. Never
// retried.
var ErrConfiguration = errors.New("configuration error")

// ProgressStatus is the status carried by a progress event.
type ProgressStatus string

const (
	StatusWorking   ProgressStatus = "working"
	StatusCompleted ProgressStatus = "completed"
	StatusFailed    ProgressStatus = "failed"
)

// ProgressEvent is one structured progress notification, emitted on every
// agent status change.
type ProgressEvent struct {
	Stage           string
	StageName       string
	Agent           string
	Status          ProgressStatus
	Progress        int
	Message         string
	OverallProgress int
}

// ProgressFunc receives progress events. It is called synchronously from the
// orchestrator and must not block for long.
type ProgressFunc func(ProgressEvent)

// StageDone is reported once per settled stage.
type StageDone struct {
	Stage    plan.Stage
	Duration time.Duration
	Success  bool
	Next     *plan.Stage
}

// Options configures a run.
type Options struct {
	// Defs provides per-agent definitions; agents without an entry get a
	// default Def carrying only their ID.
	Defs map[string]agent.Def

	// RetryFailedAgents enables bounded retry of failed agents.
	RetryFailedAgents bool

	// MaxRetries bounds retries per agent when RetryFailedAgents is set.
	MaxRetries int

	// InitialRetryDelay is the backoff before the first retry; it doubles
	// on each subsequent attempt.
	InitialRetryDelay time.Duration

	Debug bool

	// OnProgress receives per-agent progress events.
	OnProgress ProgressFunc

	// OnStageDone receives a notification when a stage settles.
	OnStageDone func(StageDone)
}

// RunError records one failed agent execution.
type RunError struct {
	Stage string `json:"stage,omitempty"`
	Agent string `json:"agent,omitempty"`
	Err   error  `json:"-"`
}

func (e *RunError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("agent %s (stage %s): %v", e.Agent, e.Stage, e.Err)
	}
	return e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// Result is the outcome of a run. Execute never panics or returns a Go error;
// every failure path resolves to a Result with Success false and a populated
// Errors list, preserving logs for diagnosis.
type Result struct {
	Success   bool
	SessionID string

	// Final assets, pulled from well-known shared-memory keys.
	Logo      *agent.Output
	Variants  *agent.Output
	Guideline *agent.Output
	Package   *agent.Output

	Metrics  agent.Metrics
	PerAgent map[string]agent.Metrics
	Errors   []*RunError
	Logs     []string
	Duration time.Duration
}

// Orchestrator owns one generation run.
type Orchestrator struct {
	sessionID string
	brief     agent.Brief
	plan      *plan.Plan
	builders  map[string]plan.InputBuilder
	agents    map[string]agent.Agent
	opts      Options

	memory *Memory

	mu              sync.Mutex
	queue           []agent.Message
	completed       map[string]bool // agent IDs
	failed          map[string]bool
	executing       map[string]bool
	completedStages map[string]bool
	attempts        map[string]int // executions per agent
	logs            []string
	errs            []*RunError
	lastOverall     int

	abortMu     sync.Mutex
	abortReason string
	abortCancel context.CancelFunc
}

// New constructs an orchestrator for one run. Agents are instantiated from the
// registry, one per agent ID named by the plan. Plan authoring defects and
// unknown agent types surface here, before anything executes.
func New(reg *agent.Registry, p *plan.Plan, brief agent.Brief, opts Options) (*Orchestrator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialRetryDelay <= 0 {
		opts.InitialRetryDelay = 500 * time.Millisecond
	}

	agents := make(map[string]agent.Agent)
	for _, id := range p.AgentIDs() {
		def := opts.Defs[id]
		if def.ID == "" {
			def.ID = id
		}
		a, err := reg.Create(id, def)
		if err != nil {
			return nil, fmt.Errorf("create agent %s: %w", id, err)
		}
		agents[id] = a
	}

	return &Orchestrator{
		sessionID:       uuid.New().String(),
		brief:           brief,
		plan:            p,
		builders:        plan.InputBuilders(),
		agents:          agents,
		opts:            opts,
		memory:          NewMemory(),
		completed:       make(map[string]bool),
		failed:          make(map[string]bool),
		executing:       make(map[string]bool),
		completedStages: make(map[string]bool),
		attempts:        make(map[string]int),
	}, nil
}

// SessionID returns the run's session identifier.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Plan returns the execution plan for this run.
func (o *Orchestrator) Plan() *plan.Plan { return o.plan }

// SetInputBuilders overrides the input-assembly table. Intended for tests and
// custom plans; the default table covers the logo pipeline.
func (o *Orchestrator) SetInputBuilders(b map[string]plan.InputBuilder) { o.builders = b }

// Abort cancels the run cooperatively: the in-flight Execute resolves with a
// failed Result carrying an "aborted" error entry. Agents mid-flight are
// abandoned; their outputs, if any, are not trusted.
func (o *Orchestrator) Abort(reason string) {
	o.abortMu.Lock()
	defer o.abortMu.Unlock()
	if o.abortReason == "" {
		o.abortReason = reason
	}
	if o.abortCancel != nil {
		o.abortCancel()
	}
}

// Execute drives the plan to completion. All failure paths resolve into the
// returned Result; Execute itself never panics and has no error return.
func (o *Orchestrator) Execute(ctx context.Context) *Result {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.abortMu.Lock()
	o.abortCancel = cancel
	aborted := o.abortReason != ""
	o.abortMu.Unlock()
	if aborted {
		// Abort arrived before Execute installed its cancel func.
		cancel()
	}

	ctx, span := observability.StartSpanWithOtel(ctx, "orchestrator.execute",
		trace.WithAttributes(
			attribute.String("session.id", o.sessionID),
			attribute.Int("plan.stages", len(o.plan.Stages)),
		),
	)
	defer span.End()

	if err := o.initializeAgents(ctx); err != nil {
		o.recordError("", "", err)
		return o.failedResult(start)
	}

	for i := range o.plan.Stages {
		st := &o.plan.Stages[i]

		if err := o.checkAborted(ctx); err != nil {
			o.recordError(st.ID, "", err)
			return o.failedResult(start)
		}

		if err := o.checkDependencies(st); err != nil {
			o.recordError(st.ID, "", err)
			return o.failedResult(start)
		}

		stageStart := time.Now()
		stageErr := o.executeStage(ctx, st)
		o.drainQueue(st.ID)

		ok := stageErr == nil
		if stageErr != nil && st.NonCritical {
			if o.applyFallback(st) {
				o.logf("[Orchestrator] Stage %s failed, continuing with fallback output", st.ID)
				ok = true
				stageErr = nil
			}
		}

		pkgobs.RecordStageDuration(st.ID, time.Since(stageStart))

		if ok {
			o.mu.Lock()
			o.completedStages[st.ID] = true
			o.mu.Unlock()
		}

		if o.opts.OnStageDone != nil {
			done := StageDone{Stage: *st, Duration: time.Since(stageStart), Success: ok}
			if i+1 < len(o.plan.Stages) {
				done.Next = &o.plan.Stages[i+1]
			}
			o.opts.OnStageDone(done)
		}

		if stageErr != nil {
			return o.failedResult(start)
		}
	}

	return o.assembleResult(start)
}

// initializeAgents calls Initialize on every agent with the shared run context.
func (o *Orchestrator) initializeAgents(ctx context.Context) error {
	rc := &agent.RunContext{
		SessionID: o.sessionID,
		Brief:     o.brief,
		StartTime: time.Now(),
		Debug:     o.opts.Debug,
		Memory:    o.memory,
	}
	for _, id := range o.plan.AgentIDs() {
		if err := o.agents[id].Initialize(ctx, rc); err != nil {
			return fmt.Errorf("initialize agent %s: %w", id, err)
		}
	}
	return nil
}

// checkDependencies verifies every dependency stage has completed. A miss here
// is a plan authoring bug, not a runtime condition to retry.
func (o *Orchestrator) checkDependencies(st *plan.Stage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, dep := range st.DependsOn {
		if !o.completedStages[dep] {
			return fmt.Errorf("%w: stage %q requires incomplete stage %q", ErrConfiguration, st.ID, dep)
		}
	}
	return nil
}

// executeStage runs the stage's agents, concurrently when the stage is marked
// parallel and names more than one agent. The stage is a join point: it
// settles only when every agent has settled.
func (o *Orchestrator) executeStage(ctx context.Context, st *plan.Stage) error {
	if st.Parallel && len(st.Agents) > 1 {
		var g errgroup.Group
		for _, id := range st.Agents {
			id := id
			g.Go(func() error {
				return o.executeAgent(ctx, st, o.agents[id])
			})
		}
		return g.Wait()
	}

	for _, id := range st.Agents {
		if err := o.executeAgent(ctx, st, o.agents[id]); err != nil {
			return err
		}
	}
	return nil
}

// executeAgent runs one agent with retry policy. With RetryFailedAgents set
// and MaxRetries=N, the agent executes at most N+1 times; a success on any
// attempt completes it.
func (o *Orchestrator) executeAgent(ctx context.Context, st *plan.Stage, a agent.Agent) error {
	id := a.ID()

	ctx, span := observability.StartSpanWithOtel(ctx, "orchestrator.agent."+id,
		trace.WithAttributes(
			attribute.String("stage.id", st.ID),
			attribute.String("agent.id", id),
		),
	)
	defer span.End()

	o.setExecuting(id)
	o.emitProgress(st, id, StatusWorking, 0, "starting")

	builder, ok := o.builders[id]
	if !ok {
		err := fmt.Errorf("%w: no input builder for agent %q", ErrConfiguration, id)
		o.settleFailure(st, id, err)
		return err
	}
	input, err := builder(o.brief, o.memory)
	if err != nil {
		// Input-assembly failures are wiring defects, never retried.
		err = fmt.Errorf("%w: %v", ErrConfiguration, err)
		o.settleFailure(st, id, err)
		return err
	}

	maxAttempts := 1
	if o.opts.RetryFailedAgents {
		maxAttempts = 1 + o.opts.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := o.checkAborted(ctx); err != nil {
			o.settleFailure(st, id, err)
			return err
		}

		o.mu.Lock()
		o.attempts[id]++
		o.mu.Unlock()

		execStart := time.Now()
		out, execErr := a.Execute(ctx, input)
		pkgobs.RecordAgentExecution(id, time.Since(execStart))

		if execErr == nil && out != nil {
			out.AgentID = id
			if out.Produced.IsZero() {
				out.Produced = time.Now()
			}
			o.memory.Set(out)
			o.enqueue(agent.Message{
				From:      id,
				To:        agent.Broadcast,
				Type:      "completed",
				Payload:   out.Kind,
				Timestamp: time.Now(),
			})
			o.setCompleted(id)
			o.emitProgress(st, id, StatusCompleted, 100, "completed")
			return nil
		}

		if execErr != nil && ctx.Err() != nil {
			// The run was aborted mid-execution; the agent's error is just
			// the cancellation surfacing.
			err := o.abortError(ctx)
			o.settleFailure(st, id, err)
			return err
		}

		if execErr == nil {
			execErr = fmt.Errorf("agent %s returned no output", id)
		}
		lastErr = execErr
		o.logf("[Orchestrator] Agent %s attempt %d/%d failed: %v", id, attempt, maxAttempts, execErr)

		if attempt < maxAttempts {
			pkgobs.RecordAgentRetry(id)
			delay := o.opts.InitialRetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				err := o.abortError(ctx)
				o.settleFailure(st, id, err)
				return err
			case <-time.After(delay):
			}
		}
	}

	o.settleFailure(st, id, lastErr)
	return &RunError{Stage: st.ID, Agent: id, Err: lastErr}
}

// applyFallback substitutes fallback outputs for the stage's failed agents.
// Returns true when every failed agent had a fallback available.
func (o *Orchestrator) applyFallback(st *plan.Stage) bool {
	o.mu.Lock()
	var failed []string
	for _, id := range st.Agents {
		if o.failed[id] {
			failed = append(failed, id)
		}
	}
	o.mu.Unlock()

	for _, id := range failed {
		out := plan.FallbackOutput(id, o.brief)
		if out == nil {
			return false
		}
		o.memory.Set(out)
		o.logf("[Orchestrator] Warning: using fallback output for agent %s", id)
	}
	return true
}

// drainQueue processes and clears the stage-scoped message queue, so no stage
// observes another stage's partial queue state.
func (o *Orchestrator) drainQueue(stageID string) {
	o.mu.Lock()
	msgs := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, m := range msgs {
		o.logf("[Orchestrator] Stage %s message: %s -> %s (%s)", stageID, m.From, m.To, m.Type)
	}
}

func (o *Orchestrator) enqueue(m agent.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, m)
}

// assembleResult pulls the final assets from well-known shared-memory keys.
// A missing required key fails the whole run.
func (o *Orchestrator) assembleResult(start time.Time) *Result {
	required := map[string]**agent.Output{}
	res := o.baseResult(start)

	required[plan.AgentSVGCheck] = &res.Logo
	required[plan.AgentVariants] = &res.Variants
	required[plan.AgentGuideline] = &res.Guideline
	required[plan.AgentPackaging] = &res.Package

	for id, slot := range required {
		out, ok := o.memory.Output(id)
		if !ok {
			o.recordError("", id, fmt.Errorf("missing required output %q", id))
			return o.failedResult(start)
		}
		*slot = out
	}

	res.Success = true
	return res
}

func (o *Orchestrator) failedResult(start time.Time) *Result {
	res := o.baseResult(start)
	res.Success = false
	return res
}

// baseResult aggregates metrics and logs shared by both outcomes.
func (o *Orchestrator) baseResult(start time.Time) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := &Result{
		SessionID: o.sessionID,
		PerAgent:  make(map[string]agent.Metrics),
		Errors:    append([]*RunError(nil), o.errs...),
		Logs:      append([]string(nil), o.logs...),
		Duration:  time.Since(start),
	}
	for id, a := range o.agents {
		m := a.Metrics()
		if n := o.attempts[id]; n > 0 {
			m.RetryCount = n - 1
		}
		res.PerAgent[id] = m
		res.Metrics.Add(m)
	}
	// Aggregate retry count is the sum of per-agent retries, already added.
	return res
}

// Agent state transitions. completed, failed and executing stay disjoint: an
// agent ID belongs to exactly one set at any instant.

func (o *Orchestrator) setExecuting(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.completed, id)
	delete(o.failed, id)
	o.executing[id] = true
	o.setAgentStatus(id, agent.StatusExecuting)
}

func (o *Orchestrator) setCompleted(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.executing, id)
	delete(o.failed, id)
	o.completed[id] = true
	o.setAgentStatus(id, agent.StatusCompleted)
}

func (o *Orchestrator) setFailed(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.executing, id)
	delete(o.completed, id)
	o.failed[id] = true
	o.setAgentStatus(id, agent.StatusFailed)
}

// setAgentStatus mirrors the transition onto the agent when it supports it.
// Called with o.mu held.
func (o *Orchestrator) setAgentStatus(id string, s agent.Status) {
	type setter interface{ SetStatus(agent.Status) }
	if st, ok := o.agents[id].(setter); ok {
		st.SetStatus(s)
	}
}

func (o *Orchestrator) settleFailure(st *plan.Stage, id string, err error) {
	o.setFailed(id)
	o.recordError(st.ID, id, err)
	o.emitProgress(st, id, StatusFailed, 0, err.Error())
}

func (o *Orchestrator) recordError(stage, agentID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, &RunError{Stage: stage, Agent: agentID, Err: err})
}

func (o *Orchestrator) checkAborted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return o.abortError(ctx)
	default:
		return nil
	}
}

func (o *Orchestrator) abortError(ctx context.Context) error {
	o.abortMu.Lock()
	reason := o.abortReason
	o.abortMu.Unlock()
	if reason == "" {
		reason = ctx.Err().Error()
	}
	return fmt.Errorf("%w: %s", ErrAborted, reason)
}

// emitProgress computes overall progress and invokes the progress callback.
// Overall progress is the completed fraction plus partial credit for in-flight
// work, clamped non-decreasing across the run.
func (o *Orchestrator) emitProgress(st *plan.Stage, agentID string, status ProgressStatus, agentProgress int, message string) {
	if o.opts.OnProgress == nil {
		return
	}

	total := len(o.agents)
	o.mu.Lock()
	completed := len(o.completed)
	executing := len(o.executing)
	overall := int(math.Round(
		float64(completed)/float64(total)*100 +
			float64(executing)/float64(total)*float64(agentProgress)))
	if overall < o.lastOverall {
		overall = o.lastOverall
	}
	if overall > 100 {
		overall = 100
	}
	o.lastOverall = overall
	o.mu.Unlock()

	o.opts.OnProgress(ProgressEvent{
		Stage:           st.ID,
		StageName:       st.Name,
		Agent:           agentID,
		Status:          status,
		Progress:        agentProgress,
		Message:         message,
		OverallProgress: overall,
	})
}

func (o *Orchestrator) logf(format string, args ...any) {
	o.mu.Lock()
	o.logs = append(o.logs, fmt.Sprintf(format, args...))
	o.mu.Unlock()
	if o.opts.Debug {
		log.Printf(format, args...)
	}
}
