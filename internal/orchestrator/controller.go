package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/cache"
	"github.com/dusk-indust/wavecode/internal/conversation"
	"github.com/dusk-indust/wavecode/internal/intent"
	"github.com/dusk-indust/wavecode/internal/llm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ Runner = (*Controller)(nil)

// Controller is the chain facade. It runs ingest, drives the selected waves
// and assembles the final answer. A Controller can serve many runs, one
// after another or concurrently; each run owns its own shared state.
type Controller struct {
	cfg        Config
	backend    llm.Backend
	registry   *agent.Registry
	classifier intent.Classifier
	cache      cache.Store[CacheEntry]
	merger     *Merger
	bus        *Bus
	contexts   *conversation.Manager
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithRegistry replaces the default contract registry.
func WithRegistry(r *agent.Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithClassifier replaces the keyword intent classifier.
func WithClassifier(cl intent.Classifier) Option {
	return func(c *Controller) { c.classifier = cl }
}

// WithCache injects a result cache, for example one shared through Redis.
func WithCache(s cache.Store[CacheEntry]) Option {
	return func(c *Controller) { c.cache = s }
}

// WithMerger replaces the default merger.
func WithMerger(m *Merger) Option {
	return func(c *Controller) { c.merger = m }
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a Controller calling backend. Waves default to
// DefaultWaves when cfg has none.
func NewController(backend llm.Backend, cfg Config, opts ...Option) *Controller {
	if len(cfg.Waves) == 0 {
		cfg.Waves = DefaultWaves()
	}

	c := &Controller{
		cfg:        cfg,
		backend:    backend,
		registry:   agent.DefaultRegistry(),
		classifier: intent.NewKeywordClassifier(),
		merger:     NewMerger(),
		contexts:   conversation.NewManager(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("github.com/dusk-indust/wavecode/internal/orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.NewFIFO[CacheEntry](cfg.CacheCapacity)
	}
	c.bus = NewBus(c.logger)
	return c
}

// Subscribe registers fn for every event of every run.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

// Waves returns the configured topology.
func (c *Controller) Waves() []WaveConfig {
	out := make([]WaveConfig, len(c.cfg.Waves))
	copy(out, c.cfg.Waves)
	return out
}

// Ask answers input with one model call and no waves.
func (c *Controller) Ask(ctx context.Context, input string) (*llm.Response, error) {
	provider, model := c.cfg.route(agent.RoleReporter)
	return c.backend.Complete(ctx, llm.Request{
		Provider:    provider,
		Model:       model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: input}},
		MaxTokens:   c.cfg.MaxTokensPerCall,
		Temperature: c.cfg.Temperature,
	})
}

// run is the per-call state of Run.
type run struct {
	id     string
	state  *SharedState
	result *ChainResult
	phase  string
	logger *slog.Logger
}

func (r *run) addUsage(u *llm.Usage) {
	r.result.TokensUsed += u.Total()
}

// Run executes the chain for input. It returns either a complete result or
// a *FatalError; agent failures, contract violations and budget stops are
// reflected in the result instead.
func (c *Controller) Run(ctx context.Context, input string) (res *ChainResult, err error) {
	start := time.Now()
	r := &run{
		id:    uuid.NewString(),
		state: NewSharedState(),
		phase: WaveIngest,
	}
	r.logger = c.logger.With("run", r.id)
	r.result = &ChainResult{RunID: r.id, AuditTrail: []MergeAudit{}}

	ctx, span := c.tracer.Start(ctx, "chain.run", trace.WithAttributes(attribute.String("run.id", r.id)))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, &FatalError{Phase: r.phase, Err: fmt.Errorf("panic: %v", p)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("chain failed", "phase", r.phase, "error", err)
			c.publish(r, Event{Type: EventChainError, Err: err})
		}
	}()

	c.publish(r, Event{Type: EventChainStart, Message: input})

	c.ingest(ctx, r, input)

	r.result.Intent = c.classifier.Classify(input)
	waves := c.cfg.Waves
	if !c.cfg.DisableAdaptiveSkip {
		var skipped []string
		waves, skipped = SelectWaves(c.cfg.Waves, r.result.Intent.Type)
		if len(skipped) > 0 {
			r.result.SkippedWaves = skipped
			r.logger.Info("adaptive skip", "intent", r.result.Intent.Type, "skipped", skipped)
			c.publish(r, Event{
				Type:      EventAdaptiveSkip,
				Intent:    r.result.Intent.Type,
				Skipped:   skipped,
				Remaining: waveNames(waves),
			})
		}
	}

	for i, wave := range waves {
		if cerr := ctx.Err(); cerr != nil {
			r.phase = "cancel:" + wave.Name
			return nil, &FatalError{Phase: r.phase, Err: cerr}
		}
		if c.cfg.TokenBudget > 0 && r.result.TokensUsed > c.cfg.TokenBudget {
			r.result.BudgetExhausted = true
			r.logger.Warn("token budget exceeded, stopping",
				"used", r.result.TokensUsed, "budget", c.cfg.TokenBudget, "next", wave.Name)
			c.publish(r, Event{
				Type:       EventBudgetExceeded,
				Wave:       wave.Name,
				TokensUsed: r.result.TokensUsed,
				Budget:     c.cfg.TokenBudget,
			})
			break
		}
		if err := c.runWave(ctx, r, i+1, wave); err != nil {
			return nil, err
		}
	}

	r.result.FinalAnswer = AssembleFinalAnswer(r.state)
	r.result.State = r.state
	r.result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("tokens", r.result.TokensUsed))

	c.publish(r, Event{Type: EventChainComplete, Result: r.result})
	return r.result, nil
}

// ingest restates the request. Any failure falls back to the raw input as
// the problem statement.
func (c *Controller) ingest(ctx context.Context, r *run, input string) {
	id := r.id + "/" + WaveIngest
	sub := c.contexts.CreateSubContext(id, agent.SystemPrompt(agent.RoleIngest))
	defer c.contexts.Discard(id)
	sub.AddMessage(llm.RoleUser, agent.IngestPrompt(input))

	r.state.ProblemStatement = strings.TrimSpace(input)

	resp, err := c.backend.Complete(ctx, c.request(agent.RoleIngest, c.cfg.MaxTokensPerCall, sub.MessagesForAPI()))
	if err == nil && resp == nil {
		err = errors.New("backend returned no response")
	}
	if err != nil {
		r.logger.Warn("ingest failed, using raw input", "error", err)
		return
	}
	r.addUsage(resp.Usage)

	parsed := agent.ParseResponse(resp.Content)
	if !parsed.OK() {
		r.logger.Warn("ingest response not structured, using raw input")
		return
	}
	applyIngest(r.state, parsed.Object)
}

func applyIngest(state *SharedState, data map[string]any) {
	if ps := stringOf(data, "problem_statement"); ps != "" {
		state.ProblemStatement = ps
	}
	state.SuccessCriteria = union(state.SuccessCriteria, stringsOf(data, "success_criteria"))
	state.Constraints = union(state.Constraints, stringsOf(data, "constraints"))
	state.Assumptions = union(state.Assumptions, stringsOf(data, "assumptions"))
	state.ArtifactsToUpdate = union(state.ArtifactsToUpdate, stringsOf(data, "artifacts_to_update"))
}

// runWave executes one wave: cache lookup, fan-out with contract retries,
// merge and cache write. Only a merge fault is returned.
func (c *Controller) runWave(ctx context.Context, r *run, index int, wave WaveConfig) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "chain.wave", trace.WithAttributes(attribute.String("wave", wave.Name)))
	defer span.End()
	defer func() { waveDuration.WithLabelValues(wave.Name).Observe(time.Since(start).Seconds()) }()

	c.publish(r, Event{Type: EventWaveStart, Wave: wave.Name, WaveIndex: index, Agents: wave.Agents})

	key := CacheKey(wave.Name, r.state)
	entry, hit, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues("error").Inc()
		r.logger.Warn("cache lookup failed", "wave", wave.Name, "error", err)
		hit = false
	case hit:
		cacheLookups.WithLabelValues("hit").Inc()
	default:
		cacheLookups.WithLabelValues("miss").Inc()
	}

	var audit MergeAudit
	if hit {
		span.SetAttributes(attribute.Bool("cached", true))
		r.logger.Info("wave served from cache", "wave", wave.Name)
		c.publish(r, Event{Type: EventWaveCached, Wave: wave.Name, WaveIndex: index})

		r.phase = "merge:" + wave.Name
		if _, err := c.merger.Merge(wave.Name, r.state, entry.Results); err != nil {
			return &FatalError{Phase: r.phase, Err: err}
		}
		audit = entry.Audit.Clone()
		r.result.CachedWaves = append(r.result.CachedWaves, wave.Name)
	} else {
		r.phase = "wave:" + wave.Name
		results := c.runAgents(ctx, r, wave)

		r.phase = "merge:" + wave.Name
		audit, err = c.merger.Merge(wave.Name, r.state, results)
		if err != nil {
			return &FatalError{Phase: r.phase, Err: err}
		}
		if failed := failedRoles(results); len(failed) > 0 {
			r.logger.Info("wave not cached after agent failures", "wave", wave.Name, "failed", failed)
		} else if err := c.cache.Put(ctx, key, CacheEntry{Results: results, Audit: audit.Clone()}); err != nil {
			r.logger.Warn("cache write failed", "wave", wave.Name, "error", err)
		}
	}

	r.result.AuditTrail = append(r.result.AuditTrail, audit)
	auditCopy := audit.Clone()
	c.publish(r, Event{Type: EventMergeComplete, Wave: wave.Name, WaveIndex: index, Audit: &auditCopy})

	for _, issue := range CheckCoherence(r.state) {
		r.logger.Warn("coherence issue", "wave", wave.Name, "field", issue.Field, "issue", issue.Description)
	}
	c.advise(r, wave)

	c.publish(r, Event{
		Type:       EventWaveComplete,
		Wave:       wave.Name,
		WaveIndex:  index,
		State:      r.state.Clone(),
		TokensUsed: r.result.TokensUsed,
	})
	return nil
}

// advise publishes the advisory signals. They are observability hints only.
func (c *Controller) advise(r *run, wave WaveConfig) {
	for _, role := range wave.Agents {
		switch role {
		case agent.RoleValidator:
			if score, ok := numberOf(r.state.WaveOutputs["readiness_score"]); ok && score > 90 {
				c.publish(r, Event{Type: EventHighReadiness, Wave: wave.Name, Score: score})
			}
		case agent.RoleMonitor:
			if v := nestedString(r.state.WaveOutputs, "monitor", "verdict"); strings.EqualFold(v, "pass") {
				c.publish(r, Event{Type: EventEarlyTermination, Wave: wave.Name, Verdict: v})
			}
		}
	}
}

// request builds the backend request for role.
func (c *Controller) request(role agent.Role, maxTokens int, msgs []llm.Message) llm.Request {
	provider, model := c.cfg.route(role)
	return llm.Request{
		Provider:    provider,
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}
}

func (c *Controller) publish(r *run, ev Event) {
	ev.RunID = r.id
	c.bus.Publish(ev)
}

// pending tracks one role between the first call and its corrective retry.
type pending struct {
	subID  string
	sub    *conversation.SubContext
	result AgentResult
}

// runAgents fans out the wave's roles, validates every response against its
// contract and gives each role whose parsed object violates the contract one
// corrective retry after all of its siblings have settled. A response with
// no JSON object is recorded invalid without a retry. Results come back in
// wave order.
func (c *Controller) runAgents(ctx context.Context, r *run, wave WaveConfig) []AgentResult {
	snapshot := r.state.Snapshot()
	maxTokens := c.cfg.maxTokensFor(wave)
	fanout := NewFanOut(c.backend, c.tracer, func(ev Event) { c.publish(r, ev) })

	slots := make([]*pending, len(wave.Agents))
	calls := make([]Call, len(wave.Agents))
	for i, role := range wave.Agents {
		id := r.id + "/" + wave.Name + "/" + string(role)
		sub := c.contexts.CreateSubContext(id, agent.SystemPrompt(role))
		sub.AddMessage(llm.RoleUser, agent.TaskPrompt(role, snapshot, c.contract(role)))

		slots[i] = &pending{subID: id, sub: sub, result: AgentResult{Role: role}}
		calls[i] = Call{Role: role, Request: c.request(role, maxTokens, sub.MessagesForAPI())}
	}
	defer func() {
		for _, p := range slots {
			c.contexts.Discard(p.subID)
		}
	}()

	var (
		retryCalls []Call
		retrySlots []*pending
	)
	for i, cr := range fanout.Run(ctx, wave.Name, calls) {
		p := slots[i]
		if cr.Err != nil {
			p.result.Error = cr.Err.Error()
			r.logger.Warn("agent failed", "wave", wave.Name, "role", cr.Role, "error", cr.Err)
			continue
		}
		r.addUsage(cr.Response.Usage)
		p.result.Usage = cr.Response.Usage
		p.result.RawText = cr.Response.Content

		parsed := agent.ParseResponse(cr.Response.Content)
		p.result.Data = parsed.Object
		verdict := c.registry.Check(cr.Role, parsed.Object)
		if verdict.Valid {
			p.result.Valid = true
			continue
		}

		p.result.ContractErrors = verdict.Errors
		r.logger.Info("contract violation", "wave", wave.Name, "role", cr.Role, "errors", verdict.Errors)
		c.publish(r, Event{Type: EventContractFailed, Wave: wave.Name, Role: cr.Role, Errors: verdict.Errors})
		if !parsed.OK() {
			// Only a parsed object that fails its contract is worth correcting.
			continue
		}

		task := agent.TaskPrompt(cr.Role, snapshot, c.contract(cr.Role))
		p.sub.AddMessage(llm.RoleAssistant, cr.Response.Content)
		p.sub.AddMessage(llm.RoleUser, agent.CorrectionPrompt(task, verdict.Errors))
		retrySlots = append(retrySlots, p)
		retryCalls = append(retryCalls, Call{Role: cr.Role, Request: c.request(cr.Role, maxTokens, p.sub.MessagesForAPI())})
	}

	if len(retryCalls) > 0 {
		roles := make([]agent.Role, len(retryCalls))
		for i, call := range retryCalls {
			roles[i] = call.Role
		}
		c.publish(r, Event{Type: EventContractRetry, Wave: wave.Name, Agents: roles})

		for i, cr := range fanout.Run(ctx, wave.Name, retryCalls) {
			c.applyRetry(r, wave.Name, retrySlots[i], cr)
		}
	}

	results := make([]AgentResult, len(slots))
	for i, p := range slots {
		results[i] = p.result
		recordAgentResult(p.result)
	}
	return results
}

// applyRetry folds a corrective retry into the role's result. A retry that
// fails or still violates the contract keeps the first response.
func (c *Controller) applyRetry(r *run, wave string, p *pending, cr CallResult) {
	p.result.Retried = true
	if cr.Err != nil {
		r.logger.Warn("contract retry failed", "wave", wave, "role", cr.Role, "error", cr.Err)
		return
	}
	r.addUsage(cr.Response.Usage)
	p.result.Usage = sumUsage(p.result.Usage, cr.Response.Usage)

	parsed := agent.ParseResponse(cr.Response.Content)
	verdict := c.registry.Check(cr.Role, parsed.Object)
	if !verdict.Valid {
		r.logger.Info("contract retry still invalid", "wave", wave, "role", cr.Role, "errors", verdict.Errors)
		return
	}
	p.result.Data = parsed.Object
	p.result.RawText = cr.Response.Content
	p.result.Valid = true
	p.result.ContractErrors = nil
}

// failedRoles lists the roles whose backend call failed. Such a wave is not
// cached so a transient outage is retried by the next run.
func failedRoles(results []AgentResult) []agent.Role {
	var out []agent.Role
	for _, r := range results {
		if r.Error != "" {
			out = append(out, r.Role)
		}
	}
	return out
}

func (c *Controller) contract(role agent.Role) *agent.Contract {
	if ct, ok := c.registry.Lookup(role); ok {
		return &ct
	}
	return nil
}

func sumUsage(a, b *llm.Usage) *llm.Usage {
	if a == nil && b == nil {
		return nil
	}
	var out llm.Usage
	for _, u := range []*llm.Usage{a, b} {
		if u != nil {
			out.PromptTokens += u.PromptTokens
			out.CompletionTokens += u.CompletionTokens
		}
	}
	return &out
}
