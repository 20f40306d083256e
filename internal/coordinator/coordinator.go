// Package coordinator turns backend change notifications into serialized device switches.
//
// Every trigger takes a new generation. Cycles run concurrently, but only the newest
// generation may act: older cycles notice they were superseded and drop their
// decision, and selection.State refuses records from generations older than the
// last accepted one.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/fsm"
	"github.com/rbright/audiomon/internal/priority"
	"github.com/rbright/audiomon/internal/selection"
)

const (
	defaultQueueSize      = 64
	defaultBackendTimeout = 10 * time.Second
	minPollInterval       = 100 * time.Millisecond
)

// Settings are the reloadable inputs of the coordinator.
type Settings struct {
	Rules               device.RuleSet
	PollInterval        time.Duration
	RespectManualSwitch bool
}

// Result describes one class evaluation of one cycle.
type Result struct {
	Class      device.Class
	Generation uint64
	Trigger    TriggerKind
	Decision   priority.Decision
	Applied    bool
	Stale      bool
	Held       bool
	Err        error
}

// Coordinator owns the trigger queue, the generation counter and the selection state.
type Coordinator struct {
	logger   *slog.Logger
	backend  Backend
	reporter Reporter
	metrics  Metrics
	state    *selection.State

	rules        atomic.Pointer[device.RuleSet]
	pollInterval atomic.Int64
	respect      atomic.Bool
	pollChanged  chan struct{}

	backendTimeout time.Duration

	mu       sync.Mutex
	gen      uint64
	triggers chan Trigger

	viewMu   sync.Mutex
	views    map[device.Class]*classView
	failures map[string]struct{}
	devices  []device.AudioDevice
	seen     bool
	seenGen  uint64
}

type classView struct {
	state    fsm.State
	gen      uint64
	failures map[string]struct{}
	pending  string
	hold     string
	last     priority.Decision
}

// New constructs a coordinator with safe default fallbacks for the optional hooks.
func New(
	logger *slog.Logger,
	backend Backend,
	reporter Reporter,
	metrics Metrics,
	settings Settings,
) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	c := &Coordinator{
		logger:         logger,
		backend:        backend,
		reporter:       reporter,
		metrics:        metrics,
		state:          selection.New(),
		pollChanged:    make(chan struct{}, 1),
		backendTimeout: defaultBackendTimeout,
		triggers:       make(chan Trigger, defaultQueueSize),
		views:          make(map[device.Class]*classView),
		failures:       make(map[string]struct{}),
	}
	for _, class := range device.Classes {
		c.views[class] = &classView{state: fsm.StateIdle, failures: make(map[string]struct{})}
	}
	c.store(settings)
	return c
}

func (c *Coordinator) store(s Settings) {
	rules := s.Rules.Clone()
	c.rules.Store(&rules)
	interval := s.PollInterval
	if interval < minPollInterval {
		interval = minPollInterval
	}
	c.pollInterval.Store(int64(interval))
	c.respect.Store(s.RespectManualSwitch)
}

// PollInterval returns the active fallback poll interval.
func (c *Coordinator) PollInterval() time.Duration {
	return time.Duration(c.pollInterval.Load())
}

// Rules returns the active rule set snapshot.
func (c *Coordinator) Rules() device.RuleSet {
	return *c.rules.Load()
}

// ApplyConfig swaps in new settings and schedules a re-evaluation.
// Cycles already running keep the rule set they started with.
func (c *Coordinator) ApplyConfig(s Settings) {
	previous := c.PollInterval()
	c.store(s)
	if c.PollInterval() != previous {
		select {
		case c.pollChanged <- struct{}{}:
		default:
		}
	}
	c.logger.Info("configuration applied",
		"output_rules", len(s.Rules.Output),
		"input_rules", len(s.Rules.Input),
		"poll_interval", c.PollInterval().String(),
		"respect_manual_switch", s.RespectManualSwitch,
	)
	c.Notify(TriggerConfigReload)
}

// Notify records a trigger without blocking. When the queue is full the trigger is
// dropped; the newest queued trigger enumerates later and subsumes it.
func (c *Coordinator) Notify(kind TriggerKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.gen + 1
	select {
	case c.triggers <- Trigger{Kind: kind, Generation: next}:
		c.gen = next
		c.metrics.Trigger(string(kind))
		c.metrics.Generation(next)
	default:
		c.metrics.Coalesced(string(kind))
	}
}

// nextGeneration takes a generation for a synchronous cycle.
func (c *Coordinator) nextGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.metrics.Generation(c.gen)
	return c.gen
}

func (c *Coordinator) latest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Coordinator) handleChange(change Change) {
	switch change {
	case ChangeDeviceList:
		c.Notify(TriggerDeviceList)
	case ChangeDefault:
		c.Notify(TriggerDefaultChanged)
	default:
		c.logger.Debug("ignoring unknown backend change", "change", change.String())
	}
}

// Run subscribes to the backend and processes triggers until ctx is done.
// In-flight cycles finish before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	sub, err := c.backend.Subscribe(ctx, c.handleChange)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			c.logger.Debug("close backend subscription failed", "error", err.Error())
		}
	}()

	ticker := time.NewTicker(c.PollInterval())
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	c.Notify(TriggerStartup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-c.triggers:
			c.logger.Debug("trigger", "kind", string(t.Kind), "generation", t.Generation)
			wg.Go(func() {
				c.runCycle(ctx, t, device.Classes)
			})
		case <-ticker.C:
			c.Notify(TriggerPoll)
		case <-c.pollChanged:
			ticker.Reset(c.PollInterval())
		}
	}
}

// EvaluateNow runs one synchronous cycle for class under a fresh generation.
func (c *Coordinator) EvaluateNow(ctx context.Context, class device.Class) Result {
	if class != device.ClassOutput && class != device.ClassInput {
		return Result{Class: class, Err: fmt.Errorf("cannot evaluate class %s", class)}
	}
	t := Trigger{Kind: TriggerManual, Generation: c.nextGeneration()}
	c.metrics.Trigger(string(t.Kind))
	return c.runCycle(ctx, t, []device.Class{class})[0]
}

// SwitchTo makes the device whose id or name equals key the default for class.
// The choice is held until the set of available devices changes.
func (c *Coordinator) SwitchTo(ctx context.Context, class device.Class, key string) Result {
	if class != device.ClassOutput && class != device.ClassInput {
		return Result{Class: class, Err: fmt.Errorf("cannot switch class %s", class)}
	}
	t := Trigger{Kind: TriggerManual, Generation: c.nextGeneration()}
	res := Result{Class: class, Generation: t.Generation, Trigger: t.Kind}

	ctx, cancel := context.WithTimeout(ctx, c.backendTimeout)
	defer cancel()

	local := fsm.StateIdle
	c.step(class, t.Generation, &local, fsm.EventTrigger)

	devices, err := c.backend.Enumerate(ctx)
	if err != nil {
		berr := &BackendError{Op: OpEnumerate, Err: err}
		c.fail(ctx, 0, berr)
		c.step(class, t.Generation, &local, fsm.EventFail)
		res.Err = berr
		return res
	}
	c.clearFailures(0, OpEnumerate)

	var target device.AudioDevice
	found := false
	for _, d := range devices {
		if d.Class.Includes(class) && (d.ID == key || d.Name == key) {
			target, found = d, true
			break
		}
	}
	if !found {
		c.step(class, t.Generation, &local, fsm.EventSettle)
		res.Err = fmt.Errorf("%w: %s %q", ErrDeviceNotFound, class, key)
		return res
	}

	res.Decision = priority.Decision{
		Kind:   priority.DecisionSwitch,
		Class:  class,
		Device: target,
		Rule:   -1,
		Reason: priority.ReasonManual,
	}
	c.apply(ctx, t, &local, &res)
	if res.Err == nil {
		c.setHold(class, target.ID)
	}
	return res
}

// runCycle enumerates once and evaluates each class against that snapshot.
func (c *Coordinator) runCycle(ctx context.Context, t Trigger, classes []device.Class) []Result {
	rules := c.rules.Load()

	ctx, cancel := context.WithTimeout(ctx, c.backendTimeout)
	defer cancel()

	locals := make([]fsm.State, len(classes))
	for i, class := range classes {
		locals[i] = fsm.StateIdle
		c.step(class, t.Generation, &locals[i], fsm.EventTrigger)
	}

	results := make([]Result, len(classes))
	devices, err := c.backend.Enumerate(ctx)
	if err != nil {
		berr := &BackendError{Op: OpEnumerate, Err: err}
		c.fail(ctx, 0, berr)
		for i, class := range classes {
			c.step(class, t.Generation, &locals[i], fsm.EventFail)
			results[i] = Result{Class: class, Generation: t.Generation, Trigger: t.Kind, Err: berr}
		}
		return results
	}
	c.clearFailures(0, OpEnumerate)
	c.observe(ctx, t.Generation, devices)

	for i, class := range classes {
		results[i] = c.evaluate(ctx, t, class, devices, rules.For(class), &locals[i])
	}
	return results
}

func (c *Coordinator) evaluate(
	ctx context.Context,
	t Trigger,
	class device.Class,
	devices []device.AudioDevice,
	rules []device.Rule,
	local *fsm.State,
) Result {
	res := Result{Class: class, Generation: t.Generation, Trigger: t.Kind}

	current, _ := c.state.Current(class)
	external := false
	if t.Kind.reconciles() || current == "" {
		current, external = c.reconcile(ctx, class, current, t.Generation)
	}

	respect := c.respect.Load()
	if respect && external {
		c.setHold(class, current)
	}
	if c.held(class, current) {
		d, _ := device.FindID(devices, current)
		res.Decision = priority.Decision{Kind: priority.DecisionNoChange, Class: class, Device: d, Rule: -1}
		res.Held = true
		c.settle(t, local, &res)
		return res
	}

	decision := priority.Decide(devices, rules, class, current)
	if decision.Kind == priority.DecisionSwitch && c.pending(class) == decision.Device.ID {
		decision.Kind = priority.DecisionNoChange
		decision.Reason = priority.ReasonNone
	}
	res.Decision = decision
	c.metrics.Evaluation(class.String(), string(decision.Kind))

	if latest := c.latest(); t.Generation < latest {
		res.Stale = true
		res.Err = ErrStaleDecision
		c.metrics.StaleDecision(class.String())
		c.logger.Debug("dropping stale decision",
			"class", class.String(),
			"generation", t.Generation,
			"latest", latest,
			"decision", decision.String(),
		)
		c.step(class, t.Generation, local, fsm.EventSettle)
		return res
	}

	if decision.Kind != priority.DecisionSwitch {
		c.settle(t, local, &res)
		return res
	}

	c.apply(ctx, t, local, &res)
	return res
}

// reconcile aligns the belief with the backend's actual default. It reports
// whether the default was changed by someone other than this coordinator.
func (c *Coordinator) reconcile(ctx context.Context, class device.Class, belief string, gen uint64) (string, bool) {
	actual, ok, err := c.backend.CurrentDefault(ctx, class)
	if err != nil {
		c.fail(ctx, class, &BackendError{Op: OpCurrentDefault, Class: class, Err: err})
		return belief, false
	}
	c.clearFailures(class, OpCurrentDefault)
	if !ok || actual == belief {
		return belief, false
	}
	if actual == c.pending(class) {
		return belief, false
	}
	if !c.state.Record(class, actual, gen) {
		return belief, false
	}
	c.logger.Debug("reconciled default device",
		"class", class.String(),
		"believed", belief,
		"actual", actual,
		"generation", gen,
	)
	return actual, belief != ""
}

// apply issues the switch for res.Decision and records it on success.
func (c *Coordinator) apply(ctx context.Context, t Trigger, local *fsm.State, res *Result) {
	class := res.Class
	target := res.Decision.Device

	c.step(class, t.Generation, local, fsm.EventSwitch)
	c.setPending(class, target.ID)
	err := c.backend.SetDefault(ctx, class, target.ID)
	if err != nil {
		c.setPending(class, "")
		berr := &BackendError{Op: OpSetDefault, Class: class, DeviceID: target.ID, Err: err}
		if c.fail(ctx, class, berr) {
			c.reporter.SwitchFailed(ctx, res.Decision, berr)
		}
		c.metrics.Switch(class.String(), "failed")
		c.step(class, t.Generation, local, fsm.EventFail)
		res.Err = berr
		return
	}

	accepted := c.state.Record(class, target.ID, t.Generation)
	c.setPending(class, "")
	if !accepted {
		res.Stale = true
		res.Err = ErrStaleDecision
		c.metrics.StaleDecision(class.String())
		c.metrics.Switch(class.String(), "stale")
		c.logger.Debug("switch record rejected by newer generation",
			"class", class.String(),
			"device", target.ID,
			"generation", t.Generation,
		)
		c.step(class, t.Generation, local, fsm.EventApplied)
		return
	}

	res.Applied = true
	c.metrics.Switch(class.String(), "ok")
	c.logger.Info("switched default device",
		"class", class.String(),
		"device", target.ID,
		"name", target.Name,
		"weight", res.Decision.Weight,
		"reason", string(res.Decision.Reason),
		"generation", t.Generation,
	)
	c.reporter.Switched(ctx, res.Decision)
	c.clearFailures(class, OpSetDefault)
	c.remember(class, res.Decision)
	c.step(class, t.Generation, local, fsm.EventApplied)
}

func (c *Coordinator) settle(t Trigger, local *fsm.State, res *Result) {
	c.remember(res.Class, res.Decision)
	if res.Decision.Kind == priority.DecisionNoEligible {
		c.logger.Debug("no eligible device", "class", res.Class.String(), "generation", t.Generation)
	}
	c.step(res.Class, t.Generation, local, fsm.EventSettle)
}

// step advances the cycle-local state and publishes it when this cycle is the
// newest one that touched the class.
func (c *Coordinator) step(class device.Class, gen uint64, local *fsm.State, event fsm.Event) {
	next, err := fsm.Transition(*local, event)
	if err != nil {
		c.logger.Error("cycle state transition failed", "class", class.String(), "error", err.Error())
		return
	}
	*local = next

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	v := c.view(class)
	if gen >= v.gen {
		v.gen = gen
		v.state = next
	}
}

// view must be called with viewMu held.
func (c *Coordinator) view(class device.Class) *classView {
	v, ok := c.views[class]
	if !ok {
		v = &classView{state: fsm.StateIdle, failures: make(map[string]struct{})}
		c.views[class] = v
	}
	return v
}

// fail logs and reports a backend failure once per distinct occurrence.
// It reports whether this occurrence is new.
func (c *Coordinator) fail(ctx context.Context, class device.Class, err *BackendError) bool {
	c.metrics.BackendError(string(err.Op))

	c.viewMu.Lock()
	memory := c.failures
	if class != 0 {
		memory = c.view(class).failures
	}
	key := err.key()
	_, seen := memory[key]
	memory[key] = struct{}{}
	c.viewMu.Unlock()

	if seen {
		c.logger.Debug("audio backend failure repeated", "op", string(err.Op), "error", err.Error())
		return false
	}
	attrs := []any{"op", string(err.Op), "error", err.Error()}
	if class != 0 {
		attrs = append(attrs, "class", class.String())
	}
	c.logger.Warn("audio backend failure", attrs...)
	if err.Op != OpSetDefault {
		c.reporter.BackendFailed(ctx, err)
	}
	return true
}

// clearFailures forgets remembered failures of op once it succeeds again, so
// the next failure of op is reported. Failures of other operations stay.
func (c *Coordinator) clearFailures(class device.Class, op Op) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	memory := c.failures
	if class != 0 {
		memory = c.view(class).failures
	}
	prefix := string(op) + "|"
	for key := range memory {
		if strings.HasPrefix(key, prefix) {
			delete(memory, key)
		}
	}
}

func (c *Coordinator) setPending(class device.Class, id string) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.view(class).pending = id
}

func (c *Coordinator) pending(class device.Class) string {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.view(class).pending
}

func (c *Coordinator) setHold(class device.Class, id string) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.view(class).hold = id
}

func (c *Coordinator) held(class device.Class, current string) bool {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	hold := c.view(class).hold
	return hold != "" && hold == current
}

func (c *Coordinator) remember(class device.Class, d priority.Decision) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.view(class).last = d
}

// observe diffs a fresh enumeration against the previous one. Only snapshots
// newer than the last observed one are compared, so an old cycle never reports
// a device twice.
func (c *Coordinator) observe(ctx context.Context, gen uint64, devices []device.AudioDevice) {
	c.viewMu.Lock()
	if c.seen && gen <= c.seenGen {
		c.viewMu.Unlock()
		return
	}
	previous, hadPrevious := c.devices, c.seen
	c.devices = append([]device.AudioDevice(nil), devices...)
	c.seen = true
	c.seenGen = gen

	var connected, disconnected []device.AudioDevice
	if hadPrevious {
		connected, disconnected = diff(previous, devices)
	}
	if len(connected) > 0 || len(disconnected) > 0 {
		for _, v := range c.views {
			v.hold = ""
		}
	}
	c.viewMu.Unlock()

	for _, d := range connected {
		c.logger.Info("device connected", "id", d.ID, "name", d.Name, "class", d.Class.String())
		c.reporter.DeviceConnected(ctx, d)
	}
	for _, d := range disconnected {
		c.logger.Info("device disconnected", "id", d.ID, "name", d.Name, "class", d.Class.String())
		c.reporter.DeviceDisconnected(ctx, d)
	}
}

func diff(previous, current []device.AudioDevice) (connected, disconnected []device.AudioDevice) {
	key := func(d device.AudioDevice) string { return fmt.Sprintf("%d|%s", d.Class, d.ID) }

	before := make(map[string]struct{}, len(previous))
	for _, d := range previous {
		before[key(d)] = struct{}{}
	}
	after := make(map[string]struct{}, len(current))
	for _, d := range current {
		after[key(d)] = struct{}{}
		if _, ok := before[key(d)]; !ok {
			connected = append(connected, d)
		}
	}
	for _, d := range previous {
		if _, ok := after[key(d)]; !ok {
			disconnected = append(disconnected, d)
		}
	}
	return connected, disconnected
}

// IsStale reports whether err marks a superseded decision.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleDecision)
}
