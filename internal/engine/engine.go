// Package engine implements the VEN-side reconciliation of event
// distribution batches: per-event admission and version checks, the opt
// decision list returned to the VTN, implicit-cancellation detection, and
// the subscriber notification dispatch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/schedule"
	"github.com/gridsignal/oadr2ven/internal/store"
)

// EventStore is the store contract the engine consumes. *store.Store
// satisfies it; tests use an in-memory stand-in.
type EventStore interface {
	ActiveEvents(ctx context.Context) (map[string][]byte, error)
	UpdateAllEvents(ctx context.Context, rows []store.EventRow) error
	RemoveEvents(ctx context.Context, ids []string) error
}

// EventCallback receives the updated and removed events of one pass.
// It is a notification, not control flow: errors and panics are logged and
// never affect the reconciliation outcome.
type EventCallback func(updated, removed map[string]*oadr.Event) error

// Config is the engine's local configuration surface.
type Config struct {
	VENID          string
	VTNIDs         []string // accepted-VTN allowlist; empty accepts any
	MarketContexts []string // market-context allowlist; empty accepts any
	GroupID        string
	ResourceID     string
	PartyID        string
	Profile        oadr.Profile
}

// Engine runs reconciliation passes. It holds no cross-pass state of its
// own: each pass is a function of (batch, store snapshot, config).
type Engine struct {
	cfg      Config
	sched    *schedule.Scheduler
	builder  *oadr.Builder
	callback EventCallback
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler overrides the offset scheduler (tests inject a
// deterministic one).
func WithScheduler(s *schedule.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithCallback registers the subscriber notification callback.
func WithCallback(cb EventCallback) Option {
	return func(e *Engine) { e.callback = cb }
}

// New creates an Engine with the given configuration.
func New(cfg Config, opts ...Option) *Engine {
	cfg.Profile = cfg.Profile.Normalize()
	e := &Engine{
		cfg:     cfg,
		sched:   schedule.New(),
		builder: oadr.NewBuilder(cfg.Profile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VTNRejectionError is the batch-level rejection: the payload came from a
// VTN outside the allowlist. No per-event processing happens.
type VTNRejectionError struct {
	VTNID     string
	RequestID string
}

func (e *VTNRejectionError) Error() string {
	return fmt.Sprintf("unknown vtnID: %s", e.VTNID)
}

// Result is the outcome of one reconciliation pass, computed before any
// store mutation.
type Result struct {
	// Decisions in batch arrival order, one per response-eligible event.
	Decisions []oadr.EventResponse
	// ToPersist holds strictly-newer records, post jitter adjustment.
	ToPersist map[string]*oadr.Event
	// ToRemove lists implicitly cancelled ids, sorted, disjoint from
	// ToPersist's keys.
	ToRemove []string
	// Removed holds the parsed stored records for the callback.
	Removed map[string]*oadr.Event
}

// Reconcile computes one pass over an inbound batch and a store snapshot.
// It performs no store mutation; commit is the caller's explicit step.
func (e *Engine) Reconcile(batch *oadr.DistributeEvent, snapshot map[string][]byte) (*Result, error) {
	if len(e.cfg.VTNIDs) > 0 && !containsID(e.cfg.VTNIDs, batch.VTNID) {
		slog.Warn("unexpected VTN id",
			"vtn_id", batch.VTNID,
			"accepted", e.cfg.VTNIDs,
		)
		return nil, &VTNRejectionError{VTNID: batch.VTNID, RequestID: batch.RequestID}
	}

	res := &Result{
		ToPersist: make(map[string]*oadr.Event),
		Removed:   make(map[string]*oadr.Event),
	}
	seen := make(map[string]bool)

	for _, env := range batch.Envelopes {
		if env.Event == nil {
			slog.Warn("oadrEvent without eiEvent, skipping", "request_id", batch.RequestID)
			continue
		}
		ev := env.Event

		id := ev.ID()
		if id == "" {
			slog.Warn("event without eventID, skipping", "request_id", batch.RequestID)
			continue
		}
		// Malformed from here on still counts as seen, so a broken update
		// never reads as an implicit cancellation.
		seen[id] = true

		mod, err := ev.ModificationNumber()
		if err != nil {
			slog.Warn("skipping malformed event", "event_id", id, "error", err)
			continue
		}

		slog.Debug("processing event",
			"event_id", id,
			"mod_number", mod,
			"status", ev.Status(),
			"signal", ev.CurrentSignalValue(),
		)

		old, oldMod := e.lookupStored(snapshot, id)

		if eligible(old != nil, mod, oldMod, env.ResponseRequired) {
			res.Decisions = append(res.Decisions, e.decide(ev, id, mod, old != nil, oldMod, batch.RequestID))
		}

		if old == nil || mod > oldMod {
			e.applyJitter(ev, id, mod)
			res.ToPersist[id] = ev
		}
	}

	for id := range snapshot {
		if seen[id] {
			continue
		}
		slog.Debug("removing cancelled event", "event_id", id)
		res.ToRemove = append(res.ToRemove, id)
		if old, err := oadr.ParseEvent(snapshot[id], e.cfg.Profile); err == nil {
			res.Removed[id] = old
		} else {
			slog.Warn("stored event unparseable during removal", "event_id", id, "error", err)
		}
	}
	sort.Strings(res.ToRemove)

	return res, nil
}

// eligible reports whether the event gets an entry in the reply payload.
func eligible(haveOld bool, mod, oldMod int, responseRequired string) bool {
	if responseRequired == "never" {
		return false
	}
	return !haveOld || mod > oldMod || responseRequired == "always"
}

// decide evaluates the admission checks in order. Later failures overwrite
// earlier ones, so a market-context miss answers 405 even when targeting
// already failed.
func (e *Engine) decide(ev *oadr.Event, id string, mod int, haveOld bool, oldMod int, requestID string) oadr.EventResponse {
	opt, status := oadr.OptIn, oadr.StatusOK

	if haveOld && mod <= oldMod {
		slog.Warn("stale modification number",
			"event_id", id, "mod_number", mod, "stored_mod_number", oldMod)
		opt, status = oadr.OptOut, oadr.StatusDenied
	}

	if !e.checkTargetInfo(ev) {
		slog.Info("opting out of event: no target match", "event_id", id)
		opt, status = oadr.OptOut, oadr.StatusDenied
	}

	if ev.Signals() == nil {
		slog.Info("opting out of event: no simple signal", "event_id", id)
		opt, status = oadr.OptOut, oadr.StatusDenied
	}

	if len(e.cfg.MarketContexts) > 0 && !containsID(e.cfg.MarketContexts, ev.MarketContext()) {
		slog.Info("opting out of event: market context not accepted",
			"event_id", id, "market_context", ev.MarketContext())
		opt, status = oadr.OptOut, oadr.StatusNotAllowed
	}

	return oadr.EventResponse{
		EventID:   id,
		ModNumber: mod,
		RequestID: requestID,
		Opt:       opt,
		Status:    status,
	}
}

// lookupStored parses the stored record for id, returning (nil, 0) when
// absent or unreadable.
func (e *Engine) lookupStored(snapshot map[string][]byte, id string) (*oadr.Event, int) {
	raw, ok := snapshot[id]
	if !ok {
		return nil, 0
	}
	old, err := oadr.ParseEvent(raw, e.cfg.Profile)
	if err != nil {
		slog.Warn("stored event unparseable, treating as absent", "event_id", id, "error", err)
		return nil, 0
	}
	oldMod, err := old.ModificationNumber()
	if err != nil {
		slog.Warn("stored event without mod number, treating as absent", "event_id", id, "error", err)
		return nil, 0
	}
	return old, oldMod
}

// applyJitter randomizes the start time when the record carries a tolerance
// window, rewriting the record in place so the persisted payload keeps the
// adjusted value.
func (e *Engine) applyJitter(ev *oadr.Event, id string, mod int) {
	beforeStr, afterStr := ev.StartTolerance()
	if beforeStr == "" && afterStr == "" {
		return
	}

	before, err := schedule.ParseTolerance(beforeStr)
	if err != nil {
		slog.Warn("bad startbefore tolerance, skipping jitter", "event_id", id, "error", err)
		return
	}
	after, err := schedule.ParseTolerance(afterStr)
	if err != nil {
		slog.Warn("bad startafter tolerance, skipping jitter", "event_id", id, "error", err)
		return
	}

	start, err := ev.ActivePeriodStart()
	if err != nil {
		slog.Warn("no usable dtstart, skipping jitter", "event_id", id, "error", err)
		return
	}

	newStart := e.sched.RandomOffset(start, before, after)
	if err := ev.SetActivePeriodStart(newStart); err != nil {
		slog.Warn("failed to rewrite dtstart", "event_id", id, "error", err)
		return
	}

	slog.Debug("randomized start time",
		"event_id", id,
		"mod_number", mod,
		"start_before", beforeStr,
		"start_after", afterStr,
		"new_start", newStart,
	)
}
