package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/store"
	"github.com/gridsignal/oadr2ven/internal/xmlel"
)

// Handler runs complete passes over inbound payloads: parse, snapshot,
// reconcile, notify, commit, render reply.
//
// Passes are serialized: cancellation detection needs a stable seen-set per
// batch, and concurrent passes could race on version comparisons.
type Handler struct {
	mu     sync.Mutex
	engine *Engine
	store  EventStore
}

// NewHandler wires an engine to its store.
func NewHandler(e *Engine, s EventStore) *Handler {
	return &Handler{engine: e, store: s}
}

// HandlePayload processes one oadrDistributeEvent payload and returns the
// reply payload, or nil when no event required a response.
//
// A batch from an unlisted VTN yields the 400 error payload and no per-event
// processing. A malformed payload (not parseable XML, wrong root) is an
// error: the transport decides what to answer.
func (h *Handler) HandlePayload(ctx context.Context, r io.Reader) ([]byte, error) {
	root, err := xmlel.Parse(r)
	if err != nil {
		return nil, err
	}
	return h.HandleElement(ctx, root)
}

// HandleElement is HandlePayload over an already parsed document.
func (h *Handler) HandleElement(ctx context.Context, root *xmlel.Element) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.engine

	batch, err := oadr.DistributeEventFromElement(root, e.cfg.Profile)
	if err != nil {
		return nil, err
	}

	snapshot, err := h.store.ActiveEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	res, err := e.Reconcile(batch, snapshot)
	if err != nil {
		var rej *VTNRejectionError
		if errors.As(err, &rej) {
			reply := e.builder.ErrorResponse(e.cfg.VENID, rej.RequestID,
				oadr.StatusBadRequest, rej.Error())
			return e.builder.Marshal(reply)
		}
		return nil, err
	}

	// Callback sees the consistent before-persistence view.
	e.notify(res.ToPersist, res.Removed)

	if err := h.commit(ctx, batch.VTNID, res); err != nil {
		return nil, err
	}

	if len(res.Decisions) == 0 {
		return nil, nil
	}

	slog.Debug("replying for events", "count", len(res.Decisions))
	reply := e.builder.CreatedEvent(e.cfg.VENID, res.Decisions)
	return e.builder.Marshal(reply)
}

// commit applies the pass's updates and removals to the store.
func (h *Handler) commit(ctx context.Context, vtnID string, res *Result) error {
	rows := make([]store.EventRow, 0, len(res.ToPersist))
	for id, ev := range res.ToPersist {
		mod, err := ev.ModificationNumber()
		if err != nil {
			// Reconcile only persists records with a parsed mod number.
			return fmt.Errorf("commit event %s: %w", id, err)
		}
		raw, err := ev.Marshal()
		if err != nil {
			return fmt.Errorf("serialize event %s: %w", id, err)
		}
		rows = append(rows, store.EventRow{
			VTNID:     vtnID,
			EventID:   id,
			ModNumber: mod,
			Raw:       raw,
		})
	}

	if err := h.store.UpdateAllEvents(ctx, rows); err != nil {
		return fmt.Errorf("persist events: %w", err)
	}
	if err := h.store.RemoveEvents(ctx, res.ToRemove); err != nil {
		return fmt.Errorf("remove events: %w", err)
	}
	return nil
}
