package oadr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridsignal/oadr2ven/internal/xmlel"
)

// ValidSignalTypes enumerates the signal types a "simple" signal may carry.
var ValidSignalTypes = map[string]bool{
	"level":    true,
	"price":    true,
	"delta":    true,
	"setpoint": true,
}

// SignalInterval is one interval of the event's authoritative simple signal.
// Duration is an xcal duration string, UID the interval identifier, Value the
// signal payload value; all kept in wire form.
type SignalInterval struct {
	Duration string
	UID      string
	Value    string
}

// Event wraps an ei:eiEvent element with profile-aware field accessors.
type Event struct {
	el *xmlel.Element
	ns map[string]string
}

// NewEvent binds an eiEvent element to a profile's namespace table.
func NewEvent(el *xmlel.Element, p Profile) *Event {
	return &Event{el: el, ns: p.NSMap()}
}

// ParseEvent parses a standalone eiEvent document, as stored raw payloads are.
func ParseEvent(raw []byte, p Profile) (*Event, error) {
	el, err := xmlel.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	return NewEvent(el, p), nil
}

// Element returns the underlying eiEvent element.
func (e *Event) Element() *xmlel.Element { return e.el }

// Marshal serializes the event for storage, using the profile prefix map.
func (e *Event) Marshal() ([]byte, error) {
	return xmlel.Marshal(e.el, e.ns)
}

// ID returns the ei:eventID, or "" when missing.
func (e *Event) ID() string {
	return e.el.FindText(e.ns, "ei:eventDescriptor/ei:eventID")
}

// ModificationNumber returns the event's version counter.
// A missing or unparseable value is an error; the caller decides whether the
// envelope is skipped.
func (e *Event) ModificationNumber() (int, error) {
	s := e.el.FindText(e.ns, "ei:eventDescriptor/ei:modificationNumber")
	if s == "" {
		return 0, fmt.Errorf("event %s: missing modificationNumber", e.ID())
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("event %s: bad modificationNumber %q", e.ID(), s)
	}
	return n, nil
}

// Status returns the ei:eventStatus lifecycle value (far/near/active/...).
func (e *Event) Status() string {
	return e.el.FindText(e.ns, "ei:eventDescriptor/ei:eventStatus")
}

// MarketContext returns the emix:marketContext the event belongs to.
func (e *Event) MarketContext() string {
	return e.el.FindText(e.ns, "ei:eventDescriptor/ei:eiMarketContext/emix:marketContext")
}

// CurrentSignalValue returns the event's current signal value, advisory only.
func (e *Event) CurrentSignalValue() string {
	return e.el.FindText(e.ns,
		"ei:eiEventSignals/ei:eiEventSignal/ei:currentValue/ei:payloadFloat/ei:value")
}

const dtstartPath = "ei:eiActivePeriod/xcal:properties/xcal:dtstart/xcal:date-time"

// ActivePeriodStart returns the event's nominal start time.
func (e *Event) ActivePeriodStart() (time.Time, error) {
	s := e.el.FindText(e.ns, dtstartPath)
	if s == "" {
		return time.Time{}, fmt.Errorf("event %s: missing dtstart", e.ID())
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: bad dtstart %q: %w", e.ID(), s, err)
	}
	return t, nil
}

// SetActivePeriodStart rewrites the start time in the element tree, so the
// serialized raw payload carries the adjusted value.
func (e *Event) SetActivePeriodStart(t time.Time) error {
	el := e.el.Find(e.ns, dtstartPath)
	if el == nil {
		return fmt.Errorf("event %s: no dtstart element", e.ID())
	}
	el.SetText(t.UTC().Format(time.RFC3339))
	return nil
}

// StartTolerance returns the raw startbefore/startafter duration strings.
// Either may be empty; both empty means no jitter window.
func (e *Event) StartTolerance() (before, after string) {
	base := "ei:eiActivePeriod/xcal:properties/xcal:tolerance/xcal:tolerate/"
	return e.el.FindText(e.ns, base+"xcal:startbefore"),
		e.el.FindText(e.ns, base+"xcal:startafter")
}

// Signals returns the intervals of the authoritative simple signal, or nil if
// no admissible one exists.
//
// When multiple signals qualify, the last one in document order wins. The
// profile conformance rule says at most one simple signal should exist, so
// this only matters for non-conformant payloads.
// TODO: flag duplicate simple signals at parse time instead of silently
// taking the last.
func (e *Event) Signals() []SignalInterval {
	var simple *xmlel.Element
	for _, sig := range e.el.FindAll(e.ns, "ei:eiEventSignals/ei:eiEventSignal") {
		name := sig.FindText(e.ns, "ei:signalName")
		typ := sig.FindText(e.ns, "ei:signalType")
		if name == "simple" && ValidSignalTypes[typ] {
			simple = sig
		}
	}
	if simple == nil {
		return nil
	}

	var out []SignalInterval
	for _, iv := range simple.FindAll(e.ns, "strm:intervals/ei:interval") {
		out = append(out, SignalInterval{
			Duration: iv.FindText(e.ns, "xcal:duration/xcal:duration"),
			UID:      iv.FindText(e.ns, "xcal:uid/xcal:text"),
			Value:    iv.FindText(e.ns, "ei:signalPayload/ei:payloadFloat/ei:value"),
		})
	}
	if out == nil {
		out = []SignalInterval{}
	}
	return out
}

// PartyIDs returns the ei:eiTarget party identifiers.
func (e *Event) PartyIDs() []string { return e.targetList("ei:partyID") }

// GroupIDs returns the ei:eiTarget group identifiers.
func (e *Event) GroupIDs() []string { return e.targetList("ei:groupID") }

// ResourceIDs returns the ei:eiTarget resource identifiers.
func (e *Event) ResourceIDs() []string { return e.targetList("ei:resourceID") }

// VENIDs returns the ei:eiTarget VEN identifiers.
func (e *Event) VENIDs() []string { return e.targetList("ei:venID") }

func (e *Event) targetList(local string) []string {
	var out []string
	for _, el := range e.el.FindAll(e.ns, "ei:eiTarget/"+local) {
		if s := strings.TrimSpace(el.Text); s != "" {
			out = append(out, s)
		}
	}
	return out
}
