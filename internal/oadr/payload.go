package oadr

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/gridsignal/oadr2ven/internal/xmlel"
)

// Opt is the VEN's accept/reject decision for one event.
type Opt string

const (
	OptIn  Opt = "optIn"
	OptOut Opt = "optOut"
)

// Response status codes carried in acknowledgement payloads.
const (
	StatusOK         = "200" // accepted
	StatusBadRequest = "400" // batch-level VTN rejection
	StatusDenied     = "403" // version conflict, targeting or signal failure
	StatusNotAllowed = "405" // market context not accepted
)

// EventResponse is the per-event outcome of a reconciliation pass, in the
// shape the acknowledgement payload needs.
type EventResponse struct {
	EventID   string
	ModNumber int
	RequestID string
	Opt       Opt
	Status    string
}

// Envelope is one oadr:oadrEvent entry of a distribute payload.
type Envelope struct {
	ResponseRequired string // "always", "never", or other
	Event            *Event // nil when the oadrEvent carries no eiEvent
}

// DistributeEvent is a parsed oadr:oadrDistributeEvent batch.
type DistributeEvent struct {
	RequestID string
	VTNID     string
	Envelopes []Envelope
}

// ParseDistributeEvent parses an inbound event-distribution payload.
func ParseDistributeEvent(r io.Reader, p Profile) (*DistributeEvent, error) {
	root, err := xmlel.Parse(r)
	if err != nil {
		return nil, err
	}
	return DistributeEventFromElement(root, p)
}

// DistributeEventFromElement extracts the batch from an already parsed root.
func DistributeEventFromElement(root *xmlel.Element, p Profile) (*DistributeEvent, error) {
	ns := p.NSMap()
	if root.Name.Local != "oadrDistributeEvent" {
		return nil, fmt.Errorf("unexpected payload root %s", root.Name.Local)
	}

	batch := &DistributeEvent{
		RequestID: root.FindText(ns, "pyld:requestID"),
		VTNID:     root.FindText(ns, "ei:vtnID"),
	}

	for _, evtEl := range root.FindAll(ns, "oadr:oadrEvent") {
		env := Envelope{
			ResponseRequired: evtEl.FindText(ns, "oadr:oadrResponseRequired"),
		}
		if inner := evtEl.Find(ns, "ei:eiEvent"); inner != nil {
			env.Event = NewEvent(inner, p)
		}
		batch.Envelopes = append(batch.Envelopes, env)
	}
	return batch, nil
}

// Builder assembles outbound payloads for one profile.
type Builder struct {
	profile Profile
	ns      map[string]string
}

// NewBuilder returns a payload builder for the profile.
func NewBuilder(p Profile) *Builder {
	p = p.Normalize()
	return &Builder{profile: p, ns: p.NSMap()}
}

func (b *Builder) oadr(local string, kids ...*xmlel.Element) *xmlel.Element {
	return xmlel.New(b.ns["oadr"], local, kids...)
}

func (b *Builder) pyld(local, text string) *xmlel.Element {
	return xmlel.NewText(b.ns["pyld"], local, text)
}

func (b *Builder) ei(local string, kids ...*xmlel.Element) *xmlel.Element {
	return xmlel.New(b.ns["ei"], local, kids...)
}

func (b *Builder) eiText(local, text string) *xmlel.Element {
	return xmlel.NewText(b.ns["ei"], local, text)
}

// RequestEvent builds an oadrRequestEvent asking the VTN for pending events.
// Each request carries a fresh request identifier.
func (b *Builder) RequestEvent(venID string) *xmlel.Element {
	return b.oadr("oadrRequestEvent",
		xmlel.New(b.ns["pyld"], "eiRequestEvent",
			b.pyld("requestID", uuid.NewString()),
			b.eiText("venID", venID),
			b.pyld("replyLimit", "99"),
		),
	)
}

// CreatedEvent builds the acknowledgement payload for events that required a
// response. Responses appear in the order given, which is batch order.
func (b *Builder) CreatedEvent(venID string, responses []EventResponse) *xmlel.Element {
	eventResponses := b.ei("eventResponses")
	for _, r := range responses {
		eventResponses.Append(b.ei("eventResponse",
			b.eiText("responseCode", r.Status),
			b.pyld("requestID", r.RequestID),
			b.ei("qualifiedEventID",
				b.eiText("eventID", r.EventID),
				b.eiText("modificationNumber", strconv.Itoa(r.ModNumber)),
			),
			b.eiText("optType", string(r.Opt)),
		))
	}

	return b.oadr("oadrCreatedEvent",
		xmlel.New(b.ns["pyld"], "eiCreatedEvent",
			b.ei("eiResponse",
				b.eiText("responseCode", StatusOK),
				b.pyld("requestID", ""),
			),
			eventResponses,
			b.eiText("venID", venID),
		),
	)
}

// ErrorResponse builds the batch-level rejection payload. The description is
// carried for operators; the wire contract is the response code.
func (b *Builder) ErrorResponse(venID, requestID, code, description string) *xmlel.Element {
	resp := b.ei("eiResponse",
		b.eiText("responseCode", code),
		b.pyld("requestID", requestID),
	)
	if description != "" {
		resp.Append(b.eiText("responseDescription", description))
	}

	return b.oadr("oadrCreatedEvent",
		xmlel.New(b.ns["pyld"], "eiCreatedEvent",
			resp,
			b.eiText("venID", venID),
		),
	)
}

// Marshal serializes a payload with the builder's profile prefix map.
func (b *Builder) Marshal(el *xmlel.Element) ([]byte, error) {
	return xmlel.Marshal(el, b.ns)
}
