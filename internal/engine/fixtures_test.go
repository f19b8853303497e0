package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/store"
)

// memStore is the in-memory Event Store stand-in used by engine tests.
type memStore struct {
	events map[string]store.EventRow
}

func newMemStore() *memStore {
	return &memStore{events: make(map[string]store.EventRow)}
}

func (m *memStore) ActiveEvents(_ context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte, len(m.events))
	for id, row := range m.events {
		out[id] = row.Raw
	}
	return out, nil
}

func (m *memStore) UpdateAllEvents(_ context.Context, rows []store.EventRow) error {
	for _, row := range rows {
		m.events[row.EventID] = row
	}
	return nil
}

func (m *memStore) RemoveEvents(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.events, id)
	}
	return nil
}

// evtSpec describes one oadrEvent for payload fixtures.
type evtSpec struct {
	id               string
	mod              string // string so tests can produce malformed values
	market           string
	responseRequired string
	signalName       string
	signalType       string
	startBefore      string
	startAfter       string
	dtstart          string
	partyIDs         []string
	groupIDs         []string
	resourceIDs      []string
	venIDs           []string
	omitDescriptor   bool
}

func defaultEvt(id string, mod int) evtSpec {
	return evtSpec{
		id:               id,
		mod:              fmt.Sprintf("%d", mod),
		market:           "http://market.example/ctx1",
		responseRequired: "always",
		signalName:       "simple",
		signalType:       "price",
		dtstart:          "2026-09-01T00:00:00Z",
	}
}

func targetXML(spec evtSpec) string {
	if len(spec.partyIDs)+len(spec.groupIDs)+len(spec.resourceIDs)+len(spec.venIDs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<ei:eiTarget>")
	for _, id := range spec.partyIDs {
		fmt.Fprintf(&b, "<ei:partyID>%s</ei:partyID>", id)
	}
	for _, id := range spec.groupIDs {
		fmt.Fprintf(&b, "<ei:groupID>%s</ei:groupID>", id)
	}
	for _, id := range spec.resourceIDs {
		fmt.Fprintf(&b, "<ei:resourceID>%s</ei:resourceID>", id)
	}
	for _, id := range spec.venIDs {
		fmt.Fprintf(&b, "<ei:venID>%s</ei:venID>", id)
	}
	b.WriteString("</ei:eiTarget>")
	return b.String()
}

func toleranceXML(spec evtSpec) string {
	if spec.startBefore == "" && spec.startAfter == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<xcal:tolerance><xcal:tolerate>")
	if spec.startBefore != "" {
		fmt.Fprintf(&b, "<xcal:startbefore>%s</xcal:startbefore>", spec.startBefore)
	}
	if spec.startAfter != "" {
		fmt.Fprintf(&b, "<xcal:startafter>%s</xcal:startafter>", spec.startAfter)
	}
	b.WriteString("</xcal:tolerate></xcal:tolerance>")
	return b.String()
}

func eventXML(spec evtSpec) string {
	descriptor := ""
	if !spec.omitDescriptor {
		modXML := ""
		if spec.mod != "" {
			modXML = fmt.Sprintf("<ei:modificationNumber>%s</ei:modificationNumber>", spec.mod)
		}
		descriptor = fmt.Sprintf(`<ei:eventDescriptor>
      <ei:eventID>%s</ei:eventID>
      %s
      <ei:eventStatus>far</ei:eventStatus>
      <ei:eiMarketContext><emix:marketContext>%s</emix:marketContext></ei:eiMarketContext>
    </ei:eventDescriptor>`, spec.id, modXML, spec.market)
	}

	return fmt.Sprintf(`<oadr:oadrEvent>
  <oadr:oadrResponseRequired>%s</oadr:oadrResponseRequired>
  <ei:eiEvent>
    %s
    <ei:eiActivePeriod><xcal:properties>
      <xcal:dtstart><xcal:date-time>%s</xcal:date-time></xcal:dtstart>
      %s
    </xcal:properties></ei:eiActivePeriod>
    <ei:eiEventSignals>
      <ei:eiEventSignal>
        <ei:signalName>%s</ei:signalName>
        <ei:signalType>%s</ei:signalType>
        <strm:intervals>
          <ei:interval>
            <xcal:duration><xcal:duration>PT1H</xcal:duration></xcal:duration>
            <xcal:uid><xcal:text>0</xcal:text></xcal:uid>
            <ei:signalPayload><ei:payloadFloat><ei:value>1.5</ei:value></ei:payloadFloat></ei:signalPayload>
          </ei:interval>
        </strm:intervals>
      </ei:eiEventSignal>
    </ei:eiEventSignals>
    %s
  </ei:eiEvent>
</oadr:oadrEvent>`,
		spec.responseRequired, descriptor, spec.dtstart, toleranceXML(spec),
		spec.signalName, spec.signalType, targetXML(spec))
}

func distributeXML(requestID, vtnID string, specs ...evtSpec) string {
	var events strings.Builder
	for _, spec := range specs {
		events.WriteString(eventXML(spec))
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<oadr:oadrDistributeEvent
    xmlns:oadr="http://openadr.org/oadr-2.0a/2012/07"
    xmlns:pyld="http://docs.oasis-open.org/ns/energyinterop/201110/payloads"
    xmlns:ei="http://docs.oasis-open.org/ns/energyinterop/201110"
    xmlns:emix="http://docs.oasis-open.org/ns/emix/2011/06"
    xmlns:xcal="urn:ietf:params:xml:ns:icalendar-2.0"
    xmlns:strm="urn:ietf:params:xml:ns:icalendar-2.0:stream">
  <pyld:requestID>%s</pyld:requestID>
  <ei:vtnID>%s</ei:vtnID>
  %s
</oadr:oadrDistributeEvent>`, requestID, vtnID, events.String())
}

func parseBatch(payload string) (*oadr.DistributeEvent, error) {
	return oadr.ParseDistributeEvent(strings.NewReader(payload), oadr.Profile20A)
}

func testConfig() Config {
	return Config{
		VENID:      "ven1",
		GroupID:    "G1",
		ResourceID: "R1",
		PartyID:    "P1",
		Profile:    oadr.Profile20A,
	}
}
