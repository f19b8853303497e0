package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/gridsignal/oadr2ven/internal/oadr"
)

// checkTargetInfo reports whether the local identity is targeted by the
// event. An event with no target criteria at all is untargeted and accepted.
// Otherwise a match in ANY populated category is sufficient.
func (e *Engine) checkTargetInfo(ev *oadr.Event) bool {
	partyIDs := ev.PartyIDs()
	groupIDs := ev.GroupIDs()
	resourceIDs := ev.ResourceIDs()
	venIDs := ev.VENIDs()

	if len(partyIDs) == 0 && len(groupIDs) == 0 && len(resourceIDs) == 0 && len(venIDs) == 0 {
		return true
	}

	return containsID(partyIDs, e.cfg.PartyID) ||
		containsID(groupIDs, e.cfg.GroupID) ||
		containsID(resourceIDs, e.cfg.ResourceID) ||
		containsID(venIDs, e.cfg.VENID)
}

// normID canonicalizes an identifier before comparison. Identifiers travel
// through XML documents produced by mixed tooling, so compare NFC forms.
func normID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// containsID reports whether want appears in ids, comparing normalized
// forms. An empty want never matches.
func containsID(ids []string, want string) bool {
	if want == "" {
		return false
	}
	w := normID(want)
	for _, id := range ids {
		if normID(id) == w {
			return true
		}
	}
	return false
}
