package models

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint computes a deterministic digest of the draft state; the state
// machine stamps it on every StateDiff, and a duplicate snapshot leaves it
// unchanged. Analysis requests are keyed by AnalysisFingerprint instead. The
// nomination clock is deliberately excluded so per-second countdown updates
// do not churn it.
func (s *DraftState) Fingerprint() string {
	var b strings.Builder

	fmt.Fprintf(&b, "picks=%d;last=%d;", len(s.Picks), s.LastOrdinal)

	if s.Nomination != nil {
		fmt.Fprintf(&b, "nom=%s|%d|%s;", s.Nomination.PlayerName, s.Nomination.CurrentBid, s.Nomination.CurrentBidder)
	} else {
		b.WriteString("nom=;")
	}

	ids := make([]string, 0, len(s.Teams))
	for id := range s.Teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "t:%s=%d;", id, s.Teams[id].Budget)
	}

	fmt.Fprintf(&b, "me=%s", s.League.MyTeamID)

	return fmt.Sprintf("%x", md5.Sum([]byte(b.String())))
}

// AnalysisFingerprint keys the analysis pipeline: nomination player, current
// bid, and the operator's team identity.
func (s *DraftState) AnalysisFingerprint() string {
	if s.Nomination == nil {
		return ""
	}
	key := fmt.Sprintf("%s|%d|%s", s.Nomination.PlayerName, s.Nomination.CurrentBid, s.League.MyTeamID)
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}
