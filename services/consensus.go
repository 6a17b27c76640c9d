package services

import "github.com/cardarena/tournament-engine/models"

// consensusOutcome is the decision derived from the active reports of a
// match. WinnerID is set only when State is ConsensusResolved.
type consensusOutcome struct {
	State    models.ConsensusState
	WinnerID *int
}

// evaluateConsensus reconciles the two players' independent reports.
//
// Rules:
//   - no reports: pending.
//   - one report: awaiting the opponent.
//   - two reports designating the same winner: resolved.
//   - anything else, including both players claiming double_loss, is
//     conflicting and waits for arbitration. Conflicting is a reporting
//     state, not an error.
func evaluateConsensus(m *models.Match, reports []*models.MatchReport) consensusOutcome {
	var p1Report, p2Report *models.MatchReport
	for _, r := range reports {
		switch {
		case r.ReporterID == m.Player1ID:
			p1Report = r
		case m.Player2ID != nil && r.ReporterID == *m.Player2ID:
			p2Report = r
		}
	}

	switch {
	case p1Report == nil && p2Report == nil:
		return consensusOutcome{State: models.ConsensusPending}
	case p1Report == nil || p2Report == nil:
		return consensusOutcome{State: models.ConsensusAwaitingOpponent}
	}

	w1 := p1Report.ReportedResult.WinnerFor(m)
	w2 := p2Report.ReportedResult.WinnerFor(m)
	if w1 != nil && w2 != nil && *w1 == *w2 {
		return consensusOutcome{State: models.ConsensusResolved, WinnerID: w1}
	}
	return consensusOutcome{State: models.ConsensusConflicting}
}
