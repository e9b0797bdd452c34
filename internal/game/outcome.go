package game

import (
	"fmt"
	"strings"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

// ComputeOutcome evaluates the final support balance against the win
// margin. Strictly beyond +margin the streamer wins, strictly beyond
// -margin the raiders win, anything inside the band is a draw. Invoked
// exactly once per session, at the active→result transition.
func ComputeOutcome(balance, margin float64, streamer string, raiders []string) domain.Outcome {
	joined := strings.Join(raiders, ", ")

	switch {
	case balance > margin:
		return domain.Outcome{
			Winner:  streamer,
			Balance: balance,
			Text:    fmt.Sprintf("%s Gained more support than %s", streamer, joined),
		}
	case balance < -margin:
		return domain.Outcome{
			Winner:  joined,
			Balance: balance,
			Text:    fmt.Sprintf("%s Gained more support than %s", joined, streamer),
		}
	default:
		return domain.Outcome{
			Draw:    true,
			Balance: balance,
			Text:    fmt.Sprintf("It was a draw between %s and %s", joined, streamer),
		}
	}
}

// historyRecords maps an outcome to the two append-only battle records: one
// for the streamer's channel and one shared by every raider.
func historyRecords(out domain.Outcome, streamer string, raiders []string) (streamerRec, raiderRec domain.BattleRecord, streamerScore, raiderScore int) {
	switch {
	case out.Draw:
		streamerRec = domain.BattleRecord{Versus: raiders, Result: domain.HistoryDraw}
		raiderRec = domain.BattleRecord{Versus: []string{streamer}, Result: domain.HistoryDraw}
		streamerScore, raiderScore = 1, 1
	case out.Winner == streamer:
		streamerRec = domain.BattleRecord{Versus: raiders, Result: domain.HistoryWon}
		raiderRec = domain.BattleRecord{Versus: []string{streamer}, Result: domain.HistoryLost}
		streamerScore, raiderScore = 1, 0
	default:
		streamerRec = domain.BattleRecord{Versus: raiders, Result: domain.HistoryLost}
		raiderRec = domain.BattleRecord{Versus: []string{streamer}, Result: domain.HistoryWon}
		streamerScore, raiderScore = 0, 1
	}
	return streamerRec, raiderRec, streamerScore, raiderScore
}
