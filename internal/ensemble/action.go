package ensemble

// Action is a trading decision direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// tieBreakOrder fixes the winner for equal votes: conservative actions win.
// Iterated in order, a later action needs a strictly greater vote to displace
// the current winner, so HOLD beats SELL beats BUY on ties.
var tieBreakOrder = []Action{ActionHold, ActionSell, ActionBuy}

// ValidAction reports whether s is one of BUY, SELL, HOLD.
func ValidAction(s string) bool {
	switch Action(s) {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}
