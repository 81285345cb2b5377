package game

const (
	labelTie    = "Tie"
	labelWinner = "Winner: "
	labelNext   = "Next player: "
)

// Display is what the status line shows: a label, optionally followed by a
// colour-coded symbol.
type Display struct {
	Label  string     `json:"label"`
	Symbol PlayerMark `json:"symbol,omitempty"`
	Color  string     `json:"color,omitempty"`
}

// Describe formats status for the status line. turn is only consulted while the game is in progress.
func Describe(status Status, turn PlayerMark) Display {
	switch status.Kind {
	case Tie:
		return Display{Label: labelTie}
	case Won:
		return Display{Label: labelWinner, Symbol: status.Winner, Color: status.Winner.Color()}
	default:
		return Display{Label: labelNext, Symbol: turn, Color: turn.Color()}
	}
}

// String joins label and symbol, e.g. "Winner: X".
func (d Display) String() string {
	return d.Label + string(d.Symbol)
}

// Color is the rendering hint for a mark.
func (m PlayerMark) Color() string {
	switch m {
	case PlayerX:
		return "red"
	case PlayerO:
		return "blue"
	default:
		return ""
	}
}
