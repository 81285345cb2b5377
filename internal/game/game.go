package game

// PlayerMark represents the mark of a player (X, O) or an empty cell.
type PlayerMark string

const (
	// Player marks
	None    PlayerMark = ""
	PlayerX PlayerMark = "X"
	PlayerO PlayerMark = "O"

	// StartingMark moves first in every new or reset game.
	StartingMark = PlayerX

	// BoardSize is the number of cells, laid out row-major as three rows of three.
	BoardSize = 9
)

// Board holds the nine cells; index 0-2 is the top row, 3-5 the middle, 6-8 the bottom.
type Board [BoardSize]PlayerMark

// State is everything the game needs to resume: the cells and whose turn it is.
type State struct {
	Board       Board      `json:"board"`
	CurrentTurn PlayerMark `json:"next"`
}

// EventKind identifies what a user did.
type EventKind string

const (
	EventMove  EventKind = "move"
	EventReset EventKind = "reset"
)

// Event is an input to the transition function.
type Event struct {
	Kind EventKind
	Cell int
}

// Move builds the event for clicking a cell.
func Move(cell int) Event {
	return Event{Kind: EventMove, Cell: cell}
}

// Reset builds the event for the reset control.
func Reset() Event {
	return Event{Kind: EventReset}
}

// NewState returns an empty board with StartingMark to move.
func NewState() State {
	return State{CurrentTurn: StartingMark}
}

// Opponent returns the other player's mark. None has no opponent.
func (m PlayerMark) Opponent() PlayerMark {
	switch m {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return None
	}
}

// Apply computes the state that follows s after e and reports whether e was accepted.
// A rejected event returns s unchanged. Rejection is silent on purpose: clicking an
// occupied cell or a finished board simply does nothing.
func Apply(s State, e Event) (State, bool) {
	switch e.Kind {
	case EventReset:
		return NewState(), true
	case EventMove:
		return play(s, e.Cell)
	default:
		return s, false
	}
}

func play(s State, cell int) (State, bool) {
	if cell < 0 || cell >= BoardSize {
		return s, false
	}
	if ComputeStatus(s.Board).IsTerminal() {
		return s, false
	}
	if s.Board[cell] != None {
		return s, false
	}

	// s is a copy, Board is an array: the caller's state is untouched.
	s.Board[cell] = s.CurrentTurn
	s.CurrentTurn = s.CurrentTurn.Opponent()
	return s, true
}

// Engine is the stateful shell around Apply for callers that own a single game.
// It is not safe for concurrent use; the owner serialises access.
type Engine struct {
	state State
}

// NewEngine starts a game with an empty board.
func NewEngine() *Engine {
	return &Engine{state: NewState()}
}

// PlayMove places the current player's mark on cell. It returns false, changing
// nothing, when the game is over, the cell is taken or out of range.
func (e *Engine) PlayMove(cell int) bool {
	next, ok := Apply(e.state, Move(cell))
	e.state = next
	return ok
}

// Reset clears the board and hands the first move back to StartingMark.
func (e *Engine) Reset() {
	e.state, _ = Apply(e.state, Reset())
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	return e.state
}

// Status derives the game status from the current board.
func (e *Engine) Status() Status {
	return ComputeStatus(e.state.Board)
}
