package game

import "strings"

// StatusKind is the tag of a Status.
type StatusKind string

const (
	InProgress StatusKind = "in_progress"
	Won        StatusKind = "won"
	Tie        StatusKind = "tie"
)

// Status is derived from a Board and never stored. Winner is set only when Kind is Won.
type Status struct {
	Kind   StatusKind `json:"kind"`
	Winner PlayerMark `json:"winner,omitempty"`
}

// Lines lists every three-in-a-row in evaluation order: rows, columns, diagonals.
var Lines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// ComputeStatus evaluates b. When several lines are complete, the first one in
// Lines order names the winner.
func ComputeStatus(b Board) Status {
	for _, line := range Lines {
		a := b[line[0]]
		if a != None && a == b[line[1]] && a == b[line[2]] {
			return Status{Kind: Won, Winner: a}
		}
	}

	if b.IsFull() {
		return Status{Kind: Tie}
	}
	return Status{Kind: InProgress}
}

// IsTerminal reports whether no further move can be played.
func (s Status) IsTerminal() bool {
	return s.Kind == Won || s.Kind == Tie
}

// IsFull reports whether every cell is taken.
func (b Board) IsFull() bool {
	for _, cell := range b {
		if cell == None {
			return false
		}
	}
	return true
}

// String renders the board as three rows separated by '/', with '.' for empty cells.
func (b Board) String() string {
	var sb strings.Builder
	for i, cell := range b {
		if i > 0 && i%3 == 0 {
			sb.WriteByte('/')
		}
		if cell == None {
			sb.WriteByte('.')
			continue
		}
		sb.WriteString(string(cell))
	}
	return sb.String()
}
