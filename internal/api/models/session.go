package models

import "ctchen222/hotseat-tictactoe/pkg/proto"

// MoveRequest is a click on a cell.
type MoveRequest struct {
	Cell *int `json:"cell" binding:"required,min=0,max=8"`
}

// CreateSessionResponse hands the browser its session id and the bearer token for it.
type CreateSessionResponse struct {
	SessionID string                 `json:"session_id"`
	Token     string                 `json:"token"`
	Snapshot  *proto.SnapshotMessage `json:"snapshot"`
}
