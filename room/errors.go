package room

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrRoomFull         = errors.New("room is full")
	ErrNotHost          = errors.New("only host can start the game")
	ErrNotEnoughPlayers = errors.New("need at least 1 player to start")
)
