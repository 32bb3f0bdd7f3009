// Package objective evaluates action zones and win/lose transitions.
package objective

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/greatescape/gameserver/broadcast"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/room"
)

var (
	ErrInvalidAction    = errors.New("invalid action")
	ErrAlreadyCompleted = errors.New("this action has already been completed")
)

// MissingItemError 缺少执行动作所需道具。
type MissingItemError struct {
	Item string
}

func (e *MissingItemError) Error() string {
	return fmt.Sprintf("you need a %s to perform this action", e.Item)
}

// Requirement 动作区的固定规则：所需道具、是否胜利动作、完成文案。
type Requirement struct {
	Item    string
	Winning bool
	Message string
}

// actionRequirements is the fixed action-zone table of the escape map.
var actionRequirements = map[string]Requirement{
	"digSite": {
		Item:    "shovel",
		Winning: true,
		Message: "💎 You dug a tunnel and found the escape route! You win!",
	},
	"helicopterPad": {
		Item:    "helicopterKeys",
		Winning: true,
		Message: "🚁 You started the helicopter and escaped! You win!",
	},
	"borderExit": {
		Item:    "borderPass",
		Winning: true,
		Message: "🛂 You crossed the border successfully! You win!",
	},
}

// Recorder archives finished games. Implementations must tolerate a
// nil receiver being skipped by the caller.
type Recorder interface {
	ArchiveGameOver(r *room.Room, won bool, reason string)
}

// Evaluator applies action-zone rules and owns the win transition.
type Evaluator struct {
	broadcaster broadcast.Broadcaster
	recorder    Recorder
}

func NewEvaluator(broadcaster broadcast.Broadcaster, recorder Recorder) *Evaluator {
	return &Evaluator{broadcaster: broadcaster, recorder: recorder}
}

// Requirements exposes the action table (rpc/stats use).
func Requirements() map[string]Requirement {
	out := make(map[string]Requirement, len(actionRequirements))
	for id, req := range actionRequirements {
		out[id] = req
	}
	return out
}

// PerformAction 执行动作区动作。校验失败只返回错误给请求方，不产生
// 任何状态变更；成功时记录完成、全房间广播，胜利动作触发一次终局。
func (e *Evaluator) PerformAction(r *room.Room, playerID, actionID string) error {
	req, ok := actionRequirements[actionID]
	if !ok {
		return ErrInvalidAction
	}

	r.Lock()
	player, ok := r.Players[playerID]
	if !ok {
		r.Unlock()
		return room.ErrPlayerNotFound
	}
	if !r.HasItem(req.Item) {
		r.Unlock()
		return &MissingItemError{Item: req.Item}
	}
	if r.HasCompleted(actionID) {
		r.Unlock()
		return ErrAlreadyCompleted
	}

	r.CompletedActions = append(r.CompletedActions, actionID)
	if actionID == "borderExit" {
		r.CrossedBorder = true
	}
	username := player.Username
	won := req.Winning && r.MarkWon()
	r.Unlock()

	data, _ := json.Marshal(models.ActionCompletedEvent{
		Action:      actionID,
		Message:     req.Message,
		CompletedBy: username,
	})
	e.broadcaster.ToRoom(r.Code, network.MsgTypeActionCompleted, data)

	if won {
		e.announceGameOver(r, true, "escaped")
	}
	return nil
}

// CheckWin 在每次 NPC 交互后调用：已完成动作中含胜利动作则终局。
// 正常流程下胜利在 PerformAction 内即时宣告，这里兜底。
func (e *Evaluator) CheckWin(r *room.Room) bool {
	r.Lock()
	won := false
	for actionID, req := range actionRequirements {
		if req.Winning && r.HasCompleted(actionID) {
			won = true
			break
		}
	}
	announce := won && r.MarkWon()
	r.Unlock()

	if announce {
		e.announceGameOver(r, true, "escaped")
	}
	return won
}

func (e *Evaluator) announceGameOver(r *room.Room, won bool, reason string) {
	data, _ := json.Marshal(models.GameOverEvent{Won: won, Reason: reason})
	e.broadcaster.ToRoom(r.Code, network.MsgTypeGameOver, data)
	if e.recorder != nil {
		e.recorder.ArchiveGameOver(r, won, reason)
	}
}
