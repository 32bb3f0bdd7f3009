// Package dialogue batches player messages per NPC, dispatches them to
// the chat-completion backend, and applies the reply's side effects to
// room state.
package dialogue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/greatescape/gameserver/broadcast"
	"github.com/greatescape/gameserver/chat"
	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/timer"
)

// 回退台词：补全为空与调用失败时分别使用（历史均不写入）
const (
	fallbackEmpty   = "I... uh... what?"
	fallbackFailure = "Sorry, I seem to be having trouble understanding you right now."
)

// ChaseStarter hands a room over to the pursuit engine. Calls must be
// idempotent per chase episode.
type ChaseStarter interface {
	StartChase(r *room.Room, triggeredBy string)
}

// WinChecker re-evaluates the win condition after an exchange.
type WinChecker interface {
	CheckWin(r *room.Room) bool
}

// Metrics 可选的调度指标回调。
type Metrics interface {
	IncNPCDispatch()
	IncChatFailure()
	ObserveChatLatency(d time.Duration)
}

// Coordinator implements the per-NPC batching protocol: messages queue
// up, a debounce timer (or a second queued message) triggers a
// dispatch, and the dispatch snapshots-and-clears the queue. At most
// one dispatch is in flight per NPC per queue generation; messages
// arriving mid-flight accumulate for the next one.
type Coordinator struct {
	registry    *room.Registry
	broadcaster broadcast.Broadcaster
	completer   chat.Completer
	timers      *timer.TimerManager
	chase       ChaseStarter
	winCheck    WinChecker
	metrics     Metrics

	debounce time.Duration
}

func NewCoordinator(registry *room.Registry, broadcaster broadcast.Broadcaster, completer chat.Completer, timers *timer.TimerManager, chase ChaseStarter, winCheck WinChecker, metrics Metrics, debounce time.Duration) *Coordinator {
	return &Coordinator{
		registry:    registry,
		broadcaster: broadcaster,
		completer:   completer,
		timers:      timers,
		chase:       chase,
		winCheck:    winCheck,
		metrics:     metrics,
		debounce:    debounce,
	}
}

// SubmitMessage 玩家向 NPC 发消息：立即在子组内回显原文，进入该 NPC
// 的待处理队列；满两条立即调度，否则武装去抖定时器。房间、NPC 或
// 玩家不存在时静默忽略。
func (c *Coordinator) SubmitMessage(code, sessionID, npcID, text string) {
	r, exists := c.registry.Get(code)
	if !exists {
		return
	}

	r.Lock()
	npc, ok := r.NPCs[npcID]
	if !ok {
		r.Unlock()
		return
	}
	player, ok := r.Players[sessionID]
	if !ok {
		r.Unlock()
		return
	}
	username := player.Username

	npc.Pending = append(npc.Pending, models.ChatMessage{
		Role:    "user",
		Content: username + ": " + text,
	})

	// 新消息总是取消已武装的去抖定时器
	if npc.TimerID != 0 {
		c.timers.RemoveTimer(npc.TimerID)
		npc.TimerID = 0
	}

	dispatchNow := len(npc.Pending) >= 2
	if !dispatchNow {
		npc.TimerID = c.timers.AddTimer(c.debounce, 0, func() {
			c.dispatch(code, npcID)
		})
	}
	r.Unlock()

	echo, _ := json.Marshal(models.NPCMessageEvent{
		NPCID:     npcID,
		Sender:    username,
		Message:   text,
		IsNPC:     false,
		Timestamp: time.Now().UnixMilli(),
	})
	c.broadcaster.ToNPCGroup(code, npcID, network.MsgTypeNPCMessage, echo)

	if dispatchNow {
		go c.dispatch(code, npcID)
	}
}

// dispatch 原子地取走待处理队列并调用补全服务。定时器触发与阈值
// 触发都会走到这里；恢复点处重新校验房间与 NPC 仍存在。
func (c *Coordinator) dispatch(code, npcID string) {
	r, exists := c.registry.Get(code)
	if !exists {
		return
	}

	r.Lock()
	npc, ok := r.NPCs[npcID]
	if !ok {
		r.Unlock()
		return
	}
	if npc.TimerID != 0 {
		c.timers.RemoveTimer(npc.TimerID)
		npc.TimerID = 0
	}
	if len(npc.Pending) == 0 {
		r.Unlock()
		return
	}

	snapshot := npc.Pending
	npc.Pending = nil

	messages := make([]models.ChatMessage, 0, len(npc.History)+len(snapshot)+1)
	messages = append(messages, models.ChatMessage{Role: "system", Content: npc.Persona})
	messages = append(messages, npc.History...)
	messages = append(messages, snapshot...)
	npcName := npc.Name
	r.Unlock()

	c.setTyping(code, npcID, true)
	if c.metrics != nil {
		c.metrics.IncNPCDispatch()
	}

	started := time.Now()
	reply, err := c.completer.Complete(context.Background(), messages)
	if c.metrics != nil {
		c.metrics.ObserveChatLatency(time.Since(started))
	}

	// 异步恢复点：补全期间房间可能已被删除
	r, exists = c.registry.Get(code)
	if !exists {
		return
	}
	r.Lock()
	npc, ok = r.NPCs[npcID]
	r.Unlock()
	if !ok {
		return
	}

	if err != nil || reply == "" {
		if c.metrics != nil {
			c.metrics.IncChatFailure()
		}
		fallback := fallbackEmpty
		if err != nil {
			logger.Log.Warnf("Completion failed for %s in room %s: %v", npcID, code, err)
			fallback = fallbackFailure
		}
		c.sendNPCReply(code, npcID, npcName, fallback)
		c.setTyping(code, npcID, false)
		return
	}

	r.Lock()
	npc.AppendHistory(snapshot...)
	npc.AppendHistory(models.ChatMessage{Role: "assistant", Content: reply})
	r.Unlock()

	c.sendNPCReply(code, npcID, npcName, reply)
	c.setTyping(code, npcID, false)

	c.applySideEffects(r, npcID, npcName, reply)
	c.winCheck.CheckWin(r)
}

// applySideEffects 对成功回复执行道具授予与追捕触发规则。
func (c *Coordinator) applySideEffects(r *room.Room, npcID, npcName, reply string) {
	for _, rule := range grantRules {
		if !rule.Matches(npcID, reply) {
			continue
		}
		r.Lock()
		granted := r.GrantItem(rule.Item)
		r.Unlock()
		if !granted {
			continue
		}
		data, _ := json.Marshal(models.ItemReceivedEvent{Item: rule.Item, From: rule.From})
		c.broadcaster.ToRoom(r.Code, network.MsgTypeItemReceived, data)
		logger.Log.Infof("Room %s received %s from %s", r.Code, rule.Item, rule.From)
	}

	if triggersChase(npcID, reply) {
		c.chase.StartChase(r, npcName)
	}
}

func (c *Coordinator) sendNPCReply(code, npcID, npcName, text string) {
	data, _ := json.Marshal(models.NPCMessageEvent{
		NPCID:     npcID,
		Sender:    npcName,
		Message:   text,
		IsNPC:     true,
		Timestamp: time.Now().UnixMilli(),
	})
	c.broadcaster.ToNPCGroup(code, npcID, network.MsgTypeNPCMessage, data)
}

func (c *Coordinator) setTyping(code, npcID string, typing bool) {
	data, _ := json.Marshal(models.NPCTypingEvent{NPCID: npcID, IsTyping: typing})
	c.broadcaster.ToNPCGroup(code, npcID, network.MsgTypeNPCTyping, data)
}
