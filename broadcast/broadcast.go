// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"sync"

	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// Broadcaster 广播接口。每个房间有两类可寻址分组：房间全员组，
// 以及每个 NPC 一个的对话子组。
type Broadcaster interface {
	ToRoom(code string, msgID uint16, data []byte) error
	ToRoomExcept(code, exceptID string, msgID uint16, data []byte) error
	ToNPCGroup(code, npcID string, msgID uint16, data []byte) error

	JoinNPCGroup(code, npcID, sessionID string)
	LeaveNPCGroup(code, npcID, sessionID string)
	DropSession(sessionID string)
	DropRoom(code string)
}

// RoomBroadcaster 基于注册表和会话管理器的广播器实现。
type RoomBroadcaster struct {
	registry       *room.Registry
	sessionManager *session.Manager

	// code -> npcID -> session ids currently in that conversation
	npcGroups map[string]map[string]map[string]struct{}
	mutex     sync.RWMutex
}

func NewRoomBroadcaster(registry *room.Registry, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		registry:       registry,
		sessionManager: sessionManager,
		npcGroups:      make(map[string]map[string]map[string]struct{}),
	}
}

func (b *RoomBroadcaster) ToRoom(code string, msgID uint16, data []byte) error {
	return b.ToRoomExcept(code, "", msgID, data)
}

// ToRoomExcept 发给房间全员，exceptID 非空时跳过该会话（移动回显）。
func (b *RoomBroadcaster) ToRoomExcept(code, exceptID string, msgID uint16, data []byte) error {
	r, exists := b.registry.Get(code)
	if !exists {
		return ErrRoomNotFound
	}

	for id := range r.PlayerSnapshot() {
		if id == exceptID {
			continue
		}
		if s, ok := b.sessionManager.Get(id); ok {
			// 单个会话发送失败不影响其余成员
			_ = s.Send(msgID, data)
		}
	}
	return nil
}

// ToNPCGroup 发给正处于该 NPC 对话中的成员。
func (b *RoomBroadcaster) ToNPCGroup(code, npcID string, msgID uint16, data []byte) error {
	b.mutex.RLock()
	var members []string
	if groups, ok := b.npcGroups[code]; ok {
		for id := range groups[npcID] {
			members = append(members, id)
		}
	}
	b.mutex.RUnlock()

	for _, id := range members {
		if s, ok := b.sessionManager.Get(id); ok {
			_ = s.Send(msgID, data)
		}
	}
	return nil
}

func (b *RoomBroadcaster) JoinNPCGroup(code, npcID, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.npcGroups[code]; !ok {
		b.npcGroups[code] = make(map[string]map[string]struct{})
	}
	if _, ok := b.npcGroups[code][npcID]; !ok {
		b.npcGroups[code][npcID] = make(map[string]struct{})
	}
	b.npcGroups[code][npcID][sessionID] = struct{}{}
}

func (b *RoomBroadcaster) LeaveNPCGroup(code, npcID, sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if groups, ok := b.npcGroups[code]; ok {
		delete(groups[npcID], sessionID)
	}
}

// DropSession 会话断开时从所有子组移除。
func (b *RoomBroadcaster) DropSession(sessionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, groups := range b.npcGroups {
		for _, members := range groups {
			delete(members, sessionID)
		}
	}
}

// DropRoom 房间销毁时丢弃其全部子组。
func (b *RoomBroadcaster) DropRoom(code string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.npcGroups, code)
}
