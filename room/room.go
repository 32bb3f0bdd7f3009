// room/room.go
package room

import (
	"math/rand"
	"sync"
	"time"

	"github.com/greatescape/gameserver/models"
)

// Room 是一局逃脱游戏的核心结构。除注明外，所有字段都由房间锁保护；
// 组件在异步恢复点（定时器、补全调用、追捕 tick）必须先通过
// Registry 重新确认房间仍然存在。
type Room struct {
	Code      string
	Host      string // host session id
	CreatedAt time.Time

	Players map[string]*models.PlayerState
	NPCs    map[string]*NPCState

	SharedInventory  []string
	CompletedActions []string

	GameStarted   bool
	IsBeingChased bool
	GameWon       bool
	GameLost      bool
	Arrested      bool
	CrossedBorder bool

	// pursuitStop halts the pursuit tick loop; nil until a chase
	// trigger fires, created at most once per chase episode.
	pursuitStop chan struct{}

	mu sync.Mutex
}

func newRoom(code, hostID, username string) *Room {
	return &Room{
		Code:      code,
		Host:      hostID,
		CreatedAt: time.Now(),
		Players: map[string]*models.PlayerState{
			hostID: {
				ID:       hostID,
				Username: username,
				Position: models.Position{X: 512, Y: 512},
			},
		},
		NPCs: NewNPCSet(),
	}
}

// Lock 房间粒度互斥。跨字段的复合操作必须持锁执行。
func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// HasItem reports whether the shared inventory holds item.
// Caller must hold the room lock.
func (r *Room) HasItem(item string) bool {
	for _, held := range r.SharedInventory {
		if held == item {
			return true
		}
	}
	return false
}

// GrantItem adds item to the shared inventory. Returns false if the
// item was already held. Caller must hold the room lock.
func (r *Room) GrantItem(item string) bool {
	if r.HasItem(item) {
		return false
	}
	r.SharedInventory = append(r.SharedInventory, item)
	return true
}

// HasCompleted reports whether actionID has been performed.
// Caller must hold the room lock.
func (r *Room) HasCompleted(actionID string) bool {
	for _, done := range r.CompletedActions {
		if done == actionID {
			return true
		}
	}
	return false
}

// Terminal reports whether the game has ended either way.
// Caller must hold the room lock.
func (r *Room) Terminal() bool {
	return r.GameWon || r.GameLost
}

// MarkWon sets the won terminal state. Returns false if the game had
// already ended; terminal states are never unset or doubled.
// Caller must hold the room lock.
func (r *Room) MarkWon() bool {
	if r.Terminal() {
		return false
	}
	r.GameWon = true
	return true
}

// MarkLost sets the lost terminal state, with arrested bookkeeping.
// Returns false if the game had already ended. Caller must hold the
// room lock.
func (r *Room) MarkLost(arrested bool) bool {
	if r.Terminal() {
		return false
	}
	r.GameLost = true
	if arrested {
		r.Arrested = true
	}
	return true
}

// BeginChase flips IsBeingChased and hands out the stop channel for
// the pursuit loop. The second return is false when a chase is already
// running — the trigger is then ignored. Caller must hold the room
// lock.
func (r *Room) BeginChase() (chan struct{}, bool) {
	if r.IsBeingChased {
		return nil, false
	}
	r.IsBeingChased = true
	r.pursuitStop = make(chan struct{})
	return r.pursuitStop, true
}

// StopPursuit halts the pursuit loop if one is running.
// Caller must hold the room lock.
func (r *Room) StopPursuit() {
	if r.pursuitStop != nil {
		close(r.pursuitStop)
		r.pursuitStop = nil
	}
}

// PlayerSnapshot 返回玩家表的浅拷贝（广播负载用）。
func (r *Room) PlayerSnapshot() map[string]*models.PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make(map[string]*models.PlayerState, len(r.Players))
	for id, p := range r.Players {
		copied := *p
		players[id] = &copied
	}
	return players
}

// StateSnapshot 返回 get-game-state 的负载。
func (r *Room) StateSnapshot() models.GameStateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv := make([]string, len(r.SharedInventory))
	copy(inv, r.SharedInventory)
	done := make([]string, len(r.CompletedActions))
	copy(done, r.CompletedActions)

	return models.GameStateEvent{
		SharedInventory:  inv,
		Arrested:         r.Arrested,
		CrossedBorder:    r.CrossedBorder,
		GameWon:          r.GameWon,
		GameLost:         r.GameLost,
		CompletedActions: done,
	}
}

// --- 房间注册表 ---

// TimerCanceller cancels scheduled tasks owned by a room at teardown.
type TimerCanceller interface {
	RemoveTimer(timerId int64)
}

// Registry owns every live room. Handlers receive the registry by
// reference; there is no ambient room map.
type Registry struct {
	rooms      map[string]*Room
	mutex      sync.RWMutex
	timers     TimerCanceller
	maxPlayers int
}

func NewRegistry(timers TimerCanceller, maxPlayers int) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		timers:     timers,
		maxPlayers: maxPlayers,
	}
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (reg *Registry) generateCode() string {
	code := make([]byte, 6)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}

// CreateRoom 总是成功；生成短码直到与现存房间不冲突。
func (reg *Registry) CreateRoom(hostID, username string) *Room {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	code := reg.generateCode()
	for _, exists := reg.rooms[code]; exists; _, exists = reg.rooms[code] {
		code = reg.generateCode()
	}

	room := newRoom(code, hostID, username)
	reg.rooms[code] = room
	return room
}

// JoinRoom adds a player. A room only refuses joiners once the game
// has started and it is at capacity.
func (reg *Registry) JoinRoom(code, sessionID, username string) (*Room, error) {
	reg.mutex.RLock()
	room, exists := reg.rooms[code]
	reg.mutex.RUnlock()
	if !exists {
		return nil, ErrRoomNotFound
	}

	room.Lock()
	defer room.Unlock()

	if room.GameStarted && len(room.Players) >= reg.maxPlayers {
		return nil, ErrRoomFull
	}

	room.Players[sessionID] = &models.PlayerState{
		ID:       sessionID,
		Username: username,
		Position: models.Position{X: 512, Y: 600},
	}
	return room, nil
}

// StartGame flips the room into its started state. Only the host may
// start, and at least one player must be present.
func (reg *Registry) StartGame(code, requesterID string) (*Room, error) {
	reg.mutex.RLock()
	room, exists := reg.rooms[code]
	reg.mutex.RUnlock()
	if !exists {
		return nil, ErrRoomNotFound
	}

	room.Lock()
	defer room.Unlock()

	if room.Host != requesterID {
		return nil, ErrNotHost
	}
	if len(room.Players) < 1 {
		return nil, ErrNotEnoughPlayers
	}

	room.GameStarted = true
	return room, nil
}

// RecordMovement updates a player's position. A missing room or player
// is a silent no-op.
func (reg *Registry) RecordMovement(code, playerID string, pos models.Position, sprite models.Sprite, moving bool) bool {
	reg.mutex.RLock()
	room, exists := reg.rooms[code]
	reg.mutex.RUnlock()
	if !exists {
		return false
	}

	room.Lock()
	defer room.Unlock()

	player, ok := room.Players[playerID]
	if !ok {
		return false
	}
	player.Position = pos
	player.Sprite = sprite
	player.Moving = moving
	return true
}

// RemovePlayer drops a player on disconnect. The room is torn down —
// all of its scheduled tasks cancelled — when it becomes empty or the
// departing player was host. Returns the room and whether it was
// deleted.
func (reg *Registry) RemovePlayer(code, sessionID string) (*Room, bool) {
	reg.mutex.Lock()
	room, exists := reg.rooms[code]
	if !exists {
		reg.mutex.Unlock()
		return nil, false
	}

	room.Lock()
	delete(room.Players, sessionID)
	empty := len(room.Players) == 0
	wasHost := room.Host == sessionID

	if empty || wasHost {
		delete(reg.rooms, code)
		reg.mutex.Unlock()
		reg.teardownLocked(room)
		room.Unlock()
		return room, true
	}

	room.Unlock()
	reg.mutex.Unlock()
	return room, false
}

// Get 查找房间。异步恢复点用它重新校验房间是否仍然存在。
func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	room, exists := reg.rooms[code]
	return room, exists
}

func (reg *Registry) Count() int {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	return len(reg.rooms)
}

// teardownLocked cancels every scheduled task the room owns: armed
// debounce timers and the pursuit loop. Room lock must be held.
func (reg *Registry) teardownLocked(room *Room) {
	for _, npc := range room.NPCs {
		if npc.TimerID != 0 {
			reg.timers.RemoveTimer(npc.TimerID)
			npc.TimerID = 0
		}
	}
	room.StopPursuit()
}
