// models/models.go
package models

// Position 世界坐标
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sprite 朝向/动画帧状态
type Sprite struct {
	Row   int `json:"row"`
	Frame int `json:"frame"`
}

// PlayerState 玩家信息（广播用）
type PlayerState struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Position Position `json:"position"`
	Sprite   Sprite   `json:"sprite"`
	Moving   bool     `json:"moving"`
}

// ChatMessage 对话历史中的一条消息（role-tagged，发给补全服务）
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NPCChatLine 格式化后的历史条目（发给客户端）
type NPCChatLine struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	IsNPC   bool   `json:"isNPC"`
}

// PursuerState 追捕单位位置快照（每 tick 广播）
type PursuerState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Sprite   Sprite   `json:"sprite"`
}

// --- 请求负载 ---

type CreateRoomRequest struct {
	Username string `json:"username"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type StartGameRequest struct {
	RoomCode string `json:"roomCode"`
}

type PlayerMoveRequest struct {
	RoomCode string   `json:"roomCode"`
	Position Position `json:"position"`
	Sprite   Sprite   `json:"sprite"`
	Moving   bool     `json:"moving"`
}

type NPCChatRequest struct {
	RoomCode string `json:"roomCode"`
	NPCID    string `json:"npcId"`
}

type NPCMessageRequest struct {
	RoomCode string `json:"roomCode"`
	NPCID    string `json:"npcId"`
	Message  string `json:"message"`
}

type GetGameStateRequest struct {
	RoomCode string `json:"roomCode"`
}

type PerformActionRequest struct {
	RoomCode string `json:"roomCode"`
	ActionID string `json:"actionId"`
}

// --- 事件负载 ---

type RoomCreatedEvent struct {
	RoomCode string `json:"roomCode"`
	HostID   string `json:"hostId"`
}

type RoomJoinedEvent struct {
	RoomCode string                  `json:"roomCode"`
	Players  map[string]*PlayerState `json:"players"`
}

type PlayerJoinedEvent struct {
	PlayerID string       `json:"playerId"`
	Player   *PlayerState `json:"player"`
}

type PlayerMovedEvent struct {
	PlayerID string   `json:"playerId"`
	Position Position `json:"position"`
	Sprite   Sprite   `json:"sprite"`
	Moving   bool     `json:"moving"`
}

type PlayerLeftEvent struct {
	PlayerID string `json:"playerId"`
}

type GameStartedEvent struct {
	Players         map[string]*PlayerState `json:"players"`
	SharedInventory []string                `json:"sharedInventory"`
}

type NPCChatEnteredEvent struct {
	NPCID               string        `json:"npcId"`
	NPCName             string        `json:"npcName"`
	Location            string        `json:"location"`
	ConversationHistory []NPCChatLine `json:"conversationHistory"`
}

type NPCMessageEvent struct {
	NPCID     string `json:"npcId"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	IsNPC     bool   `json:"isNPC"`
	Timestamp int64  `json:"timestamp"`
}

type NPCTypingEvent struct {
	NPCID    string `json:"npcId"`
	IsTyping bool   `json:"isTyping"`
}

type ItemReceivedEvent struct {
	Item string `json:"item"`
	From string `json:"from"`
}

type ActionCompletedEvent struct {
	Action      string `json:"action"`
	Message     string `json:"message"`
	CompletedBy string `json:"completedBy"`
}

type ChaseStartedEvent struct {
	TriggeredBy string `json:"triggeredBy"`
}

type PursuitUpdateEvent struct {
	Units []PursuerState `json:"units"`
}

type GameStateEvent struct {
	SharedInventory  []string `json:"sharedInventory"`
	Arrested         bool     `json:"arrested"`
	CrossedBorder    bool     `json:"crossedBorder"`
	GameWon          bool     `json:"gameWon"`
	GameLost         bool     `json:"gameLost"`
	CompletedActions []string `json:"completedActions"`
}

type GameOverEvent struct {
	Won    bool   `json:"won"`
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
