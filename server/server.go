package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/greatescape/gameserver/broadcast"
	"github.com/greatescape/gameserver/chat"
	"github.com/greatescape/gameserver/config"
	"github.com/greatescape/gameserver/dialogue"
	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/monitor"
	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/objective"
	"github.com/greatescape/gameserver/persistence"
	"github.com/greatescape/gameserver/pursuit"
	"github.com/greatescape/gameserver/room"
	gameserver_rpc "github.com/greatescape/gameserver/rpc"
	"github.com/greatescape/gameserver/services"
	"github.com/greatescape/gameserver/session"
	"github.com/greatescape/gameserver/timer"
	"github.com/greatescape/gameserver/world"
)

const heartbeatInterval = 30 * time.Second

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	registry       *room.Registry
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	timers         *timer.TimerManager
	coordinator    *dialogue.Coordinator
	evaluator      *objective.Evaluator
	engine         *pursuit.Engine
	recordService  *services.RecordService
	monitor        *monitor.Monitor
	rpcServer      *gameserver_rpc.Server
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		timers:         timer.NewTimerManager(),
		monitor:        monitor.NewMonitor("escape"),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.registry = room.NewRegistry(s.timers, cfg.Game.MaxPlayers)
	s.broadcaster = broadcast.NewRoomBroadcaster(s.registry, s.sessionManager)
	s.recordService = services.NewRecordService(db)

	obstacles := world.NewObstacleSet(world.DefaultObstacles())
	s.engine = pursuit.NewEngine(
		s.registry, s.broadcaster, obstacles, s.recordService, s.monitor,
		cfg.Game.PursuitTick, cfg.Game.PursuerCount, cfg.Game.CatchRadius,
	)
	s.evaluator = objective.NewEvaluator(s.broadcaster, s.recordService)
	s.coordinator = dialogue.NewCoordinator(
		s.registry, s.broadcaster, chat.NewClient(cfg.Chat), s.timers,
		s.engine, s.evaluator, s.monitor, cfg.Game.DebounceDelay,
	)

	// 初始化RPC服务器
	rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	rpc.Register(gameserver_rpc.NewAdminService(s.registry, s.recordService))

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return http.ListenAndServe(s.cfg.Server.HTTPAddress, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
		// 刷新读超时，两个心跳周期内无数据则断开
		sess.Conn.SetHeartbeat(heartbeatInterval)
	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeStartGame:
		s.handleStartGame(sess, packet)
	case network.MsgTypePlayerMove:
		s.handlePlayerMove(sess, packet)
	case network.MsgTypeEnterNPCChat:
		s.handleEnterNPCChat(sess, packet)
	case network.MsgTypeLeaveNPCChat:
		s.handleLeaveNPCChat(sess, packet)
	case network.MsgTypeSendNPCMessage:
		s.handleSendNPCMessage(sess, packet)
	case network.MsgTypeGetGameState:
		s.handleGetGameState(sess, packet)
	case network.MsgTypePerformAction:
		s.handlePerformAction(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) sendError(sess *session.Session, message string) {
	data, _ := json.Marshal(models.ErrorEvent{Message: message})
	sess.Send(network.MsgTypeError, data)
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) {
	var req models.CreateRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	sess.Username = req.Username
	r := s.registry.CreateRoom(sess.ID, req.Username)
	sess.SetRoom(r.Code)
	s.monitor.SetActiveRooms(s.registry.Count())

	logger.Log.Infof("Room %s created by %s", r.Code, req.Username)

	data, _ := json.Marshal(models.RoomCreatedEvent{RoomCode: r.Code, HostID: sess.ID})
	sess.Send(network.MsgTypeRoomCreated, data)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req models.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	sess.Username = req.Username
	r, err := s.registry.JoinRoom(req.RoomCode, sess.ID, req.Username)
	if err != nil {
		s.sendError(sess, errorText(err))
		return
	}
	sess.SetRoom(r.Code)

	logger.Log.Infof("%s joined room %s", req.Username, r.Code)

	players := r.PlayerSnapshot()
	joined, _ := json.Marshal(models.RoomJoinedEvent{RoomCode: r.Code, Players: players})
	sess.Send(network.MsgTypeRoomJoined, joined)

	event, _ := json.Marshal(models.PlayerJoinedEvent{PlayerID: sess.ID, Player: players[sess.ID]})
	s.broadcaster.ToRoomExcept(r.Code, sess.ID, network.MsgTypePlayerJoined, event)
}

func (s *GameServer) handleStartGame(sess *session.Session, packet *network.Packet) {
	var req models.StartGameRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	r, err := s.registry.StartGame(req.RoomCode, sess.ID)
	if err != nil {
		s.sendError(sess, errorText(err))
		return
	}

	logger.Log.Infof("Game started in room %s", r.Code)

	go s.recordService.SnapshotRoom(r, "started")

	snapshot := r.StateSnapshot()
	data, _ := json.Marshal(models.GameStartedEvent{
		Players:         r.PlayerSnapshot(),
		SharedInventory: snapshot.SharedInventory,
	})
	s.broadcaster.ToRoom(r.Code, network.MsgTypeGameStarted, data)
}

func (s *GameServer) handlePlayerMove(sess *session.Session, packet *network.Packet) {
	var req models.PlayerMoveRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	// 房间或玩家不存在时静默忽略
	if !s.registry.RecordMovement(req.RoomCode, sess.ID, req.Position, req.Sprite, req.Moving) {
		return
	}

	data, _ := json.Marshal(models.PlayerMovedEvent{
		PlayerID: sess.ID,
		Position: req.Position,
		Sprite:   req.Sprite,
		Moving:   req.Moving,
	})
	s.broadcaster.ToRoomExcept(req.RoomCode, sess.ID, network.MsgTypePlayerMoved, data)
}

func (s *GameServer) handleEnterNPCChat(sess *session.Session, packet *network.Packet) {
	var req models.NPCChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	r, exists := s.registry.Get(req.RoomCode)
	if !exists {
		s.sendError(sess, "Room not found")
		return
	}

	r.Lock()
	npc, ok := r.NPCs[req.NPCID]
	if !ok {
		r.Unlock()
		s.sendError(sess, "NPC not found")
		return
	}
	event := models.NPCChatEnteredEvent{
		NPCID:               npc.ID,
		NPCName:             npc.Name,
		Location:            npc.Location,
		ConversationHistory: npc.FormattedHistory(),
	}
	r.Unlock()

	s.broadcaster.JoinNPCGroup(req.RoomCode, req.NPCID, sess.ID)

	data, _ := json.Marshal(event)
	sess.Send(network.MsgTypeNPCChatEntered, data)
}

func (s *GameServer) handleLeaveNPCChat(sess *session.Session, packet *network.Packet) {
	var req models.NPCChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	// 服务端不取消任何定时器，历史保留
	s.broadcaster.LeaveNPCGroup(req.RoomCode, req.NPCID, sess.ID)
}

func (s *GameServer) handleSendNPCMessage(sess *session.Session, packet *network.Packet) {
	var req models.NPCMessageRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	s.coordinator.SubmitMessage(req.RoomCode, sess.ID, req.NPCID, req.Message)
}

func (s *GameServer) handleGetGameState(sess *session.Session, packet *network.Packet) {
	var req models.GetGameStateRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	r, exists := s.registry.Get(req.RoomCode)
	if !exists {
		return
	}

	data, _ := json.Marshal(r.StateSnapshot())
	sess.Send(network.MsgTypeGameState, data)
}

func (s *GameServer) handlePerformAction(sess *session.Session, packet *network.Packet) {
	var req models.PerformActionRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	r, exists := s.registry.Get(req.RoomCode)
	if !exists {
		s.sendError(sess, "Room not found")
		return
	}

	if err := s.evaluator.PerformAction(r, sess.ID, req.ActionID); err != nil {
		s.sendError(sess, errorText(err))
	}
}

func (s *GameServer) handleDisconnect(sess *session.Session) {
	s.sessionManager.Remove(sess.GetID())
	s.broadcaster.DropSession(sess.GetID())
	s.monitor.DecOnlinePlayers()

	code := sess.GetRoom()
	if code == "" {
		return
	}

	// 先通知其余成员再移除：宿主离开会立刻删除房间，删除后的房间
	// 无法再广播
	data, _ := json.Marshal(models.PlayerLeftEvent{PlayerID: sess.ID})
	s.broadcaster.ToRoomExcept(code, sess.ID, network.MsgTypePlayerLeft, data)

	_, deleted := s.registry.RemovePlayer(code, sess.ID)
	if deleted {
		s.broadcaster.DropRoom(code)
		logger.Log.Infof("Room %s deleted", code)
	}
	s.monitor.SetActiveRooms(s.registry.Count())
}

// errorText 校验错误只回传给请求方
func errorText(err error) string {
	switch err {
	case room.ErrRoomNotFound:
		return "Room not found"
	case room.ErrPlayerNotFound:
		return "Player not found"
	case room.ErrRoomFull:
		return "Room is full"
	case room.ErrNotHost:
		return "Only host can start the game"
	case room.ErrNotEnoughPlayers:
		return "Need at least 1 player to start"
	case objective.ErrInvalidAction:
		return "Invalid action"
	case objective.ErrAlreadyCompleted:
		return "This action has already been completed"
	}
	return err.Error()
}
