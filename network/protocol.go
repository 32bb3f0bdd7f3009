package network

// 客户端 -> 服务端
const (
	MsgTypeHeartbeat      = 1
	MsgTypeCreateRoom     = 101
	MsgTypeJoinRoom       = 102
	MsgTypeStartGame      = 103
	MsgTypePlayerMove     = 104
	MsgTypeEnterNPCChat   = 105
	MsgTypeLeaveNPCChat   = 106
	MsgTypeSendNPCMessage = 107
	MsgTypeGetGameState   = 108
	MsgTypePerformAction  = 109
)

// 服务端 -> 客户端
const (
	MsgTypeRoomCreated     = 201
	MsgTypeRoomJoined      = 202
	MsgTypePlayerJoined    = 203
	MsgTypePlayerMoved     = 204
	MsgTypePlayerLeft      = 205
	MsgTypeGameStarted     = 206
	MsgTypeNPCChatEntered  = 207
	MsgTypeNPCMessage      = 208
	MsgTypeNPCTyping       = 209
	MsgTypeItemReceived    = 210
	MsgTypeActionCompleted = 211
	MsgTypeChaseStarted    = 212
	MsgTypePursuitUpdate   = 213
	MsgTypeGameState       = 214
	MsgTypeGameOver        = 215
	MsgTypeError           = 255
)
