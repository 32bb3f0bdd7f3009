// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormGameRecord 对局归档（终局时写入）
type GormGameRecord struct {
	gorm.Model
	RoomCode string                 `gorm:"index;not null"`
	Won      bool                   `gorm:"not null"`
	Reason   string                 `gorm:"not null"`
	Players  map[string]interface{} `gorm:"type:jsonb;not null"`
	Result   map[string]interface{} `gorm:"type:jsonb;not null"`
	Duration int                    `gorm:"default:0"` // 对局时长(秒)
}

// GormRoomSnapshot 房间状态快照（调试/统计用，非会话恢复）
type GormRoomSnapshot struct {
	gorm.Model
	RoomCode string                 `gorm:"uniqueIndex;not null"`
	State    string                 `gorm:"not null"`
	Players  map[string]interface{} `gorm:"type:jsonb"`
}

// GameRecord 与存储实现无关的归档载体
type GameRecord struct {
	RoomCode string                 `json:"room_code"`
	Won      bool                   `json:"won"`
	Reason   string                 `json:"reason"`
	Players  map[string]interface{} `json:"players"`
	Result   map[string]interface{} `json:"result"`
	Duration int                    `json:"duration"`
}

// RoomStats 汇总统计
type RoomStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
}
