// persistence/interface.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/greatescape/gameserver/models"
)

// Database 对局归档接口。两种 Postgres 实现：database/sql + lib/pq
// 与 GORM。归档只存终局记录与调试快照，不做会话恢复。
type Database interface {
	SaveGameRecord(record *models.GameRecord) error
	SaveRoomSnapshot(roomCode, state string, players map[string]interface{}) error
	GetRoomStats() (*models.RoomStats, error)
	Close() error
}

// Transactor is satisfied by the GORM implementation only; callers
// that need transactional reads type-assert for it.
type Transactor interface {
	Transaction(fn func(tx *gorm.DB) error) error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
