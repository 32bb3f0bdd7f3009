// persistence/gorm_postgresql.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/greatescape/gameserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}, &models.GormRoomSnapshot{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveGameRecord 保存终局记录
func (p *GormPostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	row := models.GormGameRecord{
		RoomCode: record.RoomCode,
		Won:      record.Won,
		Reason:   record.Reason,
		Players:  record.Players,
		Result:   record.Result,
		Duration: record.Duration,
	}
	return p.db.Create(&row).Error
}

// SaveRoomSnapshot 保存房间状态快照（UPSERT）
func (p *GormPostgreSQL) SaveRoomSnapshot(roomCode, state string, players map[string]interface{}) error {
	var snap models.GormRoomSnapshot
	result := p.db.Where("room_code = ?", roomCode).First(&snap)

	if result.Error == gorm.ErrRecordNotFound {
		snap = models.GormRoomSnapshot{
			RoomCode: roomCode,
			State:    state,
			Players:  players,
		}
		return p.db.Create(&snap).Error
	} else if result.Error != nil {
		return result.Error
	}

	snap.State = state
	snap.Players = players
	return p.db.Save(&snap).Error
}

// GetRoomStats 汇总胜负统计
func (p *GormPostgreSQL) GetRoomStats() (*models.RoomStats, error) {
	var stats models.RoomStats
	err := p.db.Raw(`
        SELECT
            COUNT(*) as total_games,
            COALESCE(SUM(CASE WHEN won THEN 1 ELSE 0 END), 0) as wins,
            COALESCE(SUM(CASE WHEN won THEN 0 ELSE 1 END), 0) as losses
        FROM game_records
    `).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction 事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}
