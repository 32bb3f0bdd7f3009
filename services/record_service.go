// services/record_service.go
package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/persistence"
	"github.com/greatescape/gameserver/room"
)

// RecordService archives finished games and serves aggregate stats.
// A nil database is allowed: archival then degrades to a no-op so the
// server runs without Postgres.
type RecordService struct {
	db persistence.Database
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

func playerDump(r *room.Room) map[string]interface{} {
	players := make(map[string]interface{})
	for id, p := range r.PlayerSnapshot() {
		players[id] = map[string]interface{}{
			"username": p.Username,
			"x":        p.Position.X,
			"y":        p.Position.Y,
		}
	}
	return players
}

// SnapshotRoom 保存房间状态快照（按房间码 UPSERT），失败只记日志。
func (s *RecordService) SnapshotRoom(r *room.Room, state string) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveRoomSnapshot(r.Code, state, playerDump(r)); err != nil {
		logger.Log.Errorf("Failed to snapshot room %s: %v", r.Code, err)
	}
}

// ArchiveGameOver 终局时写入对局记录。归档失败只记日志，不影响房间。
func (s *RecordService) ArchiveGameOver(r *room.Room, won bool, reason string) {
	if s.db == nil {
		return
	}

	snapshot := r.StateSnapshot()
	players := playerDump(r)

	record := &models.GameRecord{
		RoomCode: r.Code,
		Won:      won,
		Reason:   reason,
		Players:  players,
		Result: map[string]interface{}{
			"shared_inventory":  snapshot.SharedInventory,
			"completed_actions": snapshot.CompletedActions,
			"arrested":          snapshot.Arrested,
			"crossed_border":    snapshot.CrossedBorder,
		},
		Duration: int(time.Since(r.CreatedAt).Seconds()),
	}

	if err := s.db.SaveGameRecord(record); err != nil {
		logger.Log.Errorf("Failed to archive game record for room %s: %v", r.Code, err)
	}
	s.SnapshotRoom(r, "finished")
}

// GetStatsWithRecent 返回汇总统计；GORM 实现下在单个事务中附带
// 最近对局数，其余实现退化为普通查询。
func (s *RecordService) GetStatsWithRecent(since time.Duration) (map[string]interface{}, error) {
	if s.db == nil {
		return map[string]interface{}{"stats": &models.RoomStats{}}, nil
	}

	result := make(map[string]interface{})

	if tx, ok := s.db.(persistence.Transactor); ok {
		err := tx.Transaction(func(db *gorm.DB) error {
			var stats models.RoomStats
			if err := db.Raw(`
                SELECT
                    COUNT(*) as total_games,
                    COALESCE(SUM(CASE WHEN won THEN 1 ELSE 0 END), 0) as wins,
                    COALESCE(SUM(CASE WHEN won THEN 0 ELSE 1 END), 0) as losses
                FROM game_records
            `).Scan(&stats).Error; err != nil {
				return err
			}

			var recent int64
			if err := db.Model(&models.GormGameRecord{}).
				Where("created_at > ?", time.Now().Add(-since)).
				Count(&recent).Error; err != nil {
				return err
			}

			result["stats"] = &stats
			result["recent_games"] = recent
			return nil
		})
		return result, err
	}

	stats, err := s.db.GetRoomStats()
	if err != nil {
		return nil, err
	}
	result["stats"] = stats
	return result, nil
}
