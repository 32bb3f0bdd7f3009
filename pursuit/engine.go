// Package pursuit drives the AI pursuers that hunt players once a
// chase trigger fires. Each chasing room runs its own fixed-period
// tick loop; the loop halts when the room reaches a terminal state or
// is deleted.
package pursuit

import (
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/greatescape/gameserver/broadcast"
	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/world"
)

const (
	// unitHalf 追捕单位碰撞半宽
	unitHalf = 20.0

	// 连续推进不足阈值：达到后跳过直线策略，直接径向搜索
	notAdvancingThreshold = 10
	// 连续未移动阈值：达到后进入大半径随机探索
	stuckThreshold = 15

	radialRings      = 3
	radialRingGrowth = 1.5
	recoverySamples  = 24
	recoveryRadius   = 4.0

	// 出生点：警察局门口，单位按 spawnStagger 错开
	spawnX       = 4106.0
	spawnY       = 4306.0
	spawnStagger = 48.0

	baseSpeed = 5.0
	speedStep = 0.6
)

// sprite rows: 0 down, 1 left, 2 right, 3 up (dominant axis wins ties)
const (
	rowDown  = 0
	rowLeft  = 1
	rowRight = 2
	rowUp    = 3
)

// Unit 单个追捕单位。仅由所属房间的 tick 循环访问。
type Unit struct {
	ID           string
	Pos          models.Position
	Speed        float64
	Sprite       models.Sprite
	prevDist     float64
	notAdvancing int
	stuck        int
}

// Recorder archives finished games.
type Recorder interface {
	ArchiveGameOver(r *room.Room, won bool, reason string)
}

// Metrics 可选的追捕指标回调。
type Metrics interface {
	IncPursuitCatch()
}

// Engine 追捕引擎。StartChase 每个房间每次追捕事件最多生效一次。
type Engine struct {
	registry    *room.Registry
	broadcaster broadcast.Broadcaster
	obstacles   *world.ObstacleSet
	recorder    Recorder
	metrics     Metrics

	tick        time.Duration
	unitCount   int
	catchRadius float64
}

func NewEngine(registry *room.Registry, broadcaster broadcast.Broadcaster, obstacles *world.ObstacleSet, recorder Recorder, metrics Metrics, tick time.Duration, unitCount int, catchRadius float64) *Engine {
	return &Engine{
		registry:    registry,
		broadcaster: broadcaster,
		obstacles:   obstacles,
		recorder:    recorder,
		metrics:     metrics,
		tick:        tick,
		unitCount:   unitCount,
		catchRadius: catchRadius,
	}
}

// StartChase 首个追捕触发时启动房间的追捕循环。已在追捕中则忽略。
func (e *Engine) StartChase(r *room.Room, triggeredBy string) {
	r.Lock()
	stop, first := r.BeginChase()
	r.Unlock()
	if !first {
		return
	}

	units := make([]*Unit, e.unitCount)
	for i := range units {
		units[i] = &Unit{
			ID:    string(rune('A' + i)),
			Pos:   models.Position{X: spawnX + float64(i)*spawnStagger, Y: spawnY},
			Speed: baseSpeed + float64(i)*speedStep,
		}
	}

	data, _ := json.Marshal(models.ChaseStartedEvent{TriggeredBy: triggeredBy})
	e.broadcaster.ToRoom(r.Code, network.MsgTypeChaseStarted, data)
	logger.Log.Infof("Chase started in room %s (%d pursuers)", r.Code, len(units))

	go e.loop(r.Code, units, stop)
}

func (e *Engine) loop(code string, units []*Unit, stop chan struct{}) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.step(code, units) {
				return
			}
		}
	}
}

// step advances every unit by one tick. Returns false when the loop
// must halt: room gone, terminal state already set, or a catch.
func (e *Engine) step(code string, units []*Unit) bool {
	// 异步恢复点：房间可能已在两个 tick 之间被删除
	r, exists := e.registry.Get(code)
	if !exists {
		return false
	}

	r.Lock()
	if r.Terminal() {
		r.Unlock()
		return false
	}
	players := make([]models.Position, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, p.Position)
	}
	r.Unlock()

	if len(players) == 0 {
		return true
	}

	caught := false
	for _, u := range units {
		target, dist := nearest(u.Pos, players)
		e.advance(u, target, dist)

		if distance(u.Pos, target) < e.catchRadius {
			caught = true
		}
	}

	states := make([]models.PursuerState, len(units))
	for i, u := range units {
		states[i] = models.PursuerState{ID: u.ID, Position: u.Pos, Sprite: u.Sprite}
	}
	data, _ := json.Marshal(models.PursuitUpdateEvent{Units: states})
	e.broadcaster.ToRoom(code, network.MsgTypePursuitUpdate, data)

	if caught {
		// 多个单位同 tick 抓到也只宣告一次
		r.Lock()
		first := r.MarkLost(true)
		r.Unlock()
		if first {
			over, _ := json.Marshal(models.GameOverEvent{Won: false, Reason: "arrested"})
			e.broadcaster.ToRoom(code, network.MsgTypeGameOver, over)
			if e.recorder != nil {
				e.recorder.ArchiveGameOver(r, false, "arrested")
			}
			if e.metrics != nil {
				e.metrics.IncPursuitCatch()
			}
			logger.Log.Infof("Players arrested in room %s", code)
		}
		return false
	}
	return true
}

// advance applies the movement policy ladder for one unit.
func (e *Engine) advance(u *Unit, target models.Position, dist float64) {
	// 推进度量：相比上个 tick 缩短不足半个速度视为没有进展。
	// 两次都取移动前的距离，差值即上个 tick 的净推进。
	if u.prevDist > 0 {
		if u.prevDist-dist < u.Speed/2 {
			u.notAdvancing++
		} else if u.notAdvancing > 0 {
			u.notAdvancing--
		}
	}
	u.prevDist = dist

	forceAlternative := u.notAdvancing >= notAdvancingThreshold

	var moved, directMove bool
	var next models.Position

	if !forceAlternative {
		if next, moved = e.directStep(u, target, dist); moved {
			directMove = true
		} else if next, moved = e.axisStep(u, target); moved {
			directMove = true
		}
	}
	if !moved {
		next, moved = e.radialStep(u, target, forceAlternative)
	}

	if !moved {
		u.stuck++
		if u.stuck >= stuckThreshold {
			if next, moved = e.recoveryStep(u); moved {
				u.stuck = 0
				u.notAdvancing = 0
			}
		}
	}

	if moved {
		dx, dy := next.X-u.Pos.X, next.Y-u.Pos.Y
		u.Pos = next
		u.Sprite = faceDisplacement(u.Sprite, dx, dy)
		if directMove {
			u.stuck = 0
		}
	}
}

// directStep 沿指向目标的完整向量走一步。
func (e *Engine) directStep(u *Unit, target models.Position, dist float64) (models.Position, bool) {
	if dist == 0 {
		return u.Pos, false
	}
	next := models.Position{
		X: u.Pos.X + (target.X-u.Pos.X)/dist*u.Speed,
		Y: u.Pos.Y + (target.Y-u.Pos.Y)/dist*u.Speed,
	}
	if e.obstacles.Blocked(next.X, next.Y, unitHalf) {
		return u.Pos, false
	}
	return next, true
}

// axisStep 沿主位移轴走一步，被挡则退回另一根轴。
func (e *Engine) axisStep(u *Unit, target models.Position) (models.Position, bool) {
	dx, dy := target.X-u.Pos.X, target.Y-u.Pos.Y

	stepX := models.Position{X: u.Pos.X + sign(dx)*u.Speed, Y: u.Pos.Y}
	stepY := models.Position{X: u.Pos.X, Y: u.Pos.Y + sign(dy)*u.Speed}

	order := []models.Position{stepX, stepY}
	if math.Abs(dy) > math.Abs(dx) {
		order = []models.Position{stepY, stepX}
	}
	for _, next := range order {
		if next != u.Pos && !e.obstacles.Blocked(next.X, next.Y, unitHalf) {
			return next, true
		}
	}
	return u.Pos, false
}

// radialStep 在逐级放大的半径上采样方向，取可达且离目标最近的点。
// force-alternative 模式用 16 个方向，否则 8 个。
func (e *Engine) radialStep(u *Unit, target models.Position, forceAlternative bool) (models.Position, bool) {
	directions := 8
	if forceAlternative {
		directions = 16
	}

	radius := u.Speed
	for ring := 0; ring < radialRings; ring++ {
		best := u.Pos
		bestDist := math.Inf(1)
		for i := 0; i < directions; i++ {
			angle := 2 * math.Pi * float64(i) / float64(directions)
			cand := models.Position{
				X: u.Pos.X + math.Cos(angle)*radius,
				Y: u.Pos.Y + math.Sin(angle)*radius,
			}
			if e.obstacles.Blocked(cand.X, cand.Y, unitHalf) {
				continue
			}
			if d := distance(cand, target); d < bestDist {
				best, bestDist = cand, d
			}
		}
		if !math.IsInf(bestDist, 1) {
			return best, true
		}
		radius *= radialRingGrowth
	}
	return u.Pos, false
}

// recoveryStep 大半径随机探索：多方向打乱后取第一个可达点。
func (e *Engine) recoveryStep(u *Unit) (models.Position, bool) {
	order := rand.Perm(recoverySamples)
	radius := u.Speed * recoveryRadius
	for _, i := range order {
		angle := 2 * math.Pi * float64(i) / float64(recoverySamples)
		cand := models.Position{
			X: u.Pos.X + math.Cos(angle)*radius,
			Y: u.Pos.Y + math.Sin(angle)*radius,
		}
		if !e.obstacles.Blocked(cand.X, cand.Y, unitHalf) {
			return cand, true
		}
	}
	return u.Pos, false
}

func faceDisplacement(sprite models.Sprite, dx, dy float64) models.Sprite {
	row := sprite.Row
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			row = rowRight
		} else {
			row = rowLeft
		}
	} else {
		if dy >= 0 {
			row = rowDown
		} else {
			row = rowUp
		}
	}
	return models.Sprite{Row: row, Frame: (sprite.Frame + 1) % 4}
}

func nearest(from models.Position, players []models.Position) (models.Position, float64) {
	best := players[0]
	bestDist := distance(from, best)
	for _, p := range players[1:] {
		if d := distance(from, p); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist
}

func distance(a, b models.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
