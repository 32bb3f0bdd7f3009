package broadcast

import (
	"net"
	"testing"
	"time"

	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/session"
)

// recordingConn captures every frame sent to one session.
type recordingConn struct {
	msgIDs []uint16
}

func (c *recordingConn) Send(msgID uint16, data []byte) error {
	c.msgIDs = append(c.msgIDs, msgID)
	return nil
}

func (c *recordingConn) Close() error                         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr                 { return nil }
func (c *recordingConn) SetHeartbeat(interval time.Duration)  {}
func (c *recordingConn) ReadPacket() (*network.Packet, error) { return nil, nil }

type noopTimers struct{}

func (noopTimers) RemoveTimer(timerId int64) {}

type fixture struct {
	broadcaster *RoomBroadcaster
	registry    *room.Registry
	room        *room.Room
	conns       map[string]*recordingConn
}

// newFixture builds a room with the given session ids, the first of
// which is host.
func newFixture(t *testing.T, sessionIDs ...string) *fixture {
	t.Helper()

	registry := room.NewRegistry(noopTimers{}, 4)
	manager := session.NewManager()
	conns := make(map[string]*recordingConn)

	for _, id := range sessionIDs {
		conn := &recordingConn{}
		conns[id] = conn
		manager.Add(session.NewSession(id, conn))
	}

	r := registry.CreateRoom(sessionIDs[0], "Alice")
	for _, id := range sessionIDs[1:] {
		if _, err := registry.JoinRoom(r.Code, id, id); err != nil {
			t.Fatalf("JoinRoom failed: %v", err)
		}
	}

	return &fixture{
		broadcaster: NewRoomBroadcaster(registry, manager),
		registry:    registry,
		room:        r,
		conns:       conns,
	}
}

func TestToRoom(t *testing.T) {
	f := newFixture(t, "s1", "s2", "s3")

	if err := f.broadcaster.ToRoom(f.room.Code, 204, []byte(`{}`)); err != nil {
		t.Fatalf("ToRoom failed: %v", err)
	}
	for id, conn := range f.conns {
		if len(conn.msgIDs) != 1 || conn.msgIDs[0] != 204 {
			t.Errorf("Session %s expected one 204 frame, got %v", id, conn.msgIDs)
		}
	}

	if err := f.broadcaster.ToRoom("NOPE99", 204, nil); err != ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestToRoomExcept(t *testing.T) {
	f := newFixture(t, "s1", "s2", "s3")

	if err := f.broadcaster.ToRoomExcept(f.room.Code, "s2", 205, []byte(`{}`)); err != nil {
		t.Fatalf("ToRoomExcept failed: %v", err)
	}
	if len(f.conns["s2"].msgIDs) != 0 {
		t.Errorf("Excluded session should receive nothing, got %v", f.conns["s2"].msgIDs)
	}
	if len(f.conns["s1"].msgIDs) != 1 || len(f.conns["s3"].msgIDs) != 1 {
		t.Error("Other sessions should each receive one frame")
	}
}

func TestToNPCGroup(t *testing.T) {
	f := newFixture(t, "s1", "s2", "s3")

	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s1")
	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s2")
	f.broadcaster.JoinNPCGroup(f.room.Code, "policeOfficer", "s3")

	if err := f.broadcaster.ToNPCGroup(f.room.Code, "hardwareClerk", 208, []byte(`{}`)); err != nil {
		t.Fatalf("ToNPCGroup failed: %v", err)
	}
	if len(f.conns["s1"].msgIDs) != 1 || len(f.conns["s2"].msgIDs) != 1 {
		t.Error("Conversation members should each receive one frame")
	}
	if len(f.conns["s3"].msgIDs) != 0 {
		t.Error("Members of other NPC conversations should receive nothing")
	}

	// 空子组：静默成功
	if err := f.broadcaster.ToNPCGroup(f.room.Code, "borderGuard", 208, nil); err != nil {
		t.Errorf("Empty group broadcast should succeed, got %v", err)
	}
}

func TestLeaveNPCGroup(t *testing.T) {
	f := newFixture(t, "s1", "s2")

	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s1")
	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s2")
	f.broadcaster.LeaveNPCGroup(f.room.Code, "hardwareClerk", "s1")

	f.broadcaster.ToNPCGroup(f.room.Code, "hardwareClerk", 208, nil)
	if len(f.conns["s1"].msgIDs) != 0 {
		t.Error("Departed member should receive nothing")
	}
	if len(f.conns["s2"].msgIDs) != 1 {
		t.Error("Remaining member should still receive frames")
	}
}

func TestDropSession(t *testing.T) {
	f := newFixture(t, "s1", "s2")

	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s1")
	f.broadcaster.JoinNPCGroup(f.room.Code, "policeOfficer", "s1")
	f.broadcaster.DropSession("s1")

	f.broadcaster.ToNPCGroup(f.room.Code, "hardwareClerk", 208, nil)
	f.broadcaster.ToNPCGroup(f.room.Code, "policeOfficer", 208, nil)
	if len(f.conns["s1"].msgIDs) != 0 {
		t.Error("Dropped session should be removed from every conversation")
	}
}

func TestDropRoom(t *testing.T) {
	f := newFixture(t, "s1", "s2")

	f.broadcaster.JoinNPCGroup(f.room.Code, "hardwareClerk", "s1")
	f.broadcaster.DropRoom(f.room.Code)

	f.broadcaster.ToNPCGroup(f.room.Code, "hardwareClerk", 208, nil)
	if len(f.conns["s1"].msgIDs) != 0 {
		t.Error("Conversations of a dropped room should be gone")
	}
}
