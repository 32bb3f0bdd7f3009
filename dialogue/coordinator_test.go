package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/models"
	"github.com/greatescape/gameserver/network"
	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/timer"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

// recordingBroadcaster captures broadcast frames for assertions.
type recordingBroadcaster struct {
	mutex  sync.Mutex
	frames []frame
}

type frame struct {
	target string // "room" or "npc"
	npcID  string
	msgID  uint16
	data   []byte
}

func (b *recordingBroadcaster) record(f frame) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.frames = append(b.frames, f)
}

func (b *recordingBroadcaster) ToRoom(code string, msgID uint16, data []byte) error {
	b.record(frame{target: "room", msgID: msgID, data: data})
	return nil
}

func (b *recordingBroadcaster) ToRoomExcept(code, exceptID string, msgID uint16, data []byte) error {
	b.record(frame{target: "room", msgID: msgID, data: data})
	return nil
}

func (b *recordingBroadcaster) ToNPCGroup(code, npcID string, msgID uint16, data []byte) error {
	b.record(frame{target: "npc", npcID: npcID, msgID: msgID, data: data})
	return nil
}

func (b *recordingBroadcaster) JoinNPCGroup(code, npcID, sessionID string)  {}
func (b *recordingBroadcaster) LeaveNPCGroup(code, npcID, sessionID string) {}
func (b *recordingBroadcaster) DropSession(sessionID string)                {}
func (b *recordingBroadcaster) DropRoom(code string)                        {}

// npcMessages decodes the NPC-message frames sent to one conversation.
func (b *recordingBroadcaster) npcMessages(npcID string) []models.NPCMessageEvent {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var events []models.NPCMessageEvent
	for _, f := range b.frames {
		if f.target != "npc" || f.npcID != npcID || f.msgID != network.MsgTypeNPCMessage {
			continue
		}
		var ev models.NPCMessageEvent
		if err := json.Unmarshal(f.data, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

func (b *recordingBroadcaster) countFrames(msgID uint16) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	count := 0
	for _, f := range b.frames {
		if f.msgID == msgID {
			count++
		}
	}
	return count
}

// scriptedCompleter answers with a fixed reply or error. An optional
// gate blocks the call until released, and calls signals each entry.
type scriptedCompleter struct {
	reply string
	err   error
	gate  chan struct{}
	calls chan []models.ChatMessage
}

func newScriptedCompleter(reply string, err error) *scriptedCompleter {
	return &scriptedCompleter{
		reply: reply,
		err:   err,
		calls: make(chan []models.ChatMessage, 8),
	}
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	c.calls <- messages
	if c.gate != nil {
		<-c.gate
	}
	return c.reply, c.err
}

type recordingChase struct {
	mutex sync.Mutex
	calls []string
}

func (c *recordingChase) StartChase(r *room.Room, triggeredBy string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls = append(c.calls, triggeredBy)
}

func (c *recordingChase) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.calls)
}

func (c *recordingChase) first() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calls[0]
}

type noopWinChecker struct{}

func (noopWinChecker) CheckWin(r *room.Room) bool { return false }

type dialogueFixture struct {
	coordinator *Coordinator
	registry    *room.Registry
	room        *room.Room
	broadcaster *recordingBroadcaster
	completer   *scriptedCompleter
	chase       *recordingChase
	timers      *timer.TimerManager
}

func newDialogueFixture(t *testing.T, completer *scriptedCompleter, debounce time.Duration) *dialogueFixture {
	t.Helper()

	timers := timer.NewTimerManager()
	t.Cleanup(timers.Stop)

	registry := room.NewRegistry(timers, 4)
	broadcaster := &recordingBroadcaster{}
	chase := &recordingChase{}

	r := registry.CreateRoom("s1", "Alice")

	return &dialogueFixture{
		coordinator: NewCoordinator(registry, broadcaster, completer, timers, chase, noopWinChecker{}, nil, debounce),
		registry:    registry,
		room:        r,
		broadcaster: broadcaster,
		completer:   completer,
		chase:       chase,
		timers:      timers,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func (f *dialogueFixture) historyLen(npcID string) int {
	f.room.Lock()
	defer f.room.Unlock()
	return len(f.room.NPCs[npcID].History)
}

func TestSubmitMessage_ImmediateEcho(t *testing.T) {
	f := newDialogueFixture(t, newScriptedCompleter("ok", nil), time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "hello there")

	events := f.broadcaster.npcMessages("hardwareClerk")
	if len(events) != 1 {
		t.Fatalf("Expected one echoed frame, got %d", len(events))
	}
	if events[0].Sender != "Alice" || events[0].Message != "hello there" || events[0].IsNPC {
		t.Errorf("Unexpected echo: %+v", events[0])
	}
}

func TestSubmitMessage_UnknownTargetsIgnored(t *testing.T) {
	f := newDialogueFixture(t, newScriptedCompleter("ok", nil), time.Minute)

	f.coordinator.SubmitMessage("NOPE99", "s1", "hardwareClerk", "hi")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "noSuchNPC", "hi")
	f.coordinator.SubmitMessage(f.room.Code, "ghost", "hardwareClerk", "hi")

	if n := len(f.broadcaster.npcMessages("hardwareClerk")); n != 0 {
		t.Errorf("Invalid submissions should be silent, got %d frames", n)
	}
}

func TestDispatch_AfterDebounce(t *testing.T) {
	completer := newScriptedCompleter("Why do you need a shovel at this hour?", nil)
	f := newDialogueFixture(t, completer, 100*time.Millisecond)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "can I buy a shovel?")

	var sent []models.ChatMessage
	select {
	case sent = <-completer.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("Debounce timer never dispatched")
	}

	if sent[0].Role != "system" || sent[0].Content == "" {
		t.Errorf("First message should carry the persona, got %+v", sent[0])
	}
	last := sent[len(sent)-1]
	if last.Role != "user" || last.Content != "Alice: can I buy a shovel?" {
		t.Errorf("Unexpected batched turn: %+v", last)
	}

	waitFor(t, "history write", func() bool { return f.historyLen("hardwareClerk") == 2 })

	events := f.broadcaster.npcMessages("hardwareClerk")
	final := events[len(events)-1]
	if !final.IsNPC || final.Message != "Why do you need a shovel at this hour?" {
		t.Errorf("Unexpected reply frame: %+v", final)
	}
}

func TestDispatch_ImmediateOnSecondMessage(t *testing.T) {
	completer := newScriptedCompleter("Both of you, slow down.", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "first")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "second")

	var sent []models.ChatMessage
	select {
	case sent = <-completer.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("Second message should dispatch without waiting for the debounce")
	}

	// system + two batched user turns
	if len(sent) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(sent))
	}
	if sent[1].Content != "Alice: first" || sent[2].Content != "Alice: second" {
		t.Errorf("Batched turns out of order: %+v", sent[1:])
	}

	waitFor(t, "history write", func() bool { return f.historyLen("hardwareClerk") == 3 })

	f.room.Lock()
	pending := len(f.room.NPCs["hardwareClerk"].Pending)
	f.room.Unlock()
	if pending != 0 {
		t.Errorf("Dispatch should clear the pending queue, %d left", pending)
	}
}

func TestDispatch_FailureFallback(t *testing.T) {
	completer := newScriptedCompleter("", errors.New("upstream down"))
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "two")

	waitFor(t, "fallback reply", func() bool {
		events := f.broadcaster.npcMessages("policeOfficer")
		return len(events) > 0 && events[len(events)-1].IsNPC
	})

	events := f.broadcaster.npcMessages("policeOfficer")
	final := events[len(events)-1]
	if final.Message != fallbackFailure {
		t.Errorf("Expected failure fallback, got %q", final.Message)
	}
	if n := f.historyLen("policeOfficer"); n != 0 {
		t.Errorf("A failed exchange must not touch history, got %d entries", n)
	}
}

func TestDispatch_EmptyReplyFallback(t *testing.T) {
	completer := newScriptedCompleter("", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "two")

	waitFor(t, "fallback reply", func() bool {
		events := f.broadcaster.npcMessages("policeOfficer")
		return len(events) > 0 && events[len(events)-1].IsNPC
	})

	events := f.broadcaster.npcMessages("policeOfficer")
	if final := events[len(events)-1]; final.Message != fallbackEmpty {
		t.Errorf("Expected empty-reply fallback, got %q", final.Message)
	}
	if n := f.historyLen("policeOfficer"); n != 0 {
		t.Errorf("An empty exchange must not touch history, got %d entries", n)
	}
}

func TestSideEffects_GrantItem(t *testing.T) {
	completer := newScriptedCompleter("Fine. Here is your shovel, be careful with it.", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "two")

	waitFor(t, "item grant", func() bool {
		f.room.Lock()
		defer f.room.Unlock()
		return f.room.HasItem("shovel")
	})
	if n := f.broadcaster.countFrames(network.MsgTypeItemReceived); n != 1 {
		t.Errorf("Expected one item-received broadcast, got %d", n)
	}

	// 重复授予：道具已持有，不再广播
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "three")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "four")

	waitFor(t, "second dispatch", func() bool { return f.historyLen("hardwareClerk") >= 6 })
	if n := f.broadcaster.countFrames(network.MsgTypeItemReceived); n != 1 {
		t.Errorf("Re-granting a held item must not broadcast again, got %d", n)
	}
}

func TestSideEffects_NoGrantWithoutKeywords(t *testing.T) {
	completer := newScriptedCompleter("No shovel for you. Come back tomorrow.", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "two")

	waitFor(t, "dispatch", func() bool { return f.historyLen("hardwareClerk") == 3 })

	f.room.Lock()
	has := f.room.HasItem("shovel")
	f.room.Unlock()
	if has {
		t.Error("Reply without the grant keywords must not grant the item")
	}
}

func TestSideEffects_ChaseTrigger(t *testing.T) {
	completer := newScriptedCompleter("Stop right there, you are under arrest!", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "policeOfficer", "two")

	waitFor(t, "chase trigger", func() bool { return f.chase.count() == 1 })
	if got := f.chase.first(); got != "Police Officer" {
		t.Errorf("Chase should carry the NPC display name, got %q", got)
	}
}

func TestSideEffects_ChaseOnlyFromHostileNPCs(t *testing.T) {
	completer := newScriptedCompleter("They will arrest you if they catch you out there.", nil)
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "two")

	waitFor(t, "dispatch", func() bool { return f.historyLen("hardwareClerk") == 3 })
	if n := f.chase.count(); n != 0 {
		t.Errorf("Clerk replies must never trigger a chase, got %d", n)
	}
}

func TestDispatch_RoomDeletedMidFlight(t *testing.T) {
	completer := newScriptedCompleter("Too late.", nil)
	completer.gate = make(chan struct{})
	f := newDialogueFixture(t, completer, time.Minute)

	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "one")
	f.coordinator.SubmitMessage(f.room.Code, "s1", "hardwareClerk", "two")

	select {
	case <-completer.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("Dispatch never reached the completer")
	}

	// 补全进行中删除房间，然后放行
	f.registry.RemovePlayer(f.room.Code, "s1")
	close(completer.gate)

	time.Sleep(300 * time.Millisecond)

	for _, ev := range f.broadcaster.npcMessages("hardwareClerk") {
		if ev.IsNPC {
			t.Errorf("No reply may be delivered after the room is gone: %+v", ev)
		}
	}
	if n := f.historyLen("hardwareClerk"); n != 0 {
		t.Errorf("History of a dead room must stay untouched, got %d", n)
	}
}
