package room

import (
	"strings"

	"github.com/greatescape/gameserver/models"
)

// maxHistory caps an NPC's conversation history; oldest turns are
// trimmed first.
const maxHistory = 20

// NPCState 单个房间内一个 NPC 的对话状态。每个房间持有独立副本，
// 不跨房间共享。
type NPCState struct {
	ID       string
	Name     string
	Location string
	Persona  string // immutable system prompt

	History []models.ChatMessage
	Pending []models.ChatMessage

	// TimerID is the armed debounce timer, 0 when none.
	TimerID int64
}

// npcTemplate 不可变模板，工厂据此生成房间私有的 NPCState。
type npcTemplate struct {
	id       string
	name     string
	location string
	persona  string
}

var npcTemplates = []npcTemplate{
	{
		id:       "hardwareClerk",
		name:     "Hardware Store Clerk",
		location: "Hardware Store",
		persona:  `You are a friendly but slightly paranoid hardware store clerk. You have a shovel in stock, but you're suspicious of people who want to buy it late at night. You gossip with the police officer sometimes. You remember conversations and get more suspicious if people's stories don't match. You can be convinced to sell the shovel if given a good reason. Keep responses under 100 words.`,
	},
	{
		id:       "policeOfficer",
		name:     "Police Officer",
		location: "Police Station",
		persona:  `You are a strict but somewhat gullible police officer at the station. You have helicopter keys but would NEVER give them to civilians under normal circumstances. However, you can be tricked with a convincing emergency story. You know the hardware store clerk and border guard. You've heard rumors about a bank robbery today. You remember all conversations. Keep responses under 100 words.`,
	},
	{
		id:       "borderGuard",
		name:     "Border Guard",
		location: "Border Checkpoint",
		persona:  `You are a stern border guard who takes your job VERY seriously. You've been alerted about a bank robbery and are on high alert. You check papers carefully and won't let anyone through without proper documentation or an extremely convincing story. You communicate with the police station. You remember everyone you talk to. Keep responses under 100 words.`,
	},
	{
		id:       "exitGuard",
		name:     "Exit Guard",
		location: "Exit Checkpoint",
		persona:  `You are a border guard at the exit checkpoint. You take security very seriously and have been warned about the bank robbery. You won't let anyone through without a borderPass or a very convincing story. You are in contact with the main border patrol. Keep responses under 100 words.`,
	},
}

// NewNPCSet builds fresh per-room NPC states from the immutable
// template table.
func NewNPCSet() map[string]*NPCState {
	npcs := make(map[string]*NPCState, len(npcTemplates))
	for _, t := range npcTemplates {
		npcs[t.id] = &NPCState{
			ID:       t.id,
			Name:     t.name,
			Location: t.location,
			Persona:  t.persona,
		}
	}
	return npcs
}

// AppendHistory 追加对话并裁剪到最近 maxHistory 条。
// Caller must hold the room lock.
func (n *NPCState) AppendHistory(msgs ...models.ChatMessage) {
	n.History = append(n.History, msgs...)
	if len(n.History) > maxHistory {
		n.History = n.History[len(n.History)-maxHistory:]
	}
}

// FormattedHistory converts role-tagged history into display lines for
// a client entering the conversation. User turns are stored as
// "Username: text" and are split back apart here.
func (n *NPCState) FormattedHistory() []models.NPCChatLine {
	lines := make([]models.NPCChatLine, 0, len(n.History))
	for _, msg := range n.History {
		switch msg.Role {
		case "user":
			sender, text, ok := strings.Cut(msg.Content, ": ")
			if !ok {
				continue
			}
			lines = append(lines, models.NPCChatLine{Sender: sender, Message: text, IsNPC: false})
		case "assistant":
			lines = append(lines, models.NPCChatLine{Sender: n.Name, Message: msg.Content, IsNPC: true})
		}
	}
	return lines
}
