package dialogue

import "strings"

// GrantRule 按 NPC 回复中的关键词授予共享道具。大小写不敏感的
// 子串匹配，短语集与行为保持来源约定，不做更严格的语法推断。
type GrantRule struct {
	NPCID string
	Item  string
	From  string
	AllOf []string
	AnyOf []string
}

func (r GrantRule) Matches(npcID, reply string) bool {
	if r.NPCID != npcID {
		return false
	}
	lower := strings.ToLower(reply)
	for _, phrase := range r.AllOf {
		if !strings.Contains(lower, phrase) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, phrase := range r.AnyOf {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

var grantRules = []GrantRule{
	{
		NPCID: "hardwareClerk",
		Item:  "shovel",
		From:  "Hardware Store Clerk",
		AllOf: []string{"here", "shovel"},
	},
	{
		NPCID: "policeOfficer",
		Item:  "helicopterKeys",
		From:  "Police Officer",
		AllOf: []string{"key"},
		AnyOf: []string{"take", "here"},
	},
	{
		NPCID: "borderGuard",
		Item:  "borderPass",
		From:  "Border Guard",
		AnyOf: []string{"go ahead", "pass through", "cleared", "approved"},
	},
}

// chaseTriggerPhrases 在以下 NPC 的回复中出现任意一条即触发追捕。
var chaseTriggerPhrases = []string{"arrest", "hands up", "caught"}

var chaseNPCs = map[string]bool{
	"policeOfficer": true,
	"borderGuard":   true,
	"exitGuard":     true,
}

func triggersChase(npcID, reply string) bool {
	if !chaseNPCs[npcID] {
		return false
	}
	lower := strings.ToLower(reply)
	for _, phrase := range chaseTriggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
