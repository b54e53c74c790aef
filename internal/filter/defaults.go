package filter

// 合规日志标记，带有这些标记的消息是审计样板而不是业务日志
const (
	ComplianceNLPMarker       = "_compliance_nlp_log"
	ComplianceWhitelistMarker = "_compliance_whitelist_log"
	ComplianceFootprint       = "_compliance_source=footprint"
)

// NoisyFields 是默认移除的字段
var NoisyFields = []string{"user_extra", "LogID", "Addr", "Client"}

// DefaultRules 返回默认规则序列，每次调用返回新的切片。
func DefaultRules() []Rule {
	rules := []Rule{
		{Match: MatchKey, Pattern: ComplianceNLPMarker, Action: DropMessage},
		{Match: MatchKey, Pattern: ComplianceWhitelistMarker, Action: DropMessage},
		{
			Match:   MatchValueRegex,
			Pattern: ComplianceNLPMarker + "|" + ComplianceWhitelistMarker + "|" + ComplianceFootprint,
			Action:  DropMessage,
		},
	}
	for _, key := range NoisyFields {
		rules = append(rules, Rule{Match: MatchKey, Pattern: key, Action: DropField})
	}
	// 正文里内嵌的 JSON 片段
	rules = append(rules,
		Rule{Match: MatchValueRegex, Pattern: `(?s)"user_extra":\s*"\{.*?\}"`, Action: Strip, Field: MessageKey},
		Rule{Match: MatchValueRegex, Pattern: `(?m)"LogID":\s*"[^"]*"`, Action: Strip, Field: MessageKey},
		Rule{Match: MatchValueRegex, Pattern: `(?m)"Addr":\s*"[^"]*"`, Action: Strip, Field: MessageKey},
		Rule{Match: MatchValueRegex, Pattern: `(?m)"Client":\s*"[^"]*"`, Action: Strip, Field: MessageKey},
	)
	return rules
}
