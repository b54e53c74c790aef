package filter

// MessageKey 是日志正文所在字段
const MessageKey = "_msg"

// Field 是日志服务返回的单个键值对。
type Field struct {
	Key       string
	Value     string
	Type      string
	Highlight bool
	// Original 是过滤前的值，为空表示与 Value 相同
	Original string
}

// Group 描述产生日志的实例。
type Group struct {
	PSM     string `json:"psm" yaml:"psm"`
	PodName string `json:"pod_name,omitempty" yaml:"pod_name,omitempty"`
	IPv4    string `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	Env     string `json:"env,omitempty" yaml:"env,omitempty"`
	VRegion string `json:"vregion,omitempty" yaml:"vregion,omitempty"`
	IDC     string `json:"idc,omitempty" yaml:"idc,omitempty"`
}

// RawMessage 是日志服务原生格式的一条消息，只在一次查询处理期间存在。
type RawMessage struct {
	ID       string
	Group    Group
	Level    string
	Location string
	// Fields 保持服务端返回的顺序
	Fields []Field
}

// Value 是过滤后保留下来的键值对。
type Value struct {
	Key           string `json:"key" yaml:"key"`
	Value         string `json:"value" yaml:"value"`
	OriginalValue string `json:"original_value" yaml:"original_value"`
	Type          string `json:"type,omitempty" yaml:"type,omitempty"`
	Highlight     bool   `json:"highlight" yaml:"highlight"`
}

// CanonicalMessage 是统一后的输出单元。
type CanonicalMessage struct {
	ID       string  `json:"id" yaml:"id"`
	Group    Group   `json:"group" yaml:"group"`
	Values   []Value `json:"values" yaml:"values"`
	Level    string  `json:"level,omitempty" yaml:"level,omitempty"`
	Location string  `json:"location,omitempty" yaml:"location,omitempty"`
}

// Raw 把过滤结果还原为 RawMessage，可以再次交给 Chain.Apply。
func (c CanonicalMessage) Raw() RawMessage {
	fields := make([]Field, len(c.Values))
	for i, v := range c.Values {
		fields[i] = Field{
			Key:       v.Key,
			Value:     v.Value,
			Type:      v.Type,
			Highlight: v.Highlight,
			Original:  v.OriginalValue,
		}
	}
	return RawMessage{
		ID:       c.ID,
		Group:    c.Group,
		Level:    c.Level,
		Location: c.Location,
		Fields:   fields,
	}
}

// Text 返回消息正文，没有 _msg 字段时返回空字符串。
func (c CanonicalMessage) Text() string {
	for _, v := range c.Values {
		if v.Key == MessageKey {
			return v.Value
		}
	}
	return ""
}
