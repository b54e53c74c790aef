package logquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oriys/logid/internal/filter"
)

// 解析失败的具体原因
var (
	ErrNotObject   = errors.New("response is not a JSON object")
	ErrNoItems     = errors.New("response has no items")
	ErrInvalidBody = errors.New("response items are invalid")
)

// locationKey 携带源码位置，转换为消息元数据而不是字段
const locationKey = "_location"

// parsed 是解析后的响应，消息尚未经过过滤。
type parsed struct {
	messages      []filter.RawMessage
	meta          map[string]interface{}
	scanTimeRange []TimeRange
	levelList     []string
	tagInfos      []interface{}
}

// parseBody 宽松解析日志服务的响应体。
//
// 支持两种外层结构：{data:{items,meta,tag_infos}} 与顶层 {items,...}。
// 找不到 items 或结构不合法时返回错误，不会返回部分结果。
func parseBody(body []byte) (*parsed, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil || root == nil {
		return nil, ErrNotObject
	}

	container := root
	var data map[string]json.RawMessage
	if raw, ok := root["data"]; ok && json.Unmarshal(raw, &data) == nil && data != nil {
		if _, ok := data["items"]; ok {
			container = data
		}
	}

	rawItems, ok := container["items"]
	if !ok {
		var code, message flexString
		_ = json.Unmarshal(root["code"], &code)
		_ = json.Unmarshal(root["message"], &message)
		if code != "" && code != "0" {
			return nil, fmt.Errorf("%w: upstream code %s: %s", ErrNoItems, code, truncate([]byte(message), 200))
		}
		return nil, ErrNoItems
	}

	var items []wireItem
	if !isNull(rawItems) {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}

	p := &parsed{}
	for _, item := range items {
		group := item.Group.group()
		for _, v := range item.Value {
			m := filter.RawMessage{
				ID:    string(item.ID) + "-" + string(v.ID),
				Group: group,
				Level: string(v.Level),
			}
			for _, kv := range v.KVList {
				if string(kv.Key) == locationKey {
					m.Location = string(kv.Value)
					continue
				}
				m.Fields = append(m.Fields, filter.Field{
					Key:       string(kv.Key),
					Value:     string(kv.Value),
					Type:      string(kv.Type),
					Highlight: kv.Highlight != nil && *kv.Highlight,
				})
			}
			p.messages = append(p.messages, m)
		}
	}

	p.meta, p.scanTimeRange, p.levelList = parseMeta(firstPresent("meta", container, root))
	if raw := firstPresent("tag_infos", container, root); raw != nil {
		_ = json.Unmarshal(raw, &p.tagInfos)
	}
	return p, nil
}

// parseMeta 解析可选的 meta，失败时忽略。
func parseMeta(raw json.RawMessage) (map[string]interface{}, []TimeRange, []string) {
	if raw == nil {
		return nil, nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil || len(meta) == 0 {
		return nil, nil, nil
	}
	var typed wireMeta
	_ = json.Unmarshal(raw, &typed)
	return meta, typed.ScanTimeRange, typed.LevelList
}

func firstPresent(key string, objs ...map[string]json.RawMessage) json.RawMessage {
	for _, o := range objs {
		if raw, ok := o[key]; ok && !isNull(raw) {
			return raw
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
