package logquery

import (
	"bytes"
	"encoding/json"

	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/region"
)

// Request 是发往日志服务的查询请求体。
type Request struct {
	LogID         string   `json:"logid"`
	PSMList       []string `json:"psm_list,omitempty"`
	ScanSpanInMin int      `json:"scan_span_in_min"`
	VRegion       string   `json:"vregion"`
}

// TimeRange 是服务端实际扫描的时间范围（Unix 秒）。
type TimeRange struct {
	Start *int64 `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int64 `json:"end,omitempty" yaml:"end,omitempty"`
}

// QueryResult 是一次查询的统一结果。
type QueryResult struct {
	LogID             string                    `json:"logid" yaml:"logid"`
	Region            region.ID                 `json:"region" yaml:"region"`
	RegionDisplayName string                    `json:"region_display_name" yaml:"region_display_name"`
	TotalItems        int                       `json:"total_items" yaml:"total_items"`
	Messages          []filter.CanonicalMessage `json:"messages" yaml:"messages"`
	// Timestamp 是解析完成时刻（RFC3339）
	Timestamp     string                 `json:"timestamp" yaml:"timestamp"`
	Meta          map[string]interface{} `json:"meta,omitempty" yaml:"meta,omitempty"`
	ScanTimeRange []TimeRange            `json:"scan_time_range,omitempty" yaml:"scan_time_range,omitempty"`
	LevelList     []string               `json:"level_list,omitempty" yaml:"level_list,omitempty"`
	TagInfos      []interface{}          `json:"tag_infos,omitempty" yaml:"tag_infos,omitempty"`

	Stats Stats `json:"-" yaml:"-"`
}

// Stats 记录解析与过滤过程中的计数，不出现在输出中。
type Stats struct {
	// Received 是服务端返回的原始消息数
	Received        int
	DroppedByFilter int
	DroppedByPSM    int
}

// 以下是服务端响应的宽松映射，id 等字段可能是字符串也可能是数字。

type wireItem struct {
	ID    flexString  `json:"id"`
	Group wireGroup   `json:"group"`
	Value []wireValue `json:"value"`
}

type wireGroup struct {
	PSM     flexString `json:"psm"`
	PodName flexString `json:"pod_name"`
	IPv4    flexString `json:"ipv4"`
	Env     flexString `json:"env"`
	VRegion flexString `json:"vregion"`
	IDC     flexString `json:"idc"`
}

func (g wireGroup) group() filter.Group {
	return filter.Group{
		PSM:     string(g.PSM),
		PodName: string(g.PodName),
		IPv4:    string(g.IPv4),
		Env:     string(g.Env),
		VRegion: string(g.VRegion),
		IDC:     string(g.IDC),
	}
}

type wireValue struct {
	ID     flexString `json:"id"`
	KVList []wireKV   `json:"kv_list"`
	Level  flexString `json:"level"`
}

type wireKV struct {
	Key       flexString `json:"key"`
	Value     flexString `json:"value"`
	Type      flexString `json:"type"`
	Highlight *bool      `json:"highlight"`
}

type wireMeta struct {
	ScanTimeRange []TimeRange `json:"scan_time_range"`
	LevelList     []string    `json:"level_list"`
}

// flexString 接受字符串、数字、布尔或 null；对象和数组保留原始 JSON 文本。
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}
