// Package region 定义日志服务的区域注册表。
// 每个区域是一套独立部署的日志服务，拥有各自的认证端点、查询端点和会话凭据。
// 区域集合是封闭的枚举，新增区域只需要在 defaultTable 中追加一行。
package region

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownRegion 表示区域标识符不在注册表中
	ErrUnknownRegion = errors.New("unknown region")
	// ErrNotConfigured 表示区域存在，但缺少认证或查询端点
	ErrNotConfigured = errors.New("region not configured")
)

// ID 是区域标识符。
type ID string

// 已知区域
const (
	US   ID = "us"
	I18N ID = "i18n"
	CN   ID = "cn"
)

// Config 是单个区域的端点配置，构建后不再修改。
type Config struct {
	ID          ID
	DisplayName string
	AuthURL     string
	QueryURL    string
	// VRegion 随查询请求发送的虚拟区域列表（逗号分隔）
	VRegion string
	Zones   []string
	// CredentialKeys 区域专属的凭据环境变量名，按优先级排列
	CredentialKeys []string
}

// Configured 报告该区域是否具备发起查询所需的全部端点。
func (c Config) Configured() bool {
	return c.AuthURL != "" && c.QueryURL != ""
}

// Override 是配置文件中对某个区域端点的覆盖。
// 空字段表示沿用内置值。
type Override struct {
	AuthURL  string `mapstructure:"auth_url" yaml:"auth_url,omitempty" validate:"omitempty,url"`
	QueryURL string `mapstructure:"query_url" yaml:"query_url,omitempty" validate:"omitempty,url"`
	VRegion  string `mapstructure:"vregion" yaml:"vregion,omitempty"`
}

var defaultTable = []Config{
	{
		ID:             US,
		DisplayName:    "美区",
		AuthURL:        "https://cloud-ttp-us.bytedance.net/auth/api/v1/jwt",
		QueryURL:       "https://logservice-tx.tiktok-us.org/streamlog/platform/microservice/v1/query/trace",
		VRegion:        "US-TTP,US-TTP2",
		Zones:          []string{"US-TTP", "US-TTP2"},
		CredentialKeys: []string{"CAS_SESSION_US"},
	},
	{
		ID:             I18N,
		DisplayName:    "国际化区域（新加坡）",
		AuthURL:        "https://cloud-i18n.bytedance.net/auth/api/v1/jwt",
		QueryURL:       "https://logservice-sg.tiktok-row.org/streamlog/platform/microservice/v1/query/trace",
		VRegion:        "Singapore-Common,US-East,Singapore-Central",
		Zones:          []string{"Singapore-Common", "US-East", "Singapore-Central"},
		CredentialKeys: []string{"CAS_SESSION_I18N", "CAS_SESSION_I18n"},
	},
	{
		// CN 的日志服务端点尚未提供，需通过配置文件补充 query_url
		ID:             CN,
		DisplayName:    "中国区",
		AuthURL:        "https://cloud.bytedance.net/auth/api/v1/jwt",
		CredentialKeys: []string{"CAS_SESSION_CN"},
	},
}

// Registry 是区域标识符到区域配置的只读映射。
type Registry struct {
	regions map[ID]Config
}

// NewRegistry 基于内置区域表构建注册表，并应用配置文件中的端点覆盖。
// 覆盖中出现未知区域时返回 ErrUnknownRegion，避免拼写错误被静默忽略。
func NewRegistry(overrides map[string]Override) (*Registry, error) {
	r := &Registry{regions: make(map[ID]Config, len(defaultTable))}
	for _, c := range defaultTable {
		c.Zones = append([]string(nil), c.Zones...)
		c.CredentialKeys = append([]string(nil), c.CredentialKeys...)
		r.regions[c.ID] = c
	}

	for name, o := range overrides {
		id := ID(strings.ToLower(strings.TrimSpace(name)))
		c, ok := r.regions[id]
		if !ok {
			return nil, fmt.Errorf("region override %q: %w", name, ErrUnknownRegion)
		}
		if o.AuthURL != "" {
			c.AuthURL = o.AuthURL
		}
		if o.QueryURL != "" {
			c.QueryURL = o.QueryURL
		}
		if o.VRegion != "" {
			c.VRegion = o.VRegion
			c.Zones = splitZones(o.VRegion)
		}
		r.regions[id] = c
	}
	return r, nil
}

// Default 返回仅包含内置区域表的注册表。
func Default() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// Resolve 按标识符（大小写不敏感）查找区域配置。
// 纯查找，不做任何 I/O。
func (r *Registry) Resolve(identifier string) (Config, error) {
	id := ID(strings.ToLower(strings.TrimSpace(identifier)))
	c, ok := r.regions[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownRegion, identifier, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// IDs 返回按字母排序的全部区域标识符。
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.regions))
	for id := range r.regions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Names 与 IDs 相同，但返回字符串形式，便于拼接帮助信息。
func (r *Registry) Names() []string {
	ids := r.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

// All 按 IDs 的顺序返回全部区域配置。
func (r *Registry) All() []Config {
	ids := r.IDs()
	out := make([]Config, len(ids))
	for i, id := range ids {
		out[i] = r.regions[id]
	}
	return out
}

func splitZones(vregion string) []string {
	var zones []string
	for _, z := range strings.Split(vregion, ",") {
		if z = strings.TrimSpace(z); z != "" {
			zones = append(zones, z)
		}
	}
	return zones
}
