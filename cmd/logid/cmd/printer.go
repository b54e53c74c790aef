// Package cmd 提供 logid 命令行工具的所有子命令实现。
// 本文件实现输出格式化打印功能，支持多种输出格式。
//
// Printer 支持以下输出格式：
//   - json:  JSON 格式（默认），带缩进
//   - yaml:  YAML 格式
//   - table: 表格格式，适合人类阅读
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/logquery"
	"github.com/oriys/logid/internal/region"
)

// Printer 是格式化输出的处理器。
type Printer struct {
	format       string    // 输出格式：json、yaml 或 table
	showMeta     bool      // 是否输出 meta、scan_time_range、level_list
	showTagInfos bool      // 是否输出 tag_infos
	writer       io.Writer // 输出目标
}

// newPrinter 根据输出配置创建 Printer。
func newPrinter(w io.Writer, cfg config.OutputConfig) *Printer {
	format := cfg.Format
	if format == "" {
		format = "json"
	}
	return &Printer{
		format:       format,
		showMeta:     cfg.ShowMeta,
		showTagInfos: cfg.ShowTagInfos,
		writer:       w,
	}
}

// PrintQueryResult 打印查询结果。
// 未开启对应开关时，meta 与 tag_infos 不出现在输出中。
//
// 参数：
//   - res: 查询结果
//
// 返回值：
//   - error: 打印失败时返回错误信息
func (p *Printer) PrintQueryResult(res *logquery.QueryResult) error {
	out := *res
	if out.Messages == nil {
		out.Messages = []filter.CanonicalMessage{}
	}
	if !p.showMeta {
		out.Meta = nil
		out.ScanTimeRange = nil
		out.LevelList = nil
	}
	if !p.showTagInfos {
		out.TagInfos = nil
	}

	switch p.format {
	case "yaml":
		return p.printYAML(out)
	case "table":
		return p.printQueryTable(&out)
	default:
		return p.printJSON(out)
	}
}

// PrintRegions 打印区域列表。
// credentialed 记录每个区域是否已有可用凭据。
func (p *Printer) PrintRegions(regions []region.Config, credentialed map[region.ID]bool) error {
	type regionView struct {
		ID             region.ID `json:"id" yaml:"id"`
		DisplayName    string    `json:"display_name" yaml:"display_name"`
		AuthURL        string    `json:"auth_url,omitempty" yaml:"auth_url,omitempty"`
		QueryURL       string    `json:"query_url,omitempty" yaml:"query_url,omitempty"`
		VRegion        string    `json:"vregion,omitempty" yaml:"vregion,omitempty"`
		Configured     bool      `json:"configured" yaml:"configured"`
		CredentialKeys []string  `json:"credential_keys" yaml:"credential_keys"`
		HasCredential  bool      `json:"has_credential" yaml:"has_credential"`
	}

	views := make([]regionView, len(regions))
	for i, rc := range regions {
		views[i] = regionView{
			ID:             rc.ID,
			DisplayName:    rc.DisplayName,
			AuthURL:        rc.AuthURL,
			QueryURL:       rc.QueryURL,
			VRegion:        rc.VRegion,
			Configured:     rc.Configured(),
			CredentialKeys: credential.Keys(rc),
			HasCredential:  credentialed[rc.ID],
		}
	}

	switch p.format {
	case "yaml":
		return p.printYAML(views)
	case "table":
		w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REGION\tNAME\tCONFIGURED\tCREDENTIAL\tQUERY URL")
		for _, rv := range views {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rv.ID,
				rv.DisplayName,
				yesNo(rv.Configured),
				yesNo(rv.HasCredential),
				orDash(rv.QueryURL),
			)
		}
		return w.Flush()
	default:
		return p.printJSON(views)
	}
}

// printJSON 以 JSON 格式输出数据。
// 使用 2 空格缩进美化输出，不转义 HTML 字符。
func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printYAML 以 YAML 格式输出数据。
// 使用 2 空格缩进。
func (p *Printer) printYAML(v interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printQueryTable 以表格形式输出查询结果。
func (p *Printer) printQueryTable(res *logquery.QueryResult) error {
	fmt.Fprintf(p.writer, "LogID:   %s\n", res.LogID)
	fmt.Fprintf(p.writer, "Region:  %s (%s)\n", res.Region, res.RegionDisplayName)
	fmt.Fprintf(p.writer, "Total:   %d\n", res.TotalItems)
	fmt.Fprintf(p.writer, "Queried: %s\n\n", res.Timestamp)

	if len(res.Messages) == 0 {
		fmt.Fprintln(p.writer, "No messages found.")
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tPSM\t%s\tLOCATION\tMESSAGE\n", colorLevel("LEVEL"))
	for _, m := range res.Messages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID,
			orDash(m.Group.PSM),
			colorLevel(m.Level),
			orDash(m.Location),
			truncate(oneLine(m.Text()), 120),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if p.showTagInfos && len(res.TagInfos) > 0 {
		fmt.Fprintf(p.writer, "\nTag infos: %d\n", len(res.TagInfos))
	}
	return nil
}

// ====== 辅助函数 ======

// ANSI 颜色序列，长度都是 5 字节
const (
	ansiRed     = "\033[31m"
	ansiYellow  = "\033[33m"
	ansiDefault = "\033[39m"
	ansiReset   = "\033[0m"
)

// colorLevel 根据日志级别返回带颜色的字符串。
// 红色: ERROR、FATAL；黄色: WARN。
// 每个返回值都带同样长度的控制序列，tabwriter 按字节计宽时各行仍然对齐。
func colorLevel(level string) string {
	code := ansiDefault
	switch strings.ToUpper(level) {
	case "ERROR", "FATAL":
		code = ansiRed
	case "WARN", "WARNING":
		code = ansiYellow
	case "":
		level = "-"
	}
	return code + level + ansiReset
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// oneLine 把多行消息折叠为一行
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate 截断字符串到指定长度（按字符计）。
// 如果字符串超过最大长度，则截断并添加 "..." 后缀。
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
