// Package cmd 提供 logid 命令行工具的所有子命令实现。
// 本文件实现 query 命令，按 logid 查询单个区域的日志。
package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oriys/logid/internal/core"
	"github.com/oriys/logid/internal/region"
)

var errRegionRequired = errors.New("--region is required")

var (
	queryRegion string
	queryPSM    []string
	queryRules  string
)

// queryCmd 是 query 命令的 cobra.Command 实例。
var queryCmd = &cobra.Command{
	Use:   "query <logid>",
	Short: "Query logs by logid",
	Long: `通过 logid 查询区域日志服务。

示例:
  logid query 550e8400-e29b-41d4-a716-446655440000 --region us
  logid query logid123 --region i18n --psm service.psm
  logid query logid456 -r us -p psm1 -p psm2

区域: ` + strings.Join(region.Default().Names(), ", ") + `

认证:
  需要在环境变量或 .env 文件中配置对应区域的会话凭据，
  例如 CAS_SESSION_US、CAS_SESSION_I18N，或通用的 CAS_SESSION。`,
	Args: exactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryRegion, "region", "r", "", "查询区域，必填（"+strings.Join(region.Default().Names(), "/")+"）")
	queryCmd.Flags().StringSliceVarP(&queryPSM, "psm", "p", nil, "只保留指定 PSM 的日志，可多次指定")
	queryCmd.Flags().StringVar(&queryRules, "rules", "", "过滤规则文件（覆盖 filter.rules_file）")
}

// runQuery 是 query 命令的执行函数。
func runQuery(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(queryRegion) == "" {
		return &core.Error{Kind: core.KindInvalidArgument, Err: errRegionRequired}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if queryRules != "" {
		cfg.Filter.RulesFile = queryRules
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orch.Run(ctx, queryRegion, args[0], queryPSM)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), cfg.Output).PrintQueryResult(res)
}
