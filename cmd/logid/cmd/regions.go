// Package cmd 提供 logid 命令行工具的所有子命令实现。
// 本文件实现 regions 命令，列出可查询的区域。
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oriys/logid/internal/core"
	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/region"
)

// regionsCmd 是 regions 命令的 cobra.Command 实例。
var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List known regions and their endpoints",
	Long: `列出所有区域、生效的端点（含配置文件覆盖）以及凭据是否就绪。
不会输出凭据内容。`,
	Args: exactArgs(0),
	RunE: runRegions,
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

func runRegions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := region.NewRegistry(cfg.Regions)
	if err != nil {
		return &core.Error{Kind: core.KindInvalidArgument, Err: err}
	}

	src := credential.NewSource(credential.Env)
	credentialed := make(map[region.ID]bool)
	for _, rc := range reg.All() {
		if _, err := src.CredentialFor(rc); err == nil {
			credentialed[rc.ID] = true
		}
	}
	return newPrinter(cmd.OutOrStdout(), cfg.Output).PrintRegions(reg.All(), credentialed)
}
