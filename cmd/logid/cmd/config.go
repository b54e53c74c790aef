// Package cmd 提供 logid 命令行工具的所有子命令实现。
// 本文件实现 config 命令及其子命令，用于管理 CLI 配置。
//
// 支持的子命令：
//   - config view: 查看生效的配置
//   - config set:  设置配置项
//   - config init: 初始化配置文件
//
// 配置文件默认存储在 ~/.config/logid/config.yaml。
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/core"
)

// configCmd 是 config 命令的 cobra.Command 实例。
// 该命令是配置管理的父命令，包含 view、set、init 等子命令。
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage the logid CLI configuration.

The configuration file is stored at ~/.config/logid/config.yaml by default.
Every key can also be set with a LOGID_ environment variable,
e.g. LOGID_HTTP_TIMEOUT=10s. Session credentials never go into this file.`,
}

// configViewCmd 是 config view 子命令的 cobra.Command 实例。
// 输出合并了默认值、配置文件、环境变量与标志之后的配置。
var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View effective configuration",
	Args:  exactArgs(0),
	RunE:  runConfigView,
}

// configSetCmd 是 config set 子命令的 cobra.Command 实例。
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the configuration file.

Available keys:
  ` + strings.Join(config.Keys(), "\n  ") + `
  regions.<region>.auth_url | query_url | vregion

Examples:
  logid config set http.timeout 10s
  logid config set output.format table
  logid config set regions.cn.query_url https://logservice.example.cn/query`,
	Args: exactArgs(2),
	RunE: runConfigSet,
}

// configInitCmd 是 config init 子命令的 cobra.Command 实例。
// 用于创建默认配置文件。
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Args:  exactArgs(0),
	RunE:  runConfigInit,
}

// configInitForce 是 config init 命令的 --force 参数。
var configInitForce bool

// init 注册 config 命令及其子命令，并设置命令行标志。
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing configuration file")
}

// runConfigView 是 config view 命令的执行函数。
// 该函数以 YAML 格式显示生效的配置，同时显示配置文件的路径。
func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := getConfigPath()
	if fileExists(path) {
		fmt.Fprintf(out, "# Configuration file: %s\n", path)
	} else {
		fmt.Fprintf(out, "# Configuration file: %s (not found, run 'logid config init')\n", path)
	}
	fmt.Fprint(out, string(data))
	return nil
}

// runConfigSet 是 config set 命令的执行函数。
// 该函数校验配置项与取值后写回配置文件。
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.SetValue(getConfigPath(), key, value); err != nil {
		return &core.Error{Kind: core.KindInvalidArgument, Err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

// runConfigInit 是 config init 命令的执行函数。
// 该函数创建一个包含默认值的新配置文件。
// 如果配置文件已存在且未指定 --force，会返回错误以防止覆盖。
func runConfigInit(cmd *cobra.Command, args []string) error {
	path := getConfigPath()
	if err := config.WriteFile(path, config.Default(), configInitForce); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at %s\n", path)
	return nil
}
