// Package cmd 包含 logid CLI 工具的所有命令实现
// 使用 cobra 框架构建命令行接口
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/core"
)

// 全局命令行标志变量
var (
	cfgFile     string // 配置文件路径
	envFile     string // 显式指定的 .env 文件
	outputFmt   string // 输出格式（json/yaml/table）
	metricsFile string // 指标文本文件
	verbose     bool   // 打开调试日志
)

// v 是本次执行使用的 viper 实例，每次初始化时重建
var v = viper.New()

// initErr 记录 initConfig 中发生的错误，由 loadConfig 返回
var initErr error

// rootCmd 是 CLI 的根命令
// 所有子命令都挂载在这个根命令下
var rootCmd = &cobra.Command{
	Use:   "logid",
	Short: "Query regional log services by trace id",
	Long: `logid 通过追踪 ID（logid）查询区域日志服务，并输出过滤后的日志。

使用示例:
  # 在美区查询
  logid query 550e8400-e29b-41d4-a716-446655440000 --region us

  # 只看指定服务
  logid query logid123 -r i18n -p service.psm -p other.psm

  # 检查凭据与配置
  logid doctor`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute 执行根命令
// 这是 CLI 的入口函数，由 main 包调用
//
// 返回:
//   - error: 命令执行错误，可交给 core.ExitCode 得到退出码
func Execute() error {
	return rootCmd.Execute()
}

// init 初始化命令行工具
// 注册全局标志和配置初始化函数
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 ~/.config/logid/config.yaml）")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "输出格式（json、yaml、table）")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "额外加载的 .env 文件")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "退出前写入 Prometheus 指标的文件")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志到 stderr")

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &core.Error{Kind: core.KindInvalidArgument, Err: err}
	})
}

// initConfig 初始化配置
// 先加载 .env，再按优先级组合：命令行标志 > 环境变量 > 配置文件 > 默认值
func initConfig() {
	initErr = nil
	if err := loadDotEnv(envFile); err != nil {
		initErr = err
		return
	}

	v = viper.New()
	config.BindViper(v)
	_ = v.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("output"))
	_ = v.BindPFlag("metrics.textfile", rootCmd.PersistentFlags().Lookup("metrics-file"))

	path := getConfigPath()
	if _, err := os.Stat(path); err != nil {
		// 只有显式指定的配置文件必须存在
		if cfgFile != "" {
			initErr = &core.Error{Kind: core.KindInvalidArgument, Err: fmt.Errorf("config file: %w", err)}
		}
		return
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		initErr = &core.Error{Kind: core.KindInvalidArgument, Err: fmt.Errorf("read config %s: %w", path, err)}
	}
}

// loadDotEnv 加载 .env 文件，已存在的环境变量不会被覆盖。
// 查找顺序：--env-file、可执行文件所在目录、~/.config/logid。
func loadDotEnv(explicit string) error {
	if explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return &core.Error{Kind: core.KindInvalidArgument, Err: fmt.Errorf("env file: %w", err)}
		}
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	candidates = append(candidates, filepath.Join(config.DefaultDir(), ".env"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return &core.Error{Kind: core.KindInvalidArgument, Err: fmt.Errorf("env file %s: %w", path, err)}
		}
	}
	return nil
}

// envFiles 返回实际存在的 .env 文件，供 doctor 展示
func envFiles() []string {
	var found []string
	if envFile != "" {
		found = append(found, envFile)
	}
	if exe, err := os.Executable(); err == nil {
		if p := filepath.Join(filepath.Dir(exe), ".env"); fileExists(p) {
			found = append(found, p)
		}
	}
	if p := filepath.Join(config.DefaultDir(), ".env"); fileExists(p) {
		found = append(found, p)
	}
	return found
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadConfig 返回本次执行的最终配置。
func loadConfig() (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}
	cfg, err := config.FromViper(v, os.LookupEnv)
	if err != nil {
		return nil, &core.Error{Kind: core.KindInvalidArgument, Err: err}
	}
	if verbose {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// getConfigPath 获取配置文件的完整路径
// 如果未指定配置文件，返回默认路径
//
// 返回:
//   - string: 配置文件路径
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// signalContext 返回在 SIGINT/SIGTERM 时取消的上下文
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exactArgs 与 cobra.ExactArgs 相同，但参数错误映射为 InvalidArgument
func exactArgs(n int) cobra.PositionalArgs {
	return func(c *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(c, args); err != nil {
			return &core.Error{Kind: core.KindInvalidArgument, Err: err}
		}
		return nil
	}
}

// PrintError 把错误与修复建议写到 w
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	var ce *core.Error
	if errors.As(err, &ce) {
		if hint := ce.Hint(); hint != "" {
			fmt.Fprintf(w, "Hint:  %s\n", hint)
		}
	}
}
