// Package main 是 logid 命令行工具的入口点
// logid 按追踪 ID 查询区域日志服务并输出过滤后的日志
package main

import (
	"os"

	"github.com/oriys/logid/cmd/logid/cmd"
	"github.com/oriys/logid/internal/core"
)

// main 执行命令，并把分类错误映射为固定的退出码
func main() {
	if err := cmd.Execute(); err != nil {
		cmd.PrintError(os.Stderr, err)
		os.Exit(core.ExitCode(err))
	}
}
