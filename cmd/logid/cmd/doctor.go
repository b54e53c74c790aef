// Package cmd 提供 logid 命令行工具的所有子命令实现。
// 本文件实现 doctor 命令，用于检查本地配置与凭据。
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

var doctorCheckAuth bool

// doctorCmd 是 doctor 命令的 cobra.Command 实例。
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and endpoints",
	Long: `检查 logid 的运行环境。

检查项:
  - 配置文件与 .env 文件
  - 过滤规则
  - 每个区域的端点与会话凭据（只显示变量名与长度）
  - 代理环境变量
  - 使用 --check-auth 时丢弃缓存并实际换取一次令牌，显示令牌主体与过期时间`,
	Args: exactArgs(0),
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorCheckAuth, "check-auth", false, "为每个可用区域实际换取一次令牌")
}

// doctorReport 汇总检查结果
type doctorReport struct {
	w        io.Writer
	problems int
}

func (r *doctorReport) ok(name, format string, args ...interface{}) {
	fmt.Fprintf(r.w, "✅ %-14s: %s\n", name, fmt.Sprintf(format, args...))
}

func (r *doctorReport) warn(name, format string, args ...interface{}) {
	fmt.Fprintf(r.w, "⚠️  %-14s: %s\n", name, fmt.Sprintf(format, args...))
}

func (r *doctorReport) fail(name, format string, args ...interface{}) {
	r.problems++
	fmt.Fprintf(r.w, "❌ %-14s: %s\n", name, fmt.Sprintf(format, args...))
}

func runDoctor(cmd *cobra.Command, args []string) error {
	r := &doctorReport{w: cmd.OutOrStdout()}
	fmt.Fprintf(r.w, "🔍 Checking logid environment on %s/%s...\n\n", runtime.GOOS, runtime.GOARCH)

	path := getConfigPath()
	if fileExists(path) {
		r.ok("config file", "%s", path)
	} else {
		r.warn("config file", "%s not found, using defaults", path)
	}

	if files := envFiles(); len(files) > 0 {
		r.ok(".env", "%v", files)
	} else {
		r.warn(".env", "no .env file found, reading credentials from the environment only")
	}

	cfg, err := loadConfig()
	if err != nil {
		r.fail("configuration", "%v", err)
		return r.result()
	}
	r.ok("configuration", "valid (timeout %s, token ttl %s)", cfg.HTTP.Timeout, cfg.Auth.TokenTTL)

	if chain, err := filter.Load(cfg.Filter.RulesFile, cfg.Filter.ReplaceDefaults); err != nil {
		r.fail("filter rules", "%v", err)
	} else {
		r.ok("filter rules", "%d rules", chain.Len())
	}

	if cfg.Logging.Enabled {
		r.ok("logging", "enabled (level %s)", cfg.Logging.Level)
	} else {
		r.ok("logging", "disabled, set %s=true for diagnostics", config.EnableLoggingEnv)
	}

	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if os.Getenv(key) != "" {
			r.ok("proxy", "%s is set", key)
			break
		}
	}

	reg, err := region.NewRegistry(cfg.Regions)
	if err != nil {
		r.fail("regions", "%v", err)
		return r.result()
	}

	src := credential.NewSource(credential.Env)
	var tokens *auth.Manager
	if doctorCheckAuth {
		tokens = auth.NewManager(src, auth.Config{
			TTL:       cfg.Auth.TokenTTL,
			Timeout:   cfg.HTTP.Timeout,
			UserAgent: cfg.HTTP.UserAgent,
		}, auth.WithHTTPClient(telemetry.NewHTTPClient(cfg.HTTP.Timeout)))
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Fprintln(r.w)
	for _, rc := range reg.All() {
		name := "region " + string(rc.ID)
		if !rc.Configured() {
			r.warn(name, "%s has no log service endpoint", rc.DisplayName)
			continue
		}
		cred, err := src.CredentialFor(rc)
		if errors.Is(err, credential.ErrCredentialFile) {
			r.fail(name, "%v", err)
			continue
		}
		if err != nil {
			r.warn(name, "no credential (set one of %v)", credential.Keys(rc))
			continue
		}
		if tokens == nil {
			r.ok(name, "credential from %s %s", cred.Key, cred)
			continue
		}
		tokens.Invalidate(rc.ID)
		tok, err := tokens.GetToken(ctx, rc)
		if err != nil {
			r.fail(name, "token exchange failed: %v", err)
			continue
		}
		if tok.Subject != "" {
			r.ok(name, "token for %s valid until %s", tok.Subject, tok.ExpiresAt.Format("15:04:05"))
		} else {
			r.ok(name, "token valid until %s", tok.ExpiresAt.Format("15:04:05"))
		}
	}

	return r.result()
}

func (r *doctorReport) result() error {
	fmt.Fprintln(r.w)
	if r.problems == 0 {
		fmt.Fprintln(r.w, "🚀 logid is ready.")
		return nil
	}
	return fmt.Errorf("doctor found %d problem(s)", r.problems)
}
