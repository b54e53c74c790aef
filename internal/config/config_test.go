package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/oriys/logid/internal/region"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("http.timeout = %v", cfg.HTTP.Timeout)
	}
	if cfg.Auth.TokenTTL != time.Hour || cfg.Auth.RefreshSkew != 0 {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Query.ScanSpanMinutes != 10 {
		t.Errorf("scan_span_minutes = %d", cfg.Query.ScanSpanMinutes)
	}
	if cfg.Logging.Enabled {
		t.Error("logging must be disabled by default")
	}
	if cfg.Output.Format != "json" {
		t.Errorf("output.format = %q", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
http:
  timeout: 5s
auth:
  token_ttl: 30m
  refresh_skew: 1m
regions:
  cn:
    auth_url: https://auth.example.cn/jwt
    query_url: https://logs.example.cn/query
output:
  format: table
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Timeout != 5*time.Second || cfg.Auth.TokenTTL != 30*time.Minute || cfg.Auth.RefreshSkew != time.Minute {
		t.Errorf("durations = %v %v %v", cfg.HTTP.Timeout, cfg.Auth.TokenTTL, cfg.Auth.RefreshSkew)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("output.format = %q", cfg.Output.Format)
	}
	// 未出现在文件中的项使用默认值
	if cfg.Query.ScanSpanMinutes != 10 {
		t.Errorf("scan_span_minutes = %d", cfg.Query.ScanSpanMinutes)
	}

	reg, err := region.NewRegistry(cfg.Regions)
	if err != nil {
		t.Fatal(err)
	}
	cn, err := reg.Resolve("cn")
	if err != nil || !cn.Configured() {
		t.Errorf("cn should be configured by the override: %+v, %v", cn, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }},
		{"negative skew", func(c *Config) { c.Auth.RefreshSkew = -time.Second }},
		{"skew beyond ttl", func(c *Config) { c.Auth.RefreshSkew = 2 * time.Hour }},
		{"scan span too large", func(c *Config) { c.Query.ScanSpanMinutes = 5000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"unknown region override", func(c *Config) { c.Regions = map[string]region.Override{"eu": {}} }},
		{"bad region url", func(c *Config) { c.Regions = map[string]region.Override{"us": {QueryURL: "not a url"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true}, {"ON", true}, {"1", true}, {"yes", true},
		{"false", false}, {"off", false}, {"0", false}, {"no", false},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Logging.Enabled = !tt.want
		cfg.ApplyEnvOverrides(func(k string) (string, bool) {
			if k == EnableLoggingEnv {
				return tt.value, true
			}
			return "", false
		})
		if cfg.Logging.Enabled != tt.want {
			t.Errorf("ENABLE_LOGGING=%s: enabled = %v", tt.value, cfg.Logging.Enabled)
		}
	}

	// 无法识别的取值保持原状
	cfg := Default()
	cfg.ApplyEnvOverrides(func(string) (string, bool) { return "maybe", true })
	if cfg.Logging.Enabled {
		t.Error("unrecognised value should not enable logging")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteFile(path, Default(), false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, Default(), false); !errors.Is(err, os.ErrExist) {
		t.Errorf("second write = %v, want ErrExist", err)
	}
	if err := WriteFile(path, Default(), true); err != nil {
		t.Errorf("overwrite: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("round trip timeout = %v", cfg.HTTP.Timeout)
	}
}

func TestSetValue(t *testing.T) {
	path := writeFile(t, "output:\n  format: json\n# comment lost on rewrite\n")

	if err := SetValue(path, "http.timeout", "10s"); err != nil {
		t.Fatalf("SetValue timeout: %v", err)
	}
	if err := SetValue(path, "output.show_meta", "true"); err != nil {
		t.Fatalf("SetValue show_meta: %v", err)
	}
	if err := SetValue(path, "regions.cn.query_url", "https://logs.example.cn/query"); err != nil {
		t.Fatalf("SetValue region: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Timeout != 10*time.Second || !cfg.Output.ShowMeta || cfg.Output.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Regions["cn"].QueryURL != "https://logs.example.cn/query" {
		t.Errorf("regions = %+v", cfg.Regions)
	}
}

func TestSetValue_Rejects(t *testing.T) {
	path := writeFile(t, "")

	if err := SetValue(path, "http.nope", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v", err)
	}
	if err := SetValue(path, "regions.us.password", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown region field error = %v", err)
	}
	if err := SetValue(path, "output.format", "xml"); !errors.Is(err, ErrInvalid) {
		t.Errorf("invalid value error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "xml") {
		t.Error("rejected value must not be written")
	}
}

func TestKeys(t *testing.T) {
	keys := strings.Join(Keys(), ",")
	for _, want := range []string{"http.timeout", "auth.token_ttl", "filter.rules_file", "logging.enabled", "output.format"} {
		if !strings.Contains(keys, want) {
			t.Errorf("Keys() missing %s", want)
		}
	}
	if strings.Contains(keys, "telemetry.version") {
		t.Error("version is not a settable key")
	}
}

func TestFromViper(t *testing.T) {
	path := writeFile(t, "http:\n  timeout: 5s\nregions:\n  cn:\n    query_url: https://logs.example.cn/query\n")
	t.Setenv("LOGID_QUERY_SCAN_SPAN_MINUTES", "30")
	t.Setenv("LOGID_OUTPUT_FORMAT", "yaml")

	v := viper.New()
	BindViper(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{EnableLoggingEnv: "on"}
	cfg, err := FromViper(v, func(k string) (string, bool) {
		val, ok := env[k]
		return val, ok
	})
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("timeout from file = %v", cfg.HTTP.Timeout)
	}
	if cfg.Query.ScanSpanMinutes != 30 || cfg.Output.Format != "yaml" {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Query, cfg.Output)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("default token_ttl = %v", cfg.Auth.TokenTTL)
	}
	if !cfg.Logging.Enabled {
		t.Error("ENABLE_LOGGING=on should enable logging")
	}
	if cfg.Regions["cn"].QueryURL == "" {
		t.Errorf("regions = %+v", cfg.Regions)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	v := viper.New()
	BindViper(v)
	v.Set("output.format", "xml")
	if _, err := FromViper(v, func(string) (string, bool) { return "", false }); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}
