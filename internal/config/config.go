package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/logx"
	"github.com/John-Robertt/haksik/internal/provider"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// ConfigName 是在 cwd 下自动发现的配置文件名（不含扩展名，viper 支持的格式均可）。
	ConfigName = "haksik"
	// EnvPrefix 是环境变量前缀：HAKSIK_FETCH_TIMEOUT、HAKSIK_LOG_LEVEL、HAKSIK_ENDPOINTS_STUDENT ...
	EnvPrefix = "HAKSIK"

	DefaultFetchTimeout = 10 * time.Second
	MinFetchTimeout     = time.Second
	MaxFetchTimeout     = 2 * time.Minute
	MaxRetry            = 3
	DefaultLogLevel     = "warn"
)

// CLIArgs 只包含 CLI 暴露的全局入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --log-level=warn 必须能覆盖 log.level=debug。
type CLIArgs struct {
	ConfigPath string

	CacheDir    string
	CacheDirSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 是配置文件 + 环境变量 + 默认值合并后的原始结构（由 viper 解码）。
type FileConfig struct {
	CacheDir     string            `mapstructure:"cache_dir"`
	FetchTimeout time.Duration     `mapstructure:"fetch_timeout"`
	ProxyURL     string            `mapstructure:"proxy_url"`
	RetryMax     int               `mapstructure:"retry_max"`
	Timezone     string            `mapstructure:"timezone"`
	Log          LogConfig         `mapstructure:"log"`
	Endpoints    map[string]string `mapstructure:"endpoints"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件；未找到时为空。
	ConfigFile string

	CacheDir     string
	FetchTimeout time.Duration
	ProxyURL     string
	RetryMax     int
	Location     *time.Location
	Log          logx.Config

	// Endpoints 只包含与内置地址不同的覆盖项。
	Endpoints map[domain.RestaurantID]string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			if e.Path == "" {
				return fmt.Sprintf("%s：配置无效：%v", e.Code, e.Err)
			}
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/haksik.{json,yaml,toml,...}（可选）
//
// 覆盖优先级（固定）：
// - cache_dir / log.level：CLI > 环境变量 > 配置文件 > 默认
// - 其他字段：环境变量 > 配置文件 > 默认（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := newViper()
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath := absCleanFrom(cwdAbs, p)
		if _, err := os.Stat(cfgPath); err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(cwdAbs)
		v.SetConfigName(ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
	}
	return merge(cwdAbs, cli, fc, v.ConfigFileUsed())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv 只对“已知 key”生效：每个 key 都需要一个默认值。
	v.SetDefault("cache_dir", "")
	v.SetDefault("fetch_timeout", DefaultFetchTimeout.String())
	v.SetDefault("proxy_url", "")
	v.SetDefault("retry_max", 0)
	v.SetDefault("timezone", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", "text")
	for _, r := range provider.DefaultRestaurants() {
		v.SetDefault("endpoints."+string(r.ID), r.URL)
	}
	return v
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) error { return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err} }

	// cache_dir：CLI > config > 默认 <UserCacheDir>/haksik
	cacheDir := strings.TrimSpace(fc.CacheDir)
	if cli.CacheDirSet {
		cacheDir = strings.TrimSpace(cli.CacheDir)
	}
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("cache_dir 未设置且无法确定用户缓存目录：%w", err))
		}
		cacheDir = filepath.Join(base, "haksik")
	}
	cacheDir = absCleanFrom(cwdAbs, cacheDir)

	timeout := fc.FetchTimeout
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	// 范围 [1s, 2m]；超出截断。
	if timeout < MinFetchTimeout {
		timeout = MinFetchTimeout
	}
	if timeout > MaxFetchTimeout {
		timeout = MaxFetchTimeout
	}

	retry := fc.RetryMax
	if retry < 0 {
		retry = 0
	}
	if retry > MaxRetry {
		retry = MaxRetry
	}

	proxyURL := strings.TrimSpace(fc.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid(fmt.Errorf("proxy_url 无效：%q", proxyURL))
		}
	}

	loc := time.Local
	if tz := strings.TrimSpace(fc.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("timezone 无效：%w", err))
		}
		loc = l
	}

	level := fc.Log.Level
	if cli.LogLevelSet {
		level = cli.LogLevel
	}
	level = strings.ToLower(strings.TrimSpace(level))
	if err := validateLevel(level); err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	format := strings.ToLower(strings.TrimSpace(fc.Log.Format))
	if format != "" && format != "text" && format != "json" {
		return EffectiveConfig{}, invalid(fmt.Errorf("log.format 只能是 text 或 json，实际是 %q", format))
	}

	endpoints, err := overrides(fc.Endpoints)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	eff := EffectiveConfig{
		ConfigFile:   cfgPath,
		CacheDir:     cacheDir,
		FetchTimeout: timeout,
		ProxyURL:     proxyURL,
		RetryMax:     retry,
		Location:     loc,
		Log:          logx.Config{Level: level, Format: format},
		Endpoints:    endpoints,
	}
	if _, err := eff.Catalog(); err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	return eff, nil
}

// Catalog 用内置食堂表 + endpoints 覆盖构造 Catalog。
func (c EffectiveConfig) Catalog() (provider.Catalog, error) {
	rs := provider.DefaultRestaurants()
	for i := range rs {
		if u, ok := c.Endpoints[rs[i].ID]; ok {
			rs[i].URL = u
		}
	}
	return provider.NewCatalog(rs...)
}

func overrides(raw map[string]string) (map[domain.RestaurantID]string, error) {
	defaults := map[domain.RestaurantID]string{}
	for _, r := range provider.DefaultRestaurants() {
		defaults[r.ID] = r.URL
	}

	out := map[domain.RestaurantID]string{}
	for k, u := range raw {
		id, err := domain.ParseRestaurantID(k)
		if err != nil {
			return nil, fmt.Errorf("endpoints.%s：%w", k, err)
		}
		u = strings.TrimSpace(u)
		if u == "" || u == defaults[id] {
			continue
		}
		out[id] = u
	}
	return out, nil
}

func validateLevel(l string) error {
	switch l {
	case "debug", "info", "warn", "error":
		return nil
	case "":
		return fmt.Errorf("log.level 不能为空")
	default:
		return fmt.Errorf("log.level 只能是 debug/info/warn/error，实际是 %q", l)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
