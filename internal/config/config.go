package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "config/config.yaml"
	envPrefix         = "CONTENT_EVAL"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// gin 模式：debug/release/test
	Mode string `yaml:"mode" mapstructure:"mode"`
}

type DatabaseConfig struct {
	// mysql 或 sqlite
	Driver string `yaml:"driver" mapstructure:"driver"`
	// sqlite 时为文件路径或 file: URI；mysql 时若非空则直接作为 DSN
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	Charset  string `yaml:"charset" mapstructure:"charset"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

type LLMConfig struct {
	// 单次调用超时，超时按失败处理
	Timeout   time.Duration  `yaml:"timeout" mapstructure:"timeout"`
	OpenAI    ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Google    ProviderConfig `yaml:"google" mapstructure:"google"`
	Pricing   []PriceConfig  `yaml:"pricing" mapstructure:"pricing"`
}

type ProviderConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PriceConfig 每 1000 token 的美元价格；用列表是因为模型名里有点号，不能当 viper 的 key
type PriceConfig struct {
	Provider string  `yaml:"provider" mapstructure:"provider"`
	Model    string  `yaml:"model" mapstructure:"model"`
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
}

type GenerationConfig struct {
	// 两次供应商调用之间的最小间隔
	CallDelay   time.Duration `yaml:"call_delay" mapstructure:"call_delay"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
}

type CatalogConfig struct {
	// 为空时使用内置任务目录
	Path string `yaml:"path" mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

// Provider 按名字取供应商配置
func (c LLMConfig) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	case "google":
		return c.Google, true
	}
	return ProviderConfig{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/database.db")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "content_eval")
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("llm.timeout", 60*time.Second)
	for _, p := range []string{"openai", "anthropic", "google"} {
		v.SetDefault("llm."+p+".base_url", "")
		v.SetDefault("llm."+p+".temperature", 0.7)
		v.SetDefault("llm."+p+".max_tokens", 500)
	}

	v.SetDefault("generation.call_delay", time.Second)
	v.SetDefault("generation.concurrency", 1)

	v.SetDefault("catalog.path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", "")
	v.SetDefault("metrics.insecure", false)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API key 兼容各家 SDK 的通用环境变量
	keys := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"google":    "GOOGLE_API_KEY",
	}
	for p, common := range keys {
		key := "llm." + p + ".api_key"
		prefixed := envPrefix + "_LLM_" + strings.ToUpper(p) + "_API_KEY"
		if err := v.BindEnv(key, prefixed, common); err != nil {
			return fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}
	return nil
}

// New 返回带默认值与环境变量绑定的 viper 实例，CLI 可以在上面继续绑定 flag
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadConfig 读取 YAML 配置文件；文件不存在时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return Load(v, path)
}

// Load 用给定的 viper 实例读取配置
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Generation.Concurrency <= 0 {
		return fmt.Errorf("generation.concurrency 必须大于 0，当前为 %d", c.Generation.Concurrency)
	}
	if c.Generation.CallDelay < 0 {
		return fmt.Errorf("generation.call_delay 不能为负数")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout 必须大于 0")
	}
	for _, p := range c.LLM.Pricing {
		if p.Provider == "" || p.Model == "" {
			return fmt.Errorf("pricing 条目缺少 provider 或 model")
		}
	}
	return nil
}
