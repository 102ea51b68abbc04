package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"p2pg/pkg/protocol"
	"p2pg/pkg/rng"
	"p2pg/pkg/rollback"
)

// EnvPrefix 环境变量前缀，例如 P2PG_CLIENT_ROOM
const EnvPrefix = "P2PG"

// ConfigurationError 配置非法，会话开始前即失败
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("配置 %s 无效: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Client 客户端配置
type Client struct {
	Rendezvous    string `mapstructure:"rendezvous"`     // scheme://host:port[/path]
	Room          string `mapstructure:"room"`           // 房间名
	MaxPrediction int    `mapstructure:"max_prediction"` // 最多领先确认帧多少帧
	LogFile       string `mapstructure:"log_file"`
	LogLevel      string `mapstructure:"log_level"`
}

// Server 会合/转发服务器配置
type Server struct {
	Addr           string        `mapstructure:"addr"`            // tcp / kcp 监听地址
	Proto          string        `mapstructure:"proto"`           // tcp 或 kcp
	WSAddr         string        `mapstructure:"ws_addr"`         // websocket 监听地址，为空不启用
	AdminAddr      string        `mapstructure:"admin_addr"`      // 健康检查与指标，为空不启用
	JWTSecret      string        `mapstructure:"jwt_secret"`      // 票据签名密钥
	DesyncInterval int           `mapstructure:"desync_interval"` // 下发给客户端的校验间隔
	Seed           uint64        `mapstructure:"seed"`            // 对局随机种子
	InputDelay     int           `mapstructure:"input_delay"`     // 下发给双方的输入延迟帧数
	BindTimeout    time.Duration `mapstructure:"bind_timeout"`    // 票据有效期
	RateLimit      float64       `mapstructure:"rate_limit"`      // 每连接每秒消息数
	RateBurst      int           `mapstructure:"rate_burst"`
	LogFile        string        `mapstructure:"log_file"`
	LogLevel       string        `mapstructure:"log_level"`
}

// Config 全部配置
type Config struct {
	Client Client `mapstructure:"client"`
	Server Server `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.rendezvous", "kcp://127.0.0.1:9998")
	v.SetDefault("client.room", "p2pg")
	v.SetDefault("client.max_prediction", rollback.DefaultMaxPrediction)
	v.SetDefault("client.log_file", "")
	v.SetDefault("client.log_level", "info")

	v.SetDefault("server.addr", ":9998")
	v.SetDefault("server.proto", "kcp")
	v.SetDefault("server.ws_addr", "")
	v.SetDefault("server.admin_addr", "")
	v.SetDefault("server.jwt_secret", "p2pg-dev-secret-change-me")
	v.SetDefault("server.desync_interval", 60)
	v.SetDefault("server.seed", uint64(rng.MatchSeed))
	v.SetDefault("server.input_delay", 2)
	v.SetDefault("server.bind_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 240.0)
	v.SetDefault("server.rate_burst", 480)
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.log_level", "info")
}

// Load 依次读取默认值、配置文件、.env 与 P2PG_* 环境变量
// path 为空时在当前目录查找可选的 p2pg.yaml
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	} else {
		v.SetConfigName("p2pg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

// Validate 检查客户端配置
func (c *Client) Validate() error {
	if _, err := protocol.ParseAddress(c.Rendezvous); err != nil {
		return invalid("client.rendezvous", "%v", err)
	}
	if strings.TrimSpace(c.Room) == "" {
		return invalid("client.room", "房间名为空")
	}
	if c.MaxPrediction < 1 {
		return invalid("client.max_prediction", "%d 小于 1", c.MaxPrediction)
	}
	return nil
}

// Validate 检查服务器配置
func (s *Server) Validate() error {
	switch s.Proto {
	case "tcp", "kcp":
	default:
		return invalid("server.proto", "不支持的协议 %q", s.Proto)
	}
	if s.Addr == "" {
		return invalid("server.addr", "监听地址为空")
	}
	if len(s.JWTSecret) < 16 {
		return invalid("server.jwt_secret", "密钥至少 16 字节")
	}
	if s.DesyncInterval < 0 {
		return invalid("server.desync_interval", "%d 小于 0", s.DesyncInterval)
	}
	if s.InputDelay < 0 || s.InputDelay > rollback.MaxInputDelay {
		return invalid("server.input_delay", "%d 不在 [0, %d]", s.InputDelay, rollback.MaxInputDelay)
	}
	if s.BindTimeout <= 0 {
		return invalid("server.bind_timeout", "%s 必须大于 0", s.BindTimeout)
	}
	if s.RateLimit <= 0 || s.RateBurst < 1 {
		return invalid("server.rate_limit", "速率 %.1f / 突发 %d 非法", s.RateLimit, s.RateBurst)
	}
	return nil
}
