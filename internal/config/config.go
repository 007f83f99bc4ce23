package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Business  BusinessConfig  `mapstructure:"business"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// 每个 IP 对 webhook 接口的限流
	WebhookRPS   float64 `mapstructure:"webhook_rps"`
	WebhookBurst int     `mapstructure:"webhook_burst"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
}

type BusinessConfig struct {
	// 平台佣金比例，作用于商品价格
	CommissionRate float64 `mapstructure:"commission_rate"`
	// 自动打款门槛（₦）
	PayoutThreshold    float64       `mapstructure:"payout_threshold"`
	Currency           string        `mapstructure:"currency"`
	MaxRetryCount      int           `mapstructure:"max_retry_count"`
	TxMaxRetries       int           `mapstructure:"tx_max_retries"`
	AutoPayoutInterval time.Duration `mapstructure:"auto_payout_interval"`
	PendingPayoutAge   time.Duration `mapstructure:"pending_payout_age"`
}

type ProvidersConfig struct {
	Paystack     ProviderConfig `mapstructure:"paystack"`
	Flutterwave  ProviderConfig `mapstructure:"flutterwave"`
	Coinbase     ProviderConfig `mapstructure:"coinbase"`
	CryptoPayout ProviderConfig `mapstructure:"crypto_payout"`
	// 支付完成后跳转的前端地址
	CallbackURL string `mapstructure:"callback_url"`
}

type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

var (
	ErrInvalidCommissionRate = errors.New("commission_rate 必须在 [0, 1) 区间内")
	ErrInvalidThreshold      = errors.New("payout_threshold 必须大于 0")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.webhook_rps", 20)
	v.SetDefault("server.webhook_burst", 40)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.notification", "marketpay.notification")

	v.SetDefault("business.commission_rate", 0.05)
	v.SetDefault("business.payout_threshold", 10000)
	v.SetDefault("business.currency", "NGN")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.tx_max_retries", 5)
	v.SetDefault("business.auto_payout_interval", time.Duration(0))
	v.SetDefault("business.pending_payout_age", 5*time.Minute)

	v.SetDefault("providers.paystack.base_url", "https://api.paystack.co")
	v.SetDefault("providers.paystack.timeout", 15*time.Second)
	v.SetDefault("providers.flutterwave.base_url", "https://api.flutterwave.com")
	v.SetDefault("providers.flutterwave.timeout", 15*time.Second)
	v.SetDefault("providers.coinbase.base_url", "https://api.commerce.coinbase.com")
	v.SetDefault("providers.coinbase.timeout", 15*time.Second)
	v.SetDefault("providers.crypto_payout.timeout", 15*time.Second)
	v.SetDefault("providers.callback_url", "")

	// AutomaticEnv 只对已知 key 生效，密钥类配置需要先登记空默认值
	for _, p := range []string{"paystack", "flutterwave", "coinbase", "crypto_payout"} {
		v.SetDefault("providers."+p+".secret_key", "")
		v.SetDefault("providers."+p+".webhook_secret", "")
	}
	v.SetDefault("providers.crypto_payout.base_url", "")
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "marketpay")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// LoadConfig 加载配置文件
// 密钥类配置推荐走环境变量，例如 MARKETPAY_PROVIDERS_PAYSTACK_SECRET_KEY
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验业务配置
func (c *Config) Validate() error {
	if c.Business.CommissionRate < 0 || c.Business.CommissionRate >= 1 {
		return ErrInvalidCommissionRate
	}
	if c.Business.PayoutThreshold <= 0 {
		return ErrInvalidThreshold
	}
	return nil
}
