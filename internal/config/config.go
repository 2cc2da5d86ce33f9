package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// 应用默认配置
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 5 * time.Second

	// 串口默认配置
	DefaultSerialBaudRate = 115200
	DefaultSerialDataBits = 8
	DefaultSerialDriver   = "tarm"

	// NSQ 队列默认配置
	DefaultInboundTopic   = "serial-frames"
	DefaultOutboundTopic  = "serial-outbound"
	DefaultNSQChannel     = "serial-gateway"
	DefaultNSQMaxInFlight = 64
	DefaultNSQConcurrency = 1
	DefaultNSQMaxAttempts = 5

	// 存储默认配置
	DefaultRedisNamespace = "serial"
	DefaultMaxKeepFrames  = 100_000
	DefaultFrameTTL       = 7 * 24 * time.Hour

	// 异步落库默认配置
	DefaultAsyncBatchSize     = 100
	DefaultAsyncFlushInterval = time.Second
	DefaultAsyncWorkerCount   = 2
	DefaultAsyncQueueSize     = 1024
)

// App 应用全局配置
type App struct {
	Addr           string        `yaml:"Addr"`           // HTTP 监听地址
	RequestTimeout time.Duration `yaml:"RequestTimeout"` // HTTP 请求超时
}

// Serial 串口连接配置
type Serial struct {
	PortName string `yaml:"PortName"` // 串口标识（/dev/ttyUSB0 或 COM3）
	BaudRate int    `yaml:"BaudRate"` // 波特率
	DataBits int    `yaml:"DataBits"` // 数据位（5/6/7/8）
	Parity   string `yaml:"Parity"`   // 校验位（none/odd/even/mark/space）
	StopBits string `yaml:"StopBits"` // 停止位（1/1.5/2）
	Driver   string `yaml:"Driver"`   // 驱动（tarm/native）
	Enabled  bool   `yaml:"Enabled"`  // 启动时是否自动连接

	PollInterval      time.Duration `yaml:"PollInterval"`      // 读取循环空轮询间隔
	ReconnectCooldown time.Duration `yaml:"ReconnectCooldown"` // 重连冷却时间
}

// NSQ 消息队列配置
// 入站帧发布到 InboundTopic，出站数据从 OutboundTopic 消费后写入串口
type NSQ struct {
	InboundTopic     string   `yaml:"InboundTopic"`     // 接收帧发布主题
	OutboundTopic    string   `yaml:"OutboundTopic"`    // 待发送数据消费主题
	Channel          string   `yaml:"Channel"`          // 消费者通道
	ProducerAddr     string   `yaml:"ProducerAddr"`     // 生产者 nsqd 地址
	NsqdTCPAddrs     []string `yaml:"NsqdTCPAddrs"`     // nsqd TCP 地址列表
	LookupdHTTPAddrs []string `yaml:"LookupdHTTPAddrs"` // lookupd HTTP 地址列表
	MaxInFlight      int      `yaml:"MaxInFlight"`      // 最大并发消息数
	Concurrency      int      `yaml:"Concurrency"`      // 处理并发数
	MaxAttempts      int      `yaml:"MaxAttempts"`      // 丢弃前最大投递次数
	ConsumerEnabled  bool     `yaml:"ConsumerEnabled"`  // 是否启用出站消费
	ProducerEnabled  bool     `yaml:"ProducerEnabled"`  // 是否启用入站发布
}

// MySQLConfig MySQL 数据库连接配置
type MySQLConfig struct {
	DSN             string        `yaml:"DSN"`             // 数据源配置，为空则不启用
	MaxOpenConns    int           `yaml:"MaxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int           `yaml:"MaxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `yaml:"ConnMaxLifetime"` // 连接最大生命周期
}

// AsyncConfig 异步落库配置
// 控制流量日志的批量写入和后台同步行为
type AsyncConfig struct {
	Enabled       bool          `yaml:"Enabled"`       // 是否启用异步写入
	BatchSize     int           `yaml:"BatchSize"`     // 批量写入大小
	FlushInterval time.Duration `yaml:"FlushInterval"` // 刷新间隔
	WorkerCount   int           `yaml:"WorkerCount"`   // 工作协程数
	QueueSize     int           `yaml:"QueueSize"`     // 内存队列容量
}

// Storage 存储配置
// 包含 Redis 热数据和 MySQL 持久化配置
type Storage struct {
	RedisAddr string        `yaml:"RedisAddr"` // Redis 地址
	Namespace string        `yaml:"Namespace"` // Redis 键前缀
	MaxKeep   int64         `yaml:"MaxKeep"`   // 最大保留帧数
	TTL       time.Duration `yaml:"TTL"`       // 帧记录过期时间
	MySQL     MySQLConfig   `yaml:"MySQL"`     // MySQL 配置
	AsyncSync AsyncConfig   `yaml:"AsyncSync"` // 异步落库配置
}

// Config 应用完整配置
type Config struct {
	App     App     `yaml:"App"`
	Serial  Serial  `yaml:"Serial"`
	NSQ     NSQ     `yaml:"NSQ"`
	Storage Storage `yaml:"Storage"`
}

// MustLoad 加载 YAML 配置文件
// 加载失败时直接 panic(用于应用启动阶段)
func MustLoad(configPath string) Config {
	fileContent, err := os.ReadFile(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to read config file: %v", err))
	}

	var config Config
	if err := yaml.Unmarshal(fileContent, &config); err != nil {
		panic(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}

	return config
}

// validate 校验配置并设置默认值
func (config *Config) validate() error {
	if err := config.validateAppConfig(); err != nil {
		return err
	}

	if err := config.validateSerialConfig(); err != nil {
		return err
	}

	if err := config.validateNSQConfig(); err != nil {
		return err
	}

	if err := config.validateStorageConfig(); err != nil {
		return err
	}

	return nil
}

// validateAppConfig 校验应用配置并设置默认值
func (config *Config) validateAppConfig() error {
	if config.App.Addr == "" {
		config.App.Addr = DefaultHTTPAddress
	}

	if config.App.RequestTimeout <= 0 {
		config.App.RequestTimeout = DefaultRequestTimeout
	}

	return nil
}

// validateSerialConfig 校验串口配置并设置默认值
func (config *Config) validateSerialConfig() error {
	if config.Serial.BaudRate <= 0 {
		config.Serial.BaudRate = DefaultSerialBaudRate
	}

	if config.Serial.DataBits == 0 {
		config.Serial.DataBits = DefaultSerialDataBits
	}

	if config.Serial.DataBits < 5 || config.Serial.DataBits > 8 {
		return fmt.Errorf("invalid data bits %d", config.Serial.DataBits)
	}

	if config.Serial.Parity == "" {
		config.Serial.Parity = "none"
	}

	if config.Serial.StopBits == "" {
		config.Serial.StopBits = "1"
	}

	if config.Serial.Driver == "" {
		config.Serial.Driver = DefaultSerialDriver
	}

	return nil
}

// validateNSQConfig 校验 NSQ 配置并设置默认值
func (config *Config) validateNSQConfig() error {
	if config.NSQ.InboundTopic == "" {
		config.NSQ.InboundTopic = DefaultInboundTopic
	}

	if config.NSQ.OutboundTopic == "" {
		config.NSQ.OutboundTopic = DefaultOutboundTopic
	}

	if config.NSQ.Channel == "" {
		config.NSQ.Channel = DefaultNSQChannel
	}

	if config.NSQ.MaxInFlight <= 0 {
		config.NSQ.MaxInFlight = DefaultNSQMaxInFlight
	}

	if config.NSQ.Concurrency <= 0 {
		config.NSQ.Concurrency = DefaultNSQConcurrency
	}

	if config.NSQ.MaxAttempts <= 0 {
		config.NSQ.MaxAttempts = DefaultNSQMaxAttempts
	}

	return nil
}

// validateStorageConfig 校验存储配置并设置默认值
func (config *Config) validateStorageConfig() error {
	if config.Storage.Namespace == "" {
		config.Storage.Namespace = DefaultRedisNamespace
	}

	if config.Storage.MaxKeep <= 0 {
		config.Storage.MaxKeep = DefaultMaxKeepFrames
	}

	if config.Storage.TTL <= 0 {
		config.Storage.TTL = DefaultFrameTTL
	}

	if config.Storage.AsyncSync.BatchSize <= 0 {
		config.Storage.AsyncSync.BatchSize = DefaultAsyncBatchSize
	}

	if config.Storage.AsyncSync.FlushInterval <= 0 {
		config.Storage.AsyncSync.FlushInterval = DefaultAsyncFlushInterval
	}

	if config.Storage.AsyncSync.WorkerCount <= 0 {
		config.Storage.AsyncSync.WorkerCount = DefaultAsyncWorkerCount
	}

	if config.Storage.AsyncSync.QueueSize <= 0 {
		config.Storage.AsyncSync.QueueSize = DefaultAsyncQueueSize
	}

	return nil
}
