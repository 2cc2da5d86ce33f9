package queue

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/nsqio/go-nsq"
)

// ==================== 常量定义 ====================

const (
	// 用户代理标识
	defaultUserAgent = "serial-gateway"

	// 日志前缀
	logPrefix = "[nsq] "

	// 错误消息常量

	errorMessageTopicRequired       = "topic is required"
	errorMessageChannelRequired     = "channel is required"
	errorMessageSenderRequired      = "sender is required"
	errorMessageNoAddressConfigured = "no nsqd address or lookupd configured"
	errorMessageConsumerCreateFail  = "failed to create NSQ consumer"
)

// ==================== 类型定义 ====================

// Sender 出站数据的写入端
// 写入失败返回 false，消息会被 NSQ 重新投递
type Sender interface {
	SendMessage(payload []byte) bool
}

// OutboundConsumer 出站数据消费者
// 从 NSQ 消费待发送数据并写入串口
type OutboundConsumer struct {
	// 基础配置
	config  *nsq.Config
	topic   string
	channel string

	// 连接地址
	nsqdAddresses    []string // nsqd TCP 地址
	lookupdAddresses []string // lookupd HTTP 地址

	// 核心组件
	consumer *nsq.Consumer
	sender   Sender

	// 并发控制
	maxInFlight int
	concurrency int

	// 丢弃前最大投递次数
	maxAttempts uint16
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic            string
	Channel          string
	MaxInFlight      int
	Concurrency      int
	NsqdAddresses    []string
	LookupdAddresses []string
	MaxAttempts      uint16
	Sender           Sender
}

// ==================== 构造函数 ====================

// NewOutboundConsumer 从配置创建出站消费者
func NewOutboundConsumer(config ConsumerConfig) (*OutboundConsumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, err
	}

	nsqConfig := createNSQConfig(config.MaxInFlight)
	consumer, err := createNSQConsumer(config.Topic, config.Channel, nsqConfig)
	if err != nil {
		return nil, err
	}

	outboundConsumer := &OutboundConsumer{
		config:           nsqConfig,
		topic:            config.Topic,
		channel:          config.Channel,
		nsqdAddresses:    config.NsqdAddresses,
		lookupdAddresses: config.LookupdAddresses,
		consumer:         consumer,
		sender:           config.Sender,
		maxInFlight:      config.MaxInFlight,
		concurrency:      config.Concurrency,
		maxAttempts:      config.MaxAttempts,
	}

	return outboundConsumer, nil
}

// ==================== 配置验证 ====================

// validateConsumerConfig 验证消费者配置
func validateConsumerConfig(config ConsumerConfig) error {
	if config.Topic == "" {
		return errors.New(errorMessageTopicRequired)
	}

	if config.Channel == "" {
		return errors.New(errorMessageChannelRequired)
	}

	if config.Sender == nil {
		return errors.New(errorMessageSenderRequired)
	}

	if len(config.NsqdAddresses) == 0 && len(config.LookupdAddresses) == 0 {
		return errors.New(errorMessageNoAddressConfigured)
	}

	return nil
}

// ==================== NSQ 配置创建 ====================

// createNSQConfig 创建 NSQ 配置
func createNSQConfig(maxInFlight int) *nsq.Config {
	config := nsq.NewConfig()

	if maxInFlight > 0 {
		config.MaxInFlight = maxInFlight
	}

	config.UserAgent = defaultUserAgent

	return config
}

// createNSQConsumer 创建 NSQ 消费者实例
func createNSQConsumer(topic string, channel string, config *nsq.Config) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(topic, channel, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConsumerCreateFail, err)
	}

	setupConsumerLogger(consumer)

	return consumer, nil
}

// setupConsumerLogger 设置消费者日志
func setupConsumerLogger(consumer *nsq.Consumer) {
	logger := log.New(os.Stdout, logPrefix, log.LstdFlags)
	consumer.SetLogger(logger, nsq.LogLevelInfo)
}

// ==================== 消息处理 ====================

// Run 启动消费者并阻塞到其停止
func (consumer *OutboundConsumer) Run() error {
	consumer.registerMessageHandler()

	if err := consumer.connectToNSQ(); err != nil {
		return err
	}

	consumer.waitForShutdown()
	return nil
}

// registerMessageHandler 注册消息处理器
func (consumer *OutboundConsumer) registerMessageHandler() {
	concurrency := consumer.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	consumer.consumer.AddConcurrentHandlers(consumer.createMessageHandler(), concurrency)
}

// createMessageHandler 创建消息处理器
func (consumer *OutboundConsumer) createMessageHandler() nsq.Handler {
	return nsq.HandlerFunc(func(message *nsq.Message) error {
		return consumer.handleMessage(message)
	})
}

// handleMessage 处理单条出站消息
// 写入失败返回错误触发重投，超过最大投递次数后丢弃
func (consumer *OutboundConsumer) handleMessage(message *nsq.Message) error {
	if len(message.Body) == 0 {
		return nil
	}

	if consumer.sender.SendMessage(message.Body) {
		return nil
	}

	if consumer.shouldDrop(message) {
		log.Printf("%s出站消息投递%d次仍失败，丢弃（%d 字节）", logPrefix, message.Attempts, len(message.Body))
		return nil
	}

	return fmt.Errorf("serial write failed, attempt %d", message.Attempts)
}

// shouldDrop 判断消息是否超过最大投递次数
func (consumer *OutboundConsumer) shouldDrop(message *nsq.Message) bool {
	if consumer.maxAttempts == 0 {
		return false
	}
	return message.Attempts >= consumer.maxAttempts
}

// ==================== 连接管理 ====================

// connectToNSQ 连接到 NSQ
func (consumer *OutboundConsumer) connectToNSQ() error {
	if err := consumer.connectToNSQD(); err != nil {
		return err
	}

	if err := consumer.connectToLookupd(); err != nil {
		return err
	}

	return nil
}

// connectToNSQD 连接到 NSQD 节点
func (consumer *OutboundConsumer) connectToNSQD() error {
	for _, address := range consumer.nsqdAddresses {
		if err := consumer.consumer.ConnectToNSQD(address); err != nil {
			return fmt.Errorf("failed to connect to nsqd %s: %w", address, err)
		}
		log.Printf("Connected to nsqd: %s", address)
	}

	return nil
}

// connectToLookupd 连接到 Lookupd 节点
func (consumer *OutboundConsumer) connectToLookupd() error {
	for _, address := range consumer.lookupdAddresses {
		if err := consumer.consumer.ConnectToNSQLookupd(address); err != nil {
			return fmt.Errorf("failed to connect to lookupd %s: %w", address, err)
		}
		log.Printf("Connected to lookupd: %s", address)
	}

	return nil
}

// waitForShutdown 等待关闭信号
func (consumer *OutboundConsumer) waitForShutdown() {
	<-consumer.consumer.StopChan
}

// ==================== 生命周期管理 ====================

// Stop 停止消费者
func (consumer *OutboundConsumer) Stop() {
	if consumer.consumer != nil {
		log.Printf("Stopping NSQ consumer for topic: %s", consumer.topic)
		consumer.consumer.Stop()
	}
}

// ==================== 状态查询 ====================

// IsConnected 检查是否已连接
func (consumer *OutboundConsumer) IsConnected() bool {
	stats := consumer.consumer.Stats()
	return stats.Connections > 0
}

// GetTopic 获取 Topic 名称
func (consumer *OutboundConsumer) GetTopic() string {
	return consumer.topic
}

// GetChannel 获取 Channel 名称
func (consumer *OutboundConsumer) GetChannel() string {
	return consumer.channel
}
