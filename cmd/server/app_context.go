package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"serial-gateway/internal/asyncsync"
	"serial-gateway/internal/config"
	"serial-gateway/internal/database"
	"serial-gateway/internal/queue"
	"serial-gateway/internal/recorder"
	"serial-gateway/internal/serialconn"
	"serial-gateway/internal/serialport"
	"serial-gateway/internal/utils"

	redis "github.com/redis/go-redis/v9"
)

const defaultRecordTimeout = 3 * time.Second

// AppContext 应用运行时上下文
// 聚合所有运行期依赖,统一管理生命周期
type AppContext struct {
	Config           config.Config
	RedisClient      *redis.Client
	MySQL            *database.MySQLDB
	AsyncSyncManager *asyncsync.Manager
	Recorder         *recorder.RedisStore
	Conn             *serialconn.ConnectionManager
	Sender           *GatewaySender
	FrameProducer    *queue.FrameProducer
	OutboundConsumer *queue.OutboundConsumer
}

// Close 释放应用上下文持有的所有资源
// 按照依赖关系倒序释放,避免资源泄漏
func (appContext *AppContext) Close() {
	appContext.closeOutboundConsumer()
	appContext.closeSerialConnection()
	appContext.closeFrameProducer()
	appContext.closeAsyncSyncManager()
	appContext.closeMySQLConnection()
	appContext.closeRedisClient()
}

// closeOutboundConsumer 停止出站消费者
func (appContext *AppContext) closeOutboundConsumer() {
	if appContext.OutboundConsumer != nil {
		appContext.OutboundConsumer.Stop()
	}
}

// closeSerialConnection 断开串口连接
func (appContext *AppContext) closeSerialConnection() {
	if appContext.Conn != nil {
		appContext.Conn.Disconnect()
	}
}

// closeFrameProducer 关闭帧生产者
func (appContext *AppContext) closeFrameProducer() {
	if appContext.FrameProducer != nil {
		appContext.FrameProducer.Close()
	}
}

// closeAsyncSyncManager 关闭异步落库管理器
func (appContext *AppContext) closeAsyncSyncManager() {
	if appContext.AsyncSyncManager != nil {
		appContext.AsyncSyncManager.Stop()
	}
}

// closeMySQLConnection 关闭 MySQL 连接
func (appContext *AppContext) closeMySQLConnection() {
	if appContext.MySQL != nil {
		appContext.MySQL.Close()
	}
}

// closeRedisClient 关闭 Redis 客户端
func (appContext *AppContext) closeRedisClient() {
	if appContext.RedisClient != nil {
		appContext.RedisClient.Close()
	}
}

//
// 发送端包装器
//

// GatewaySender 带流量记录的串口发送端
// HTTP 接口和出站消费者共用,成功写入后记录出站帧
type GatewaySender struct {
	conn      *serialconn.ConnectionManager
	recorder  *recorder.RedisStore
	asyncSync *asyncsync.Manager
	portName  string
}

// NewGatewaySender 创建发送端包装器
func NewGatewaySender(
	conn *serialconn.ConnectionManager,
	store *recorder.RedisStore,
	asyncSync *asyncsync.Manager,
	portName string,
) *GatewaySender {
	return &GatewaySender{
		conn:      conn,
		recorder:  store,
		asyncSync: asyncSync,
		portName:  portName,
	}
}

// SendMessage 写入串口并记录出站流量
func (sender *GatewaySender) SendMessage(payload []byte) bool {
	if !sender.conn.SendMessage(payload) {
		return false
	}

	sender.recordOutbound(payload)
	return true
}

// recordOutbound 记录出站帧到 Redis 和落库队列
func (sender *GatewaySender) recordOutbound(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRecordTimeout)
	defer cancel()

	if err := sender.recorder.RecordFrame(ctx, recorder.DirectionOut, payload); err != nil {
		log.Printf("[Sender] 出站帧记录失败: %v", err)
	}

	if sender.asyncSync != nil {
		sender.asyncSync.AddFrame(database.FrameRow{
			Direction: recorder.DirectionOut,
			PortName:  sender.portName,
			Payload:   utils.BytesToHex(payload),
			Size:      len(payload),
			CreatedAt: time.Now().UnixMilli(),
		})
	}
}

//
// 应用初始化器
//

// ApplicationInitializer 应用初始化器
// 负责构建完整的应用运行上下文
type ApplicationInitializer struct {
	configuration    config.Config
	redisClient      *redis.Client
	mysqlDatabase    *database.MySQLDB
	asyncSyncManager *asyncsync.Manager
	frameRecorder    *recorder.RedisStore
	frameProducer    *queue.FrameProducer
	connManager      *serialconn.ConnectionManager
}

// NewApplicationInitializer 创建应用初始化器实例
func NewApplicationInitializer(configuration config.Config) *ApplicationInitializer {
	return &ApplicationInitializer{
		configuration: configuration,
	}
}

// Initialize 初始化应用上下文
// 按照依赖关系依次初始化各个组件
func (initializer *ApplicationInitializer) Initialize() *AppContext {
	initializer.initializeRedis()
	initializer.initializeMySQLAndAsyncSync()
	initializer.initializeRecorder()
	initializer.initializeFrameProducer()
	initializer.initializeConnectionManager()
	initializer.wireEventPipeline()

	sender := NewGatewaySender(
		initializer.connManager,
		initializer.frameRecorder,
		initializer.asyncSyncManager,
		initializer.configuration.Serial.PortName,
	)

	outboundConsumer := initializer.createOutboundConsumer(sender)

	initializer.autoConnect()

	return &AppContext{
		Config:           initializer.configuration,
		RedisClient:      initializer.redisClient,
		MySQL:            initializer.mysqlDatabase,
		AsyncSyncManager: initializer.asyncSyncManager,
		Recorder:         initializer.frameRecorder,
		Conn:             initializer.connManager,
		Sender:           sender,
		FrameProducer:    initializer.frameProducer,
		OutboundConsumer: outboundConsumer,
	}
}

// initializeRedis 初始化 Redis 客户端
func (initializer *ApplicationInitializer) initializeRedis() {
	initializer.redisClient = redis.NewClient(&redis.Options{
		Addr: initializer.configuration.Storage.RedisAddr,
	})

	log.Println("[Initializer] Redis 客户端初始化完成")
}

// initializeMySQLAndAsyncSync 初始化 MySQL 和异步落库管理器
// 仅在配置了 DSN 时才初始化
func (initializer *ApplicationInitializer) initializeMySQLAndAsyncSync() {
	dsn := initializer.configuration.Storage.MySQL.DSN
	if dsn == "" {
		log.Println("[Initializer] 未配置 MySQL,跳过初始化")
		return
	}

	if err := initializer.connectMySQL(); err != nil {
		log.Printf("[Initializer] MySQL 连接失败: %v", err)
		return
	}

	if err := initializer.initializeAsyncSync(); err != nil {
		log.Printf("[Initializer] 异步落库管理器启动失败: %v", err)
		initializer.asyncSyncManager = nil
	}
}

// connectMySQL 连接 MySQL 数据库
func (initializer *ApplicationInitializer) connectMySQL() error {
	db, err := database.NewMySQLDB(initializer.configuration.Storage.MySQL)
	if err != nil {
		return fmt.Errorf("创建连接失败: %w", err)
	}

	if err := db.InitTables(); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}

	initializer.mysqlDatabase = db
	log.Println("[Initializer] MySQL 连接成功")
	return nil
}

// initializeAsyncSync 初始化异步落库管理器
func (initializer *ApplicationInitializer) initializeAsyncSync() error {
	manager := asyncsync.NewManager(
		initializer.mysqlDatabase,
		initializer.configuration.Storage.AsyncSync,
	)

	if err := manager.Start(); err != nil {
		return fmt.Errorf("启动管理器失败: %w", err)
	}

	initializer.asyncSyncManager = manager
	log.Println("[Initializer] 异步落库管理器启动成功")
	return nil
}

// initializeRecorder 初始化帧流量记录存储
func (initializer *ApplicationInitializer) initializeRecorder() {
	initializer.frameRecorder = recorder.NewRedisStore(
		initializer.redisClient,
		initializer.configuration.Storage.Namespace,
		initializer.configuration.Storage.MaxKeep,
		initializer.configuration.Storage.TTL,
	)

	log.Println("[Initializer] 帧记录存储初始化完成")
}

// initializeFrameProducer 初始化入站帧生产者
// 仅在启用生产者且配置了 nsqd 地址时创建
func (initializer *ApplicationInitializer) initializeFrameProducer() {
	nsqConfig := initializer.configuration.NSQ
	if !nsqConfig.ProducerEnabled || nsqConfig.ProducerAddr == "" {
		log.Println("[Initializer] 帧生产者未启用")
		return
	}

	producer, err := queue.NewFrameProducer(nsqConfig.ProducerAddr, nsqConfig.InboundTopic)
	if err != nil {
		log.Printf("[Initializer] 创建帧生产者失败: %v", err)
		return
	}

	initializer.frameProducer = producer
	log.Println("[Initializer] 帧生产者创建成功")
}

// initializeConnectionManager 初始化串口连接管理器
func (initializer *ApplicationInitializer) initializeConnectionManager() {
	serialConfig := initializer.configuration.Serial

	parity, err := serialconn.ParseParity(serialConfig.Parity)
	if err != nil {
		log.Fatalf("[Initializer] 串口配置错误: %v", err)
	}

	stopBits, err := serialconn.ParseStopBits(serialConfig.StopBits)
	if err != nil {
		log.Fatalf("[Initializer] 串口配置错误: %v", err)
	}

	portConfig := serialconn.PortConfig{
		PortName: serialConfig.PortName,
		BaudRate: serialConfig.BaudRate,
		DataBits: serialConfig.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}

	tuning := serialconn.Tuning{
		PollInterval: serialConfig.PollInterval,
		Cooldown:     serialConfig.ReconnectCooldown,
	}

	initializer.connManager = serialconn.NewConnectionManager(
		portConfig,
		serialconn.WithOpener(serialport.Opener(serialConfig.Driver)),
		serialconn.WithExistsFunc(serialport.Exists),
		serialconn.WithTuning(tuning),
	)

	log.Printf("[Initializer] 串口连接管理器创建完成 port=%s driver=%s",
		serialConfig.PortName, serialConfig.Driver)
}

// wireEventPipeline 挂接串口事件管道
// 入站帧发布到 NSQ 并记录,状态变更写入记录存储
func (initializer *ApplicationInitializer) wireEventPipeline() {
	portName := initializer.configuration.Serial.PortName

	initializer.connManager.SubscribeMessage(func(payload []byte) {
		initializer.publishInboundFrame(payload)
		initializer.recordInboundFrame(portName, payload)
	})

	initializer.connManager.SubscribeStatus(func(connected bool) {
		initializer.recordTransition(portName, connected)
	})
}

// publishInboundFrame 发布入站帧到 NSQ
func (initializer *ApplicationInitializer) publishInboundFrame(payload []byte) {
	if initializer.frameProducer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRecordTimeout)
	defer cancel()

	if err := initializer.frameProducer.Publish(ctx, payload); err != nil {
		log.Printf("[Initializer] 入站帧发布失败: %v", err)
	}
}

// recordInboundFrame 记录入站帧到 Redis 和落库队列
func (initializer *ApplicationInitializer) recordInboundFrame(portName string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRecordTimeout)
	defer cancel()

	if err := initializer.frameRecorder.RecordFrame(ctx, recorder.DirectionIn, payload); err != nil {
		log.Printf("[Initializer] 入站帧记录失败: %v", err)
	}

	if initializer.asyncSyncManager != nil {
		initializer.asyncSyncManager.AddFrame(database.FrameRow{
			Direction: recorder.DirectionIn,
			PortName:  portName,
			Payload:   utils.BytesToHex(payload),
			Size:      len(payload),
			CreatedAt: time.Now().UnixMilli(),
		})
	}
}

// recordTransition 记录连接状态变更
func (initializer *ApplicationInitializer) recordTransition(portName string, connected bool) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRecordTimeout)
	defer cancel()

	if err := initializer.frameRecorder.RecordTransition(ctx, connected); err != nil {
		log.Printf("[Initializer] 状态变更记录失败: %v", err)
	}

	if initializer.asyncSyncManager != nil {
		initializer.asyncSyncManager.AddEvent(database.EventRow{
			PortName:  portName,
			Connected: connected,
			CreatedAt: time.Now().UnixMilli(),
		})
	}
}

// createOutboundConsumer 创建出站数据消费者
// 仅在启用消费者时创建,启动由 consumer.go 负责
func (initializer *ApplicationInitializer) createOutboundConsumer(sender *GatewaySender) *queue.OutboundConsumer {
	nsqConfig := initializer.configuration.NSQ
	if !nsqConfig.ConsumerEnabled {
		log.Println("[Initializer] 出站消费者未启用")
		return nil
	}

	consumer, err := queue.NewOutboundConsumer(queue.ConsumerConfig{
		Topic:            nsqConfig.OutboundTopic,
		Channel:          nsqConfig.Channel,
		MaxInFlight:      nsqConfig.MaxInFlight,
		Concurrency:      nsqConfig.Concurrency,
		NsqdAddresses:    nsqConfig.NsqdTCPAddrs,
		LookupdAddresses: nsqConfig.LookupdHTTPAddrs,
		MaxAttempts:      uint16(nsqConfig.MaxAttempts),
		Sender:           sender,
	})

	if err != nil {
		log.Printf("[Initializer] 创建出站消费者失败: %v", err)
		return nil
	}

	log.Println("[Initializer] 出站消费者创建成功")
	return consumer
}

// autoConnect 按配置在启动时建立串口连接
// 首次连接失败不致命,看护循环会持续重试
func (initializer *ApplicationInitializer) autoConnect() {
	if !initializer.configuration.Serial.Enabled {
		log.Println("[Initializer] 串口自动连接未启用")
		return
	}

	if initializer.connManager.Connect() {
		log.Println("[Initializer] 串口连接成功")
		return
	}

	log.Println("[Initializer] 串口首次连接失败,后台将持续重试")
}

//
// 外部调用接口
//

// InitAppContext 初始化应用上下文
// 这是主入口函数,保持向后兼容
func InitAppContext(configuration config.Config) *AppContext {
	initializer := NewApplicationInitializer(configuration)
	return initializer.Initialize()
}
