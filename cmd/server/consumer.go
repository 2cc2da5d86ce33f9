package main

import (
	"log"
)

//
// 出站队列消费者启动
//

// OutboundConsumerManager 出站消费者管理器
// 负责把 NSQ 中的待发送数据喂给串口
type OutboundConsumerManager struct {
	appContext *AppContext
}

// NewOutboundConsumerManager 创建出站消费者管理器实例
func NewOutboundConsumerManager(appContext *AppContext) *OutboundConsumerManager {
	return &OutboundConsumerManager{appContext: appContext}
}

// Start 启动出站消费者
// 消费者在后台运行,连接失败仅记录日志不中断服务
func (manager *OutboundConsumerManager) Start() {
	consumer := manager.appContext.OutboundConsumer
	if consumer == nil {
		log.Println("[OutboundConsumer] 消费者未启用,跳过启动")
		return
	}

	go func() {
		log.Printf("[OutboundConsumer] 消费者启动 topic=%s channel=%s",
			consumer.GetTopic(), consumer.GetChannel())

		if err := consumer.Run(); err != nil {
			log.Printf("[OutboundConsumer] 运行失败: %v", err)
		}
	}()
}

//
// 外部调用接口 - 保持向后兼容
//

// startOutboundConsumer 启动出站队列消费者
// 保持原有的函数签名,便于现有代码调用
func startOutboundConsumer(app *AppContext) {
	manager := NewOutboundConsumerManager(app)
	manager.Start()
}
