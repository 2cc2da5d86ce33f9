package queue

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
)

// FrameProducer 把串口收到的帧发布到 NSQ
type FrameProducer struct {
	p     *nsq.Producer
	topic string
}

// 创建一个新的帧生产者
func NewFrameProducer(addr, topic string) (*FrameProducer, error) {
	cfg := nsq.NewConfig()
	cfg.UserAgent = defaultUserAgent
	p, err := nsq.NewProducer(addr, cfg)
	if err != nil {
		return nil, err
	}
	return &FrameProducer{p: p, topic: topic}, nil
}

func (n *FrameProducer) Publish(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	// nsqio/go-nsq 的 Publish 不接收 context，但这里仍保持 ctx 以满足接口规范
	return n.p.Publish(n.topic, payload)
}

// 为了兼容上层，给一个 Close
func (n *FrameProducer) Close() {
	if n.p != nil {
		n.p.Stop()
	}
}
