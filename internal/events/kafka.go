package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/truthstake/internal/metrics"
)

const kafkaQueueSize = 256

var (
	errKafkaNotStarted = errors.New("kafka publisher not started")
	errKafkaStopped    = errors.New("kafka publisher stopped")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher асинхронно пишет события в топик Kafka. Ключом сообщения служит
// идентификатор утверждения, поэтому события одного утверждения попадают
// в одну партицию и сохраняют порядок.
type KafkaPublisher struct {
	topic   string
	logger  *zap.Logger
	writer  messageWriter
	queue   chan kafka.Message
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	start   sync.Once
	stop    sync.Once
	started atomic.Bool
}

// NewKafkaPublisher создаёт публикатор для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return newKafkaPublisher(topic, w, logger), nil
}

func newKafkaPublisher(topic string, w messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		topic:  topic,
		logger: logger.With(zap.String("component", "kafka_publisher")),
		writer: w,
		queue:  make(chan kafka.Message, kafkaQueueSize),
	}
}

// Start запускает фоновую отправку сообщений.
func (p *KafkaPublisher) Start(ctx context.Context) {
	p.start.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.logger.Info("kafka publisher started", zap.String("topic", p.topic))
	})
}

// Stop останавливает отправку, дожидаясь доставки уже принятых сообщений.
func (p *KafkaPublisher) Stop(ctx context.Context) error {
	var stopErr error
	p.stop.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if err := p.writer.Close(); err != nil {
			p.logger.Error("close kafka writer", zap.Error(err))
		}
		p.logger.Info("kafka publisher stopped")
	})
	return stopErr
}

// Publish ставит события в очередь на отправку и не ждёт свободного места:
// при заполненной очереди событие отбрасывается.
func (p *KafkaPublisher) Publish(_ context.Context, evs ...Event) error {
	if !p.started.Load() {
		return errKafkaNotStarted
	}
	for _, e := range evs {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(e.ClaimID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		}
		select {
		case <-p.runCtx.Done():
			return errKafkaStopped
		default:
		}
		select {
		case p.queue <- msg:
		default:
			metrics.EventDeliveries.WithLabelValues("kafka_queue", "dropped").Inc()
			return fmt.Errorf("kafka: %w", ErrQueueFull)
		}
	}
	return nil
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			return
		case msg := <-p.queue:
			p.deliver(p.runCtx, msg)
		}
	}
}

func (p *KafkaPublisher) drain() {
	// runCtx уже отменён, поэтому остаток очереди отправляется без него.
	ctx := context.WithoutCancel(p.runCtx)
	for {
		select {
		case msg := <-p.queue:
			p.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) deliver(ctx context.Context, msg kafka.Message) {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("kafka write failed", zap.String("key", string(msg.Key)), zap.Error(err))
		return
	}
	p.logger.Debug("kafka message written", zap.String("key", string(msg.Key)))
}
