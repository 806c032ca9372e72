package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HabitQuest/config"
	"HabitQuest/pkg/logger"
	mqotel "HabitQuest/pkg/mq"
)

var (
	conn     *amqp.Connection
	connMu   sync.RWMutex
	instr    *mqotel.Instrumentation
	initOnce sync.Once
	initErr  error
)

// Init 建立连接并声明拓扑
func Init() error {
	initOnce.Do(func() {
		cfg := config.Cfg

		c, err := amqp.Dial(cfg.GetRabbitMQURL())
		if err != nil {
			initErr = fmt.Errorf("failed to dial RabbitMQ: %w", err)
			return
		}

		if err := declareTopology(c); err != nil {
			_ = c.Close()
			initErr = err
			return
		}

		in, err := mqotel.NewInstrumentation(cfg.ServiceName)
		if err != nil {
			_ = c.Close()
			initErr = err
			return
		}

		connMu.Lock()
		conn = c
		instr = in
		connMu.Unlock()

		logger.Logger.Info("RabbitMQ connected",
			zap.String("component", "rabbitmq"),
			zap.String("addr", cfg.RabbitMQAddr),
		)
	})

	return initErr
}

// Connection 未初始化时返回 nil
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func instrumentation() *mqotel.Instrumentation {
	connMu.RLock()
	defer connMu.RUnlock()
	return instr
}

func Close(ctx context.Context) error {
	connMu.Lock()
	defer connMu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		conn = nil
		return err
	}
}
