package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// QuestEventsExchange 任务进度事件交换机
	QuestEventsExchange = "quest.events"
	// QuestEventsDLX 处理失败的消息进入死信
	QuestEventsDLX = "quest.events.dlx"

	QuestProgressQueue     = "quest.progress"
	QuestProgressDeadQueue = "quest.progress.dead"

	// QuestProgressRoutingKey 进度更新事件
	QuestProgressRoutingKey = "quest.progress.update"
)

func declareTopology(c *amqp.Connection) error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range []string{QuestEventsExchange, QuestEventsDLX} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex, err)
		}
	}

	if _, err := ch.QueueDeclare(QuestProgressQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": QuestEventsDLX,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QuestProgressQueue, err)
	}
	if err := ch.QueueBind(QuestProgressQueue, "quest.progress.#", QuestEventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QuestProgressQueue, err)
	}

	if _, err := ch.QueueDeclare(QuestProgressDeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QuestProgressDeadQueue, err)
	}
	if err := ch.QueueBind(QuestProgressDeadQueue, "#", QuestEventsDLX, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QuestProgressDeadQueue, err)
	}

	return nil
}
