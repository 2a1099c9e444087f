// Package kafka provides topic bootstrap and a readiness probe for the
// pre-generation queue.
package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// InitKafkaTopics creates the given topics, retrying until the broker
// accepts them all.
func InitKafkaTopics(ctx context.Context, brokerAddr string, delay time.Duration, topics ...string) {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}

	req := kafkago.CreateTopicsRequest{
		Topics: make([]kafkago.TopicConfig, 0, len(topics)),
	}
	for _, t := range topics {
		req.Topics = append(req.Topics, kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Warn().Msg("Topic creation canceled")
			return
		default:
		}

		resp, err := client.CreateTopics(ctx, &req)
		if err != nil {
			zlog.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to run topics creation request")
			time.Sleep(delay)
			continue
		}

		created := 0
		for topic, topicErr := range resp.Errors {
			switch {
			case errors.Is(topicErr, kafkago.TopicAlreadyExists):
				created++
			case topicErr == nil:
				created++
			default:
				zlog.Logger.Warn().Err(topicErr).Str("topic", topic).Msg("Topic creation error")
			}
		}

		if created == len(resp.Errors) {
			zlog.Logger.Info().Msg("Kafka topics ready")
			return
		}
	}
}

// WaitKafkaReady blocks until the broker accepts connections.
func WaitKafkaReady(brokerAddr string) {
	for {
		conn, err := kafkago.Dial("tcp", brokerAddr)
		if err == nil {
			if errConn := conn.Close(); errConn != nil {
				zlog.Logger.Warn().Err(errConn).Msg("Failed to close kafka probe connection")
			}
			break
		}
		zlog.Logger.Info().Msg("Kafka not ready, retrying in 10s...")
		time.Sleep(10 * time.Second)
	}
	zlog.Logger.Info().Msg("Kafka is ready")
}
