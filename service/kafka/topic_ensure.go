package kafka

import (
	"errors"

	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopic creates topic when missing and grows its partitions when there
// are fewer than wanted. Kafka never shrinks partitions.
func EnsureTopic(admin sarama.ClusterAdmin, topic string, partitions int32, rf int16, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	descs, err := admin.DescribeTopics([]string{topic})
	if err != nil {
		return errs.ErrInternal.Wrap(err, "topic", topic)
	}
	exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

	if !exists {
		minISR := "1"
		if rf >= 3 {
			minISR = "2"
		}
		td := &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: rf,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				log.Info("topic exists (race)", zap.String("topic", topic))
				return nil
			}
			return errs.ErrInternal.Wrap(err, "topic", topic)
		}
		log.Info("topic created", zap.String("topic", topic), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if partitions > cur {
		if err := admin.CreatePartitions(topic, partitions, nil, false); err != nil {
			return errs.ErrInternal.Wrap(err, "topic", topic, "from", cur, "to", partitions)
		}
		log.Info("topic partitions expanded", zap.String("topic", topic), zap.Int32("from", cur), zap.Int32("to", partitions))
	}
	return nil
}

func strPtr(s string) *string { return &s }
