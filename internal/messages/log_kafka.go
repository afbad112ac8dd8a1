package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"flowgate/internal/flowrequest/models"
)

const partition int32 = 0

// KafkaLog reads destination partitions with franz-go. Offsets come from the
// admin API; each fetch uses a short-lived consumer pinned to one offset.
type KafkaLog struct {
	admin        *kadm.Client
	brokers      []string
	fetchTimeout time.Duration
}

func NewKafkaLog(admin *kadm.Client, brokers []string, fetchTimeout time.Duration) *KafkaLog {
	return &KafkaLog{admin: admin, brokers: brokers, fetchTimeout: fetchTimeout}
}

func (l *KafkaLog) Offsets(ctx context.Context, topic string) (int64, int64, error) {
	starts, err := l.admin.ListStartOffsets(ctx, topic)
	if err != nil {
		return 0, 0, fmt.Errorf("list start offsets: %w", err)
	}
	ends, err := l.admin.ListEndOffsets(ctx, topic)
	if err != nil {
		return 0, 0, fmt.Errorf("list end offsets: %w", err)
	}
	start, ok := starts.Lookup(topic, partition)
	if !ok {
		// unknown topic: the destination has no messages yet
		return 0, 0, nil
	}
	if errors.Is(start.Err, kerr.UnknownTopicOrPartition) {
		return 0, 0, nil
	}
	if start.Err != nil {
		return 0, 0, fmt.Errorf("start offset of %s: %w", topic, start.Err)
	}
	end, ok := ends.Lookup(topic, partition)
	if !ok {
		return 0, 0, nil
	}
	if end.Err != nil {
		return 0, 0, fmt.Errorf("end offset of %s: %w", topic, end.Err)
	}
	return start.Offset, end.Offset, nil
}

func (l *KafkaLog) Fetch(ctx context.Context, topic string, from int64, count int) ([]models.Message, error) {
	if count <= 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(l.brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			topic: {partition: kgo.NewOffset().At(from)},
		}),
		kgo.FetchMaxWait(l.fetchTimeout/2),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetch client: %w", err)
	}
	defer client.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	out := make([]models.Message, 0, count)
	for len(out) < count {
		fetches := client.PollRecords(fetchCtx, count-len(out))
		if fetchCtx.Err() != nil {
			if len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("fetch %s from %d: %w", topic, from, fetchCtx.Err())
		}
		if err := fetches.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s from %d: %w", topic, from, err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			if len(out) < count && rec.Offset >= from {
				out = append(out, models.Message{ID: rec.Offset, ChannelID: string(rec.Key), Data: rec.Value})
			}
		})
	}
	return out, nil
}

var _ PartitionLog = (*KafkaLog)(nil)
