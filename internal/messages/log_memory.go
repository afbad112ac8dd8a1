package messages

import (
	"context"
	"sync"

	"flowgate/internal/flowrequest/models"
)

// MemoryLog is an in-process PartitionLog for tests and broker-less runs.
type MemoryLog struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

type memoryPartition struct {
	first    int64
	messages []models.Message
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{partitions: make(map[string]*memoryPartition)}
}

// Append writes a message and returns its offset.
func (l *MemoryLog) Append(topic, channelID string, data []byte) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.partition(topic)
	offset := p.first + int64(len(p.messages))
	p.messages = append(p.messages, models.Message{ID: offset, ChannelID: channelID, Data: data})
	return offset
}

// Truncate drops every message below offset, like log retention does.
func (l *MemoryLog) Truncate(topic string, offset int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.partition(topic)
	end := p.first + int64(len(p.messages))
	if offset <= p.first {
		return
	}
	if offset >= end {
		p.messages = nil
		p.first = offset
		return
	}
	p.messages = p.messages[offset-p.first:]
	p.first = offset
}

func (l *MemoryLog) partition(topic string) *memoryPartition {
	p, ok := l.partitions[topic]
	if !ok {
		p = &memoryPartition{}
		l.partitions[topic] = p
	}
	return p
}

func (l *MemoryLog) Offsets(_ context.Context, topic string) (int64, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.partitions[topic]
	if !ok {
		return 0, 0, nil
	}
	return p.first, p.first + int64(len(p.messages)), nil
}

func (l *MemoryLog) Fetch(_ context.Context, topic string, from int64, count int) ([]models.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.partitions[topic]
	if !ok || from < p.first {
		return nil, nil
	}
	idx := from - p.first
	if idx >= int64(len(p.messages)) {
		return nil, nil
	}
	end := min(idx+int64(count), int64(len(p.messages)))
	return append([]models.Message(nil), p.messages[idx:end]...), nil
}

var _ PartitionLog = (*MemoryLog)(nil)
