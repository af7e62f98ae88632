package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// offsetReader: часть sarama.Client, нужная для границ партиции.
type offsetReader interface {
	GetOffset(topic string, partition int32, at int64) (int64, error)
}

type summary struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *summary) add(other summary) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer читает DLQ по партициям в пределах смещений, известных на момент старта,
// поэтому записи, появившиеся во время прохода, не читаются.
type replayer struct {
	opts     options
	offsets  offsetReader
	consumer sarama.Consumer
	// producer нужен только в режиме execute.
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

func newReplayer(opts options, offsets offsetReader, consumer sarama.Consumer, producer sarama.SyncProducer) *replayer {
	return &replayer{
		opts:     opts,
		offsets:  offsets,
		consumer: consumer,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
		now:      time.Now,
	}
}

func (r *replayer) replay(ctx context.Context) (summary, error) {
	var total summary
	if r.opts.execute && r.producer == nil {
		return total, errors.New("execute mode needs a producer")
	}
	partitions, err := r.consumer.Partitions(r.opts.source)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.opts.source, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.opts.limit - total.scanned
		if budget <= 0 {
			break
		}
		got, err := r.scan(ctx, partition, budget)
		total.add(got)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// window возвращает диапазон смещений [start, end) для чтения партиции.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("partition %d: oldest offset: %w", partition, err)
	}
	end, err := r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("partition %d: newest offset: %w", partition, err)
	}
	start := oldest
	if r.opts.fromNewest {
		start = max(end-int64(budget), oldest)
	}
	return start, end, nil
}

func (r *replayer) scan(ctx context.Context, partition int32, budget int) (summary, error) {
	var got summary
	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return got, err
	}

	pc, err := r.consumer.ConsumePartition(r.opts.source, partition, start)
	if err != nil {
		return got, fmt.Errorf("partition %d: consume from %d: %w", partition, start, err)
	}
	defer pc.Close()

	idle := time.NewTimer(r.opts.idle)
	defer idle.Stop()

	for got.scanned < budget {
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Warn("partition went idle before its last offset")
			return got, nil
		case cerr, ok := <-pc.Errors():
			if ok && cerr != nil {
				return got, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg.Offset >= end {
				return got, nil
			}
			idle.Reset(r.opts.idle)
			got.scanned++

			replayed, err := r.handle(msg)
			if err != nil {
				return got, err
			}
			if replayed {
				got.replayed++
			} else {
				got.skipped++
			}
			if msg.Offset+1 >= end {
				return got, nil
			}
		}
	}
	return got, nil
}

// handle разбирает одну запись и публикует её или логирует как кандидата.
// Ошибка возвращается только при сбое публикации; неразборчивые записи пропускаются.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	logger := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	rec, err := decodeRecord(msg.Value, r.opts.target, r.now())
	switch {
	case errors.Is(err, errUnknownRecord):
		logger.Debug("skip record of unknown format")
		return false, nil
	case err != nil:
		logger.WithError(err).Warn("skip malformed dlq record")
		return false, nil
	case !r.opts.wants(rec.eventType):
		return false, nil
	}

	logger = logger.WithFields(log.Fields{
		"target_topic": rec.topic,
		"event_type":   rec.eventType,
		"key":          rec.key,
	})
	if !r.opts.execute {
		logger.Info("dlq replay candidate")
		return true, nil
	}

	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     rec.topic,
		Key:       sarama.StringEncoder(rec.key),
		Value:     sarama.ByteEncoder(rec.value),
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("republish offset %d of partition %d: %w", msg.Offset, msg.Partition, err)
	}
	logger.Info("dlq record replayed")
	return true, nil
}
