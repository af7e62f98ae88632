// Command dlq-reprocess перечитывает dead letter топик и возвращает сообщения в рабочие топики.
// По умолчанию работает в режиме dry-run и только печатает кандидатов на повтор.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// brokersEnv: переменная с адресами брокеров, общая с сервисами.
const brokersEnv = "CHECKOUT_KAFKA_BROKERS"

type options struct {
	brokers []string
	source  string
	// target переопределяет маршрутизацию по типу агрегата.
	target     string
	eventTypes map[string]bool
	limit      int
	execute    bool
	fromNewest bool
	idle       time.Duration
}

// wants сообщает, попадает ли тип события под фильтр -event-types.
func (o options) wants(eventType string) bool {
	return len(o.eventTypes) == 0 || o.eventTypes[eventType]
}

func parseFlags(args []string, getenv func(string) string) (options, error) {
	var (
		opts       options
		brokers    string
		eventTypes string
	)
	set := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	set.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default $"+brokersEnv+")")
	set.StringVar(&opts.source, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	set.StringVar(&opts.target, "target-topic", "", "publish every record here instead of routing by aggregate type")
	set.StringVar(&eventTypes, "event-types", "", "comma-separated event types to replay; empty replays all")
	set.IntVar(&opts.limit, "limit", 100, "maximum number of records to scan")
	set.BoolVar(&opts.execute, "execute", false, "publish records; without it only candidates are logged")
	set.BoolVar(&opts.fromNewest, "from-newest", false, "scan the last -limit records of each partition")
	set.DurationVar(&opts.idle, "idle-timeout", 2*time.Second, "stop reading a partition after this long without records")
	if err := set.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv(brokersEnv)
	}
	opts.brokers = splitList(brokers)
	opts.source = strings.TrimSpace(opts.source)
	opts.target = strings.TrimSpace(opts.target)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("no kafka brokers: pass -brokers or set %s", brokersEnv)
	case opts.source == "":
		return options{}, errors.New("-source-topic must not be empty")
	case opts.target == opts.source:
		return options{}, errors.New("-target-topic must differ from -source-topic")
	case opts.limit <= 0:
		return options{}, errors.New("-limit must be positive")
	case opts.idle <= 0:
		return options{}, errors.New("-idle-timeout must be positive")
	}

	if types := splitList(eventTypes); len(types) > 0 {
		opts.eventTypes = make(map[string]bool, len(types))
		for _, eventType := range types {
			opts.eventTypes[eventType] = true
		}
	}
	return opts, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.JSONFormatter{})

	opts, err := parseFlags(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	logger := log.WithFields(log.Fields{"source_topic": opts.source, "mode": mode})
	logger.WithField("limit", opts.limit).Info("dlq replay started")

	total, err := run(ctx, opts)
	logger = logger.WithFields(log.Fields{
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	})
	if err != nil {
		logger.WithError(err).Fatal("dlq replay failed")
	}
	logger.Info("dlq replay finished")
}

func run(ctx context.Context, opts options) (summary, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return summary{}, fmt.Errorf("connect to kafka: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return summary{}, fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	r := newReplayer(opts, client, consumer, nil)
	if opts.execute {
		producer, err := sarama.NewSyncProducer(opts.brokers, producerConfig())
		if err != nil {
			return summary{}, fmt.Errorf("create producer: %w", err)
		}
		defer producer.Close()
		r.producer = producer
	}
	return r.replay(ctx)
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}
