// Команда loadtest гоняет полный checkout против поднятых сервисов: наполняет корзину
// через HTTP, оформляет заказ и оплачивает его по gRPC, при необходимости отменяет.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
)

type loadMode string

const (
	modePlace          loadMode = "place"
	modePlacePay       loadMode = "place-pay"
	modePlacePayCancel loadMode = "place-pay-cancel"
)

type config struct {
	orderAddr      string
	paymentAddr    string
	cartURL        string
	inventoryURL   string
	total          int
	totalSet       bool
	duration       time.Duration
	concurrency    int
	connections    int
	timeout        time.Duration
	mode           loadMode
	cancelRate     int
	seedStock      int32
	item           string
	qty            int32
	unitPriceMinor int64
	currency       string
	method         string
	addressID      string
	userTag        string
	outputPath     string
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue, timeoutValue, durationValue string
	var seedStock, qty int

	flag.StringVar(&cfg.orderAddr, "addr", "localhost:50051", "order service gRPC address")
	flag.StringVar(&cfg.paymentAddr, "payment-addr", "localhost:50052", "payment service gRPC address")
	flag.StringVar(&cfg.cartURL, "cart-url", "http://localhost:8082", "cart service base URL")
	flag.StringVar(&cfg.inventoryURL, "inventory-url", "http://localhost:8081", "inventory service base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC connections per service")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-call timeout")
	flag.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-pay | place-pay-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for place-pay mode (0..100)")
	flag.IntVar(&seedStock, "seed-stock", 0, "create a lot with this quantity before the run; 0 skips seeding")
	flag.StringVar(&cfg.item, "item", "ITEM-LOAD", "item id put into every cart")
	flag.IntVar(&qty, "qty", 1, "quantity per cart line")
	flag.Int64Var(&cfg.unitPriceMinor, "unit-price-minor", 1000, "unit price in minor units")
	flag.StringVar(&cfg.currency, "currency", "USD", "payment currency")
	flag.StringVar(&cfg.method, "method", "card", "payment method")
	flag.StringVar(&cfg.addressID, "address-id", "load-address", "delivery address id")
	flag.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	cfg.seedStock = int32(seedStock) // #nosec G115 -- диапазон проверяется ниже
	cfg.qty = int32(qty)             // #nosec G115 -- диапазон проверяется ниже

	return cfg, validateConfig(cfg, seedStock, qty)
}

func validateConfig(cfg config, seedStock, qty int) error {
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case seedStock < 0 || seedStock > math.MaxInt32:
		return errors.New("seed-stock must be between 0 and 2147483647")
	case qty <= 0 || qty > math.MaxInt32:
		return errors.New("qty must be between 1 and 2147483647")
	case cfg.unitPriceMinor <= 0:
		return errors.New("unit-price-minor must be > 0")
	case strings.TrimSpace(cfg.item) == "":
		return errors.New("item is required")
	case strings.TrimSpace(cfg.currency) == "":
		return errors.New("currency is required")
	case strings.TrimSpace(cfg.method) == "":
		return errors.New("method is required")
	case strings.TrimSpace(cfg.addressID) == "":
		return errors.New("address-id is required")
	case strings.TrimSpace(cfg.userTag) == "":
		return errors.New("user-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modePlace, modePlacePay, modePlacePayCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dialTargets(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", err)
		os.Exit(1)
	}
	defer pool.close()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	if err := seedStock(ctx, pool.seeder, cfg, runID); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed stock: %v\n", err)
		os.Exit(1)
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(t targets) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(ctx, t, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(pool.pick(workerID))
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// targetPool раздаёт воркерам клиентов поверх общего набора соединений.
type targetPool struct {
	conns    []*grpc.ClientConn
	orders   []checkoutv1.OrderServiceClient
	payments []checkoutv1.PaymentServiceClient
	seeder   stockSeeder
}

func dialTargets(cfg config) (*targetPool, error) {
	pool := &targetPool{seeder: newHTTPSeeder(cfg.cartURL, cfg.inventoryURL, cfg.timeout)}
	dial := func(addr string) (*grpc.ClientConn, error) {
		conn, err := grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			checkoutv1.DialOption(),
		)
		if err != nil {
			return nil, err
		}
		pool.conns = append(pool.conns, conn)
		return conn, nil
	}

	for i := 0; i < cfg.connections; i++ {
		orderConn, err := dial(cfg.orderAddr)
		if err != nil {
			pool.close()
			return nil, err
		}
		paymentConn, err := dial(cfg.paymentAddr)
		if err != nil {
			pool.close()
			return nil, err
		}
		pool.orders = append(pool.orders, checkoutv1.NewOrderServiceClient(orderConn))
		pool.payments = append(pool.payments, checkoutv1.NewPaymentServiceClient(paymentConn))
	}
	return pool, nil
}

func (p *targetPool) pick(worker int) targets {
	i := worker % len(p.orders)
	return targets{orders: p.orders[i], payments: p.payments[i], seeder: p.seeder}
}

func (p *targetPool) close() {
	for _, conn := range p.conns {
		_ = conn.Close()
	}
}

// dispatchJobs раздаёт номера сценариев до исчерпания счётчика, таймера или ctx.
func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}
