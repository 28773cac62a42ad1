// Command poolbench drives a keyed pool of net.Conn connections against a
// set of TCP targets, the way fatih/pool's original demo drove a single
// channel-backed connection pool, generalized here to multiple keys
// (one sub-pool per target address) and the full borrow/return/evict
// lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	poolpkg "github.com/wangfc/commons-pool"
)

func main() {
	targets := flag.String("targets", "127.0.0.1:7777", "comma-separated host:port targets, one sub-pool per target")
	workers := flag.Int("workers", 4, "worker goroutines per target")
	duration := flag.Duration("duration", 30*time.Second, "how long to run before exiting")
	maxTotalPerKey := flag.Int("max-total-per-key", 8, "Config.MaxTotalPerKey")
	flag.Parse()

	runID := uuid.New().String()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", runID))

	keys := strings.Split(*targets, ",")

	factory := poolpkg.FactoryFuncs[string, net.Conn]{
		MakeFunc: func(ctx context.Context, key string) (net.Conn, error) {
			d := net.Dialer{}
			return d.DialContext(ctx, "tcp", key)
		},
		ValidateFunc: func(ctx context.Context, key string, conn net.Conn) bool {
			return conn.SetDeadline(time.Time{}) == nil
		},
		DestroyFunc: func(ctx context.Context, key string, conn net.Conn) error {
			return conn.Close()
		},
	}

	cfg := poolpkg.DefaultConfig()
	cfg.MaxTotalPerKey = *maxTotalPerKey
	cfg.MaxIdlePerKey = *maxTotalPerKey
	cfg.TestOnBorrow = true
	cfg.TimeBetweenEvictionRuns = 10 * time.Second
	cfg.MinEvictableIdleTime = time.Minute
	cfg.Logger = logger
	cfg.OnSwallowedError = func(t poolpkg.ErrorType, key any, err error) {
		logger.Warn("swallowed error", zap.String("type", string(t)), zap.Any("key", key), zap.Error(err))
	}

	p := poolpkg.New[string, net.Conn](factory, cfg, poolpkg.WithMetricsName[string, net.Conn]("poolbench", nil))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, key := range keys {
		key := strings.TrimSpace(key)
		for i := 0; i < *workers; i++ {
			wg.Add(1)
			go func(key string, id int) {
				defer wg.Done()
				worker(ctx, p, key, id, logger)
			}(key, i)
		}
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := p.Stats()
				logger.Info("pool stats",
					zap.Int64("borrowed", stats.Borrowed),
					zap.Int64("returned", stats.Returned),
					zap.Int64("created", stats.Created),
					zap.Int64("destroyed", stats.Destroyed),
					zap.Int("active_all", p.NumActiveAll()),
					zap.Int("idle_all", p.NumIdleAll()))
			}
		}
	}()

	wg.Wait()
	logger.Info("poolbench done")
}

func worker(ctx context.Context, p *poolpkg.Pool[string, net.Conn], key string, id int, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := p.BorrowWait(ctx, key, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("borrow failed", zap.String("key", key), zap.Int("worker", id), zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		_, writeErr := conn.Write([]byte("ping\n"))
		if writeErr != nil {
			if invErr := p.Invalidate(ctx, key, conn); invErr != nil {
				logger.Warn("invalidate failed", zap.Error(invErr))
			}
			continue
		}

		if retErr := p.Return(ctx, key, conn); retErr != nil {
			logger.Warn("return failed", zap.String("key", key), zap.Error(retErr))
		}

		time.Sleep(50 * time.Millisecond)
	}
}
