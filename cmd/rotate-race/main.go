// Command rotate-race hammers one refresh token per family from many
// goroutines and checks that at most one refresh wins, then measures
// sequential rotation throughput.
//
// Backends:
//
//	-backend memory                 in-process store
//	-backend redis [-redis-addr]    REDIS_ADDR or an embedded miniredis
//	-backend postgres -dsn DSN      migrates then uses the DSN
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/session"
	"github.com/MrEthical07/goRotate/session/postgres"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code so deferred cleanup always executes
// before main exits.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rotate-race", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		backend    = fs.String("backend", "memory", "token store: memory, redis or postgres")
		redisAddr  = fs.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dsn        = fs.String("dsn", "", "postgres DSN; if empty, ROTATE_POSTGRES_DSN env is used")
		configPath = fs.String("config", "", "YAML config file; if empty, random secrets are generated")
		families   = fs.Int("families", 200, "number of token families")
		racers     = fs.Int("racers", 16, "concurrent refreshes of the same token per family")
		rounds     = fs.Int("rounds", 50, "sequential rotations per family in the throughput phase")
		verbose    = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if *families <= 0 || *racers <= 1 || *rounds <= 0 {
		fmt.Fprintln(stderr, "families and rounds must be > 0, racers must be > 1")
		return 2
	}

	ctx := context.Background()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("config", slog.Any("error", err))
		return 1
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	store, cleanup, err := openStore(ctx, logger, *backend, *redisAddr, *dsn, cfg.Store)
	if err != nil {
		logger.Error("open store", slog.String("backend", *backend), slog.Any("error", err))
		return 1
	}
	defer cleanup()

	engine, err := goRotate.New().
		WithConfig(cfg).
		WithStore(store).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("engine build", slog.Any("error", err))
		return 1
	}
	defer engine.Close()

	race := runRacePhase(ctx, engine, *families, *racers)
	rotate := runRotatePhase(ctx, engine, *families, *rounds)

	fmt.Fprintln(stdout, "---- results ----")
	fmt.Fprintf(stdout, "race: families=%d racers=%d winners=%d reuse=%d other=%d violations=%d\n",
		*families, *racers, race.winners, race.reuse, race.other, race.violations)
	printStats(stdout, "rotate", rotate)

	snap := engine.MetricsSnapshot()
	fmt.Fprintf(stdout, "metrics: refresh_success=%d reuse_detected=%d family_revoked=%d store_failure=%d\n",
		snap.Counters[goRotate.MetricRefreshSuccess],
		snap.Counters[goRotate.MetricRefreshReuseDetected],
		snap.Counters[goRotate.MetricFamilyRevoked],
		snap.Counters[goRotate.MetricRefreshStoreFailure],
	)

	if race.violations > 0 {
		logger.Error("single-winner violated", slog.Int64("families", race.violations))
		return 1
	}
	return 0
}

func loadConfig(path string) (goRotate.Config, error) {
	if path != "" {
		return goRotate.LoadConfig(path)
	}

	cfg := goRotate.DefaultConfig()
	cfg.JWT.AccessSecret = randomSecret()
	cfg.JWT.RefreshSecret = randomSecret()
	cfg.JWT.Issuer = "rotate-race"
	return cfg, nil
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func openStore(ctx context.Context, logger *slog.Logger, backend, redisAddr, dsn string, cfg goRotate.StoreConfig) (session.Store, func(), error) {
	switch backend {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil

	case "redis":
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			logger.Info("using miniredis", slog.String("addr", addr))
		} else {
			logger.Info("using redis", slog.String("addr", addr))
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup := func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}
		return session.NewRedisStore(client, cfg.RedisPrefix, cfg.RetentionGrace), cleanup, nil

	case "postgres":
		if dsn == "" {
			dsn = os.Getenv("ROTATE_POSTGRES_DSN")
		}
		if dsn == "" {
			return nil, nil, errors.New("postgres backend needs -dsn or ROTATE_POSTGRES_DSN")
		}
		if err := postgres.Migrate(ctx, dsn); err != nil {
			return nil, nil, err
		}
		store, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres")
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

type raceStats struct {
	winners    int64
	reuse      int64
	other      int64
	violations int64
}

// runRacePhase releases all racers of a family at once through a closed
// channel so their refreshes overlap as much as possible.
func runRacePhase(ctx context.Context, engine *goRotate.Engine, families, racers int) raceStats {
	var stats raceStats

	for f := 0; f < families; f++ {
		pair, err := engine.Login(ctx, goRotate.User{ID: fmt.Sprintf("race-user-%d", f)})
		if err != nil {
			atomic.AddInt64(&stats.other, 1)
			continue
		}

		var (
			wg      sync.WaitGroup
			winners int64
			start   = make(chan struct{})
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Refresh(ctx, pair.RefreshToken)
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
				case errors.Is(err, goRotate.ErrRefreshReuse):
					atomic.AddInt64(&stats.reuse, 1)
				default:
					atomic.AddInt64(&stats.other, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		stats.winners += winners
		if winners > 1 {
			stats.violations++
		}
	}
	return stats
}

func runRotatePhase(ctx context.Context, engine *goRotate.Engine, families, rounds int) phaseStats {
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies = make([]time.Duration, 0, families*rounds)
		mu        sync.Mutex
	)

	start := time.Now()
	for f := 0; f < families; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			pair, err := engine.Login(ctx, goRotate.User{ID: fmt.Sprintf("rotate-user-%d", f)})
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}
			token := pair.RefreshToken
			local := make([]time.Duration, 0, rounds)
			for i := 0; i < rounds; i++ {
				t0 := time.Now()
				next, err := engine.Refresh(ctx, token)
				local = append(local, time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					break
				}
				token = next.RefreshToken
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(f)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
