// Command authgate-loadtest seeds sessions and measures concurrent
// validation throughput against Redis, or an in-process miniredis when no
// address is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	sessions    int
	users       int
	concurrency int
	ops         int
	ttl         time.Duration
	prefix      string
	indexPrefix string
}

func main() {
	var (
		opts      options
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.IntVar(&opts.sessions, "sessions", 100000, "number of sessions to seed")
	flag.IntVar(&opts.users, "users", 1000, "number of distinct users owning the sessions")
	flag.IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	flag.IntVar(&opts.ops, "ops", 200000, "operations per phase")
	flag.DurationVar(&opts.ttl, "ttl", 24*time.Hour, "session ttl")
	flag.StringVar(&opts.prefix, "prefix", "lt_u_s", "session key prefix")
	flag.StringVar(&opts.indexPrefix, "index-prefix", "lt_s_u", "user index key prefix")
	flag.Parse()

	if opts.sessions <= 0 || opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 || opts.ttl <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency, ops and ttl must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	results, err := run(context.Background(), client, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	for _, r := range results {
		printStats(r.name, r.stats)
	}
}

type phaseResult struct {
	name  string
	stats phaseStats
}

// run seeds the sessions, then measures a read-only validate phase and a
// sliding phase where the clock sits past the half-life of every session so
// first touches extend.
func run(ctx context.Context, client redis.UniversalClient, opts options) ([]phaseResult, error) {
	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }

	store := session.NewStore(client, opts.prefix, opts.indexPrefix)
	manager := session.NewManager(store, opts.ttl, session.WithClock(clock))

	tokens := make([]string, opts.sessions)
	fmt.Printf("seeding %d sessions for %d users...\n", opts.sessions, opts.users)
	startSeed := time.Now()
	for i := range tokens {
		token, err := manager.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		if _, err := manager.Create(ctx, token, userFor(i%opts.users)); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		tokens[i] = token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	readOnly := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, _, err := manager.Validate(ctx, tokens[r.Intn(len(tokens))], true)
		return err
	})

	offset.Store(int64(opts.ttl * 3 / 5))
	var extended atomic.Int64
	sliding := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, ext, err := manager.Validate(ctx, tokens[r.Intn(len(tokens))], false)
		if ext {
			extended.Add(1)
		}
		return err
	})
	fmt.Printf("sliding phase extended %d sessions\n", extended.Load())

	return []phaseResult{
		{name: "validate", stats: readOnly},
		{name: "validate+extend", stats: sliding},
	}, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
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
		return phaseStats{total: total}
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

func userFor(i int) *identity.User {
	id := fmt.Sprintf("lt-user-%d", i)
	return &identity.User{
		ID:       id,
		Fullname: "Load Test",
		Email:    id + "@loadtest.invalid",
		Roles:    []string{"member"},
	}
}
