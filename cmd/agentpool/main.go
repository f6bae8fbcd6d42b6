package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"agentpool/internal/adapter/audit"
	"agentpool/internal/adapter/statesink"
	"agentpool/internal/domain"
	"agentpool/internal/infra/config"
	"agentpool/internal/infra/logger"
	"agentpool/internal/infra/tracer"
	"agentpool/internal/usecase/eventbus"
	"agentpool/internal/usecase/pool"
	"agentpool/internal/usecase/scheduling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// redisAdapter wraps a go-redis client to implement statesink.RedisClient.
type redisAdapter struct {
	client *goredis.Client
}

func (r *redisAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisAdapter) SAdd(ctx context.Context, key, member string) error {
	return r.client.SAdd(ctx, key, member).Err()
}

func (r *redisAdapter) SRem(ctx context.Context, key, member string) error {
	return r.client.SRem(ctx, key, member).Err()
}

func (r *redisAdapter) RPush(ctx context.Context, key, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

func (r *redisAdapter) Close() error {
	return r.client.Close()
}

func run() error {
	// 1. Config
	cfgPath := flag.String("config", "", "path to config.yaml (empty = defaults)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. State sink (Redis mirror, optional)
	var sink pool.StateSink = pool.NopSink{}
	if cfg.Redis != nil {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The mirror is best-effort; a dead Redis must not block startup.
			log.Warn("redis unreachable, state mirroring degraded", "addr", cfg.Redis.Addr, "error", err)
		}
		redisSink := statesink.NewRedisSink(&redisAdapter{client: rdb}, log)
		defer redisSink.Close()
		sink = redisSink
		log.Info("state mirror enabled", "addr", cfg.Redis.Addr)
	}

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 5. Audit log (optional)
	var auditLog *audit.SQLiteLog
	auditRetention := time.Duration(0)
	if cfg.Audit != nil {
		auditLog, err = audit.NewSQLiteLog(cfg.Audit.Path, log)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer auditLog.Close()
		unsubscribe := auditLog.Attach(bus)
		defer unsubscribe()
		if auditRetention, err = time.ParseDuration(cfg.Audit.Retention); err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
		log.Info("audit log enabled", "path", cfg.Audit.Path, "retention", auditRetention)
	}

	// 6. Pool
	poolCfg, err := cfg.PoolDomain()
	if err != nil {
		return fmt.Errorf("pool config: %w", err)
	}
	p, err := pool.New(poolCfg, sink, bus, log)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := seedAgents(ctx, p, cfg.Pool.InitialAgents); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}

	// 7. Scheduler
	sched := scheduling.New(log)
	sched.RegisterAction(scheduling.ActionAutoScale, func(ctx context.Context) error {
		p.EvaluateScaling(ctx)
		return nil
	})
	sched.RegisterAction(scheduling.ActionStaleSweep, func(ctx context.Context) error {
		p.SweepStaleAgents(ctx)
		return nil
	})
	if auditLog != nil {
		sched.RegisterAction(scheduling.ActionAuditPrune, func(ctx context.Context) error {
			_, err := auditLog.Prune(ctx, auditRetention)
			return err
		})
	}

	tasks := []scheduling.Task{
		{Name: "auto-scale", Schedule: cfg.Scheduler.AutoScaleInterval, Action: scheduling.ActionAutoScale},
		{Name: "stale-sweep", Schedule: cfg.Scheduler.StaleSweepInterval, Action: scheduling.ActionStaleSweep},
	}
	if auditLog != nil {
		tasks = append(tasks, scheduling.Task{
			Name: "audit-prune", Schedule: cfg.Scheduler.AuditPruneInterval, Action: scheduling.ActionAuditPrune,
		})
	}
	for _, task := range tasks {
		if task.Schedule == "" {
			continue
		}
		if err := sched.AddTask(task); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	log.Info("agent pool started",
		"agents", p.Stats().TotalAgents,
		"auto_scaling", poolCfg.AutoScalingEnabled)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// seedAgents creates the instances declared under pool.initial_agents.
func seedAgents(ctx context.Context, p *pool.Pool, seeds []config.InitialAgent) error {
	var errs []error
	for _, seed := range seeds {
		count := seed.Count
		if count <= 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			name := seed.Name
			if name != "" && count > 1 {
				name = fmt.Sprintf("%s-%d", seed.Name, i+1)
			}
			if _, err := p.CreateAgent(ctx, domain.AgentType(seed.Type), name); err != nil {
				errs = append(errs, fmt.Errorf("create %s: %w", seed.Type, err))
			}
		}
	}
	return errors.Join(errs...)
}
