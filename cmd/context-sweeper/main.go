// context-sweeper removes AI context records outside their retention
// windows. With --once it runs a single sweep and exits; otherwise it sweeps
// on the configured cron schedule until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/creastat/aicontext"
	"github.com/creastat/aicontext/config"
	"github.com/creastat/aicontext/record"
	"github.com/creastat/aicontext/record/drivers"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	supabasego "github.com/supabase-community/supabase-go"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("context-sweeper", pflag.ContinueOnError)
	config.RegisterFlags(flagSet)
	once := flagSet.Bool("once", false, "run a single sweep and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flagSet)
	if err != nil {
		return err
	}
	log := cfg.Logger()
	if err := checkStoreType(cfg); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close context store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := aicontext.NewSweeper(store,
		aicontext.WithSweepLogger(log.WithField("store", cfg.Store.Type)),
		aicontext.WithRetention(cfg.Sweep.StaleAfter, cfg.Sweep.InactiveAfter),
		aicontext.WithSchedule(cfg.Sweep.Schedule),
	)

	if *once {
		_, err := sweeper.Sweep(ctx)
		return err
	}

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sweeper.Stop()
	log.WithFields(logrus.Fields{"reason": ctx.Err()}).Info("context-sweeper exiting")
	return nil
}

// checkStoreType rejects stores the sweeper cannot share with the engine.
// A memory store only lives inside this process, so it is always empty here.
func checkStoreType(cfg *config.Config) error {
	switch drivers.StoreType(cfg.Store.Type) {
	case drivers.StoreTypeRedis, drivers.StoreTypeSupabase:
		return nil
	default:
		return fmt.Errorf("store type %q cannot be swept from a separate process, use redis or supabase", cfg.Store.Type)
	}
}

func openStore(cfg *config.Config) (record.Store, error) {
	switch drivers.StoreType(cfg.Store.Type) {
	case drivers.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return drivers.NewStore(drivers.StoreTypeRedis,
			drivers.WithRedisClient(client),
			drivers.WithRedisKeyPrefix(cfg.Redis.KeyPrefix),
		)

	case drivers.StoreTypeSupabase:
		client, err := supabasego.NewClient(cfg.Supabase.URL, cfg.Supabase.APIKey, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create supabase client: %w", err)
		}
		return drivers.NewStore(drivers.StoreTypeSupabase,
			drivers.WithSupabaseClient(client),
			drivers.WithSupabaseTable(cfg.Supabase.Table),
		)

	default:
		return drivers.NewStore(drivers.StoreType(cfg.Store.Type))
	}
}
