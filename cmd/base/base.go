// Package base wires the library packages together for the commands.
package base

import (
	"context"
	"fmt"
	"github.com/cyclopcam/connect/lib/api"
	"github.com/cyclopcam/connect/lib/config"
	"github.com/cyclopcam/connect/lib/device"
	"github.com/cyclopcam/connect/lib/network"
	"github.com/cyclopcam/connect/lib/probe"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/cyclopcam/connect/lib/relay"
	"github.com/cyclopcam/connect/lib/router"
	"github.com/cyclopcam/connect/lib/scanner"
	"github.com/cyclopcam/connect/lib/store"
	"github.com/redis/go-redis/v9"
	"net/http"
	"time"
)

// OpenStore opens the store that the config selects.
func OpenStore(cfg config.StoreConfig) (registry.Store, error) {
	switch cfg.Driver {
	case config.StoreLevelDB:
		s, err := store.OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSqlite, config.StorePostgres:
		driver, dsn := store.DriverSqlite, cfg.Path
		if cfg.Driver == config.StorePostgres {
			driver, dsn = store.DriverPostgres, cfg.DSN
		}
		db, err := store.OpenGorm(driver, dsn)
		if err != nil {
			return nil, err
		}
		s, err := store.NewGorm(db)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), store.DefaultRedisTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %v: %w", cfg.RedisAddr, err)
		}
		return store.NewRedis(client, cfg.RedisPrefix), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Components is a fully wired client.
type Components struct {
	Config   *config.Config
	Registry *registry.Registry
	Verifier *device.Verifier
	Prober   *probe.Prober
	Scanner  *scanner.Scanner
	Router   *router.Router
	Tracker  network.Tracker
	Cookies  *router.JarInstaller
}

// Build opens the store and creates all components.
// The key pair of the verifier lives as long as the process.
func Build(cfg *config.Config) (c *Components, err error) {
	s, err := OpenStore(cfg.Store)
	if err != nil {
		return
	}
	reg, err := registry.Open(s)
	if err != nil {
		s.Close()
		return
	}
	verifier, err := device.NewEphemeralVerifier()
	if err != nil {
		reg.Close()
		return
	}
	cookies, err := router.NewJarInstaller()
	if err != nil {
		reg.Close()
		return
	}

	tracker := network.NewTracker(cfg.Router.PollInterval.Duration)
	locator := network.TrackerLocator{Tracker: tracker}
	prober := probe.New(cfg.Probe(), &http.Client{})
	relayConfig := cfg.RelayConfig()

	c = &Components{
		Config:   cfg,
		Registry: reg,
		Verifier: verifier,
		Prober:   prober,
		Scanner:  scanner.New(prober, locator, cfg.Scan.Workers),
		Tracker:  tracker,
		Cookies:  cookies,
	}
	c.Router = router.New(router.Options{
		Devices:    reg,
		Verifier:   verifier,
		Prober:     prober,
		Relay:      relayConfig,
		Checker:    relay.NewChecker(relayConfig, nil),
		Cookies:    cookies,
		Locator:    locator,
		ForceRelay: cfg.Router.ForceRelay,
		Debounce:   cfg.Router.Debounce.Duration,
		Notify:     c.logDecision,
	})
	return
}

func (c *Components) logDecision(decision router.Decision, err error) {
	if err != nil {
		Log.Warnf("Revalidation failed: %v", err)
		return
	}
	if decision.Navigate {
		Log.Infof("Active device moved to %v (%v)", decision.Origin, router.PathName(decision.Path))
	}
}

// API creates the HTTP API of the components.
func (c *Components) API() *api.Server {
	return api.New(api.Deps{
		Scanner:  c.Scanner,
		Registry: c.Registry,
		Router:   c.Router,
		Prober:   c.Prober,
	})
}

// Scan runs one scan to completion.
func (c *Components) Scan(ctx context.Context, timeout time.Duration) (scanner.State, error) {
	if !c.Scanner.Start() {
		return scanner.State{}, fmt.Errorf("a scan is already running")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Scanner.Wait(ctx); err != nil {
		return c.Scanner.Snapshot(), err
	}
	if err := c.Scanner.Err(); err != nil {
		return c.Scanner.Snapshot(), err
	}
	return c.Scanner.Snapshot(), nil
}

func (c *Components) Close() error {
	return c.Registry.Close()
}
