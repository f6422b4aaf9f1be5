// Package app wires the sendlater components together and owns their
// start/stop order.
package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"sendlater/internal/blobstore"
	"sendlater/internal/config"
	"sendlater/internal/eventbus"
	"sendlater/internal/httpapi"
	"sendlater/internal/journal"
	"sendlater/internal/metrics"
	"sendlater/internal/registry"
	"sendlater/internal/services/scheduling"
	"sendlater/internal/services/sweeper"
	"sendlater/internal/transport/telegram"
	logx "sendlater/pkg/logx"
)

// portEnv overrides the port part of http.address.
const portEnv = "SENDLATER_PORT"

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	jour  journal.Store
	blobs blobstore.Store
	tg    *telegram.Adapter
	reg   *registry.Registry
	svc   *scheduling.Service
	sweep *sweeper.Service
	http  *httpapi.Server

	stopWatch context.CancelFunc
	wg        sync.WaitGroup
}

// busNotifier forwards log records from the logx notify sink onto the bus.
type busNotifier struct{ bus eventbus.Bus }

func (n busNotifier) Notify(level, msg string) {
	n.bus.Publish(eventbus.Event{
		Type: eventbus.TypeLog,
		Data: eventbus.LogNotice{Level: level, Message: msg},
	})
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	bus := eventbus.New()
	logSvc, log := logx.New(logCfg(cfg), busNotifier{bus: bus})
	mgr.SetLogger(log)

	m, err := metrics.New(metrics.Config{Enabled: true})
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	blobs, err := blobstore.NewDisk(cfg.Upload.Dir, cfg.Upload.MaxBytes, log)
	if err != nil {
		return nil, fmt.Errorf("open blobstore: %w", err)
	}

	jour, err := journal.Open(journal.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: cfg.Journal.BusyTimeout.Std(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	tg, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
	}, bus, log)
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Deps{
		Delivery: tg,
		Blobs:    blobs,
		Bus:      bus,
		Journal:  jour,
		Metrics:  m,
		Log:      log,
	})

	svc := scheduling.New(reg, blobs, tg, m, log)
	svc.Apply(cfg)

	sweep := sweeper.New(sweeper.Config{
		Enabled:   cfg.Sweep.Enabled,
		Every:     cfg.Sweep.Every.Std(),
		Retention: cfg.Sweep.Retention.Std(),
	}, blobs, reg.PayloadRefs, log)

	srv := httpapi.NewServer(svc, blobs, cfg.Upload.MaxBytes, log)

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		bus:    bus,
		jour:   jour,
		blobs:  blobs,
		tg:     tg,
		reg:    reg,
		svc:    svc,
		sweep:  sweep,
		http:   srv,
	}, nil
}

// Bus exposes the event bus for external subscribers.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	if err := a.tg.Start(ctx); err != nil {
		return err
	}

	if err := a.recoverJournal(ctx); err != nil {
		a.log.Warn("journal recovery incomplete", logx.Err(err))
	}

	if err := a.sweep.Start(ctx); err != nil {
		return err
	}

	addr, err := listenAddr(cfg.HTTP.Address)
	if err != nil {
		return err
	}
	if err := a.http.Start(ctx, addr); err != nil {
		return err
	}

	// Config hot reload: watch the file and re-apply dynamic sections.
	wctx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	sub := a.cfgMgr.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(wctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-wctx.Done():
				a.cfgMgr.Unsubscribe(sub)
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.logSvc.Apply(logCfg(next))
				a.svc.Apply(next)
			}
		}
	}()

	a.log.Info("sendlater started", logx.String("addr", a.http.Addr()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.http.Stop(ctx)
	a.sweep.Stop(ctx)
	a.reg.Close()
	a.tg.Stop()
	a.wg.Wait()
	if a.jour != nil {
		_ = a.jour.Close()
	}
	a.log.Info("sendlater stopped")
	_ = a.logSvc.Close()
	return nil
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    cfg.Logging.Notify.Enabled,
			MinLevel:   cfg.Logging.Notify.MinLevel,
			RatePerSec: cfg.Logging.Notify.RatePerSec,
		},
	}
}

// listenAddr applies the SENDLATER_PORT override to the configured address.
func listenAddr(cfgAddr string) (string, error) {
	port := strings.TrimSpace(os.Getenv(portEnv))
	if port == "" {
		return cfgAddr, nil
	}
	host, _, err := net.SplitHostPort(cfgAddr)
	if err != nil {
		return "", fmt.Errorf("http.address %q: %w", cfgAddr, err)
	}
	return net.JoinHostPort(host, port), nil
}
