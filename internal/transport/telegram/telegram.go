// Package telegram adapts the Telegram Bot API (via telebot) to the
// transport capabilities used by the scheduling core.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"sendlater/internal/eventbus"
	logx "sendlater/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter implements transport.Delivery and transport.ChannelStatus on top
// of a long-polling telebot instance.
type Adapter struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	bot   *tele.Bot
	ready atomic.Bool

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log, bus: bus}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, _ tele.Context) {
			a.log.Warn("telegram poll error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	a.bot = b
	return a, nil
}

// Start begins long polling. It returns immediately; polling runs until
// Stop() or ctx cancellation.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.done = make(chan struct{})

	go func() {
		<-ctx.Done()
		a.Stop()
	}()

	go func() {
		defer close(a.done)
		a.ready.Store(true)
		a.publish(eventbus.TypeReady, eventbus.Ready{Ready: true})
		a.log.Info("telegram connected",
			logx.String("bot", a.bot.Me.Username), logx.Int64("bot_id", a.bot.Me.ID))
		a.bot.Start()
		a.ready.Store(false)
		a.publish(eventbus.TypeDisconnected, eventbus.Disconnected{Reason: "poller stopped"})
	}()
	return nil
}

// Stop halts long polling. Safe to call more than once.
func (a *Adapter) Stop() {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	done := a.done
	a.runMu.Unlock()

	a.bot.Stop()
	if done != nil {
		// Bounded wait; telebot's Stop is expected to be fast.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			a.log.Warn("telegram stop timed out")
		}
	}
}

// Ready reports whether the bot is connected and polling.
func (a *Adapter) Ready() bool { return a.ready.Load() }

// SendFile delivers a payload file to a chat. Images go as photos, anything
// else as a document.
func (a *Adapter) SendFile(ctx context.Context, destination, path, caption string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return fmt.Errorf("bad destination %q: %w", destination, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	to := tele.ChatID(chatID)
	var what any
	if isImage(path) {
		what = &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	} else {
		what = &tele.Document{
			File:     tele.FromDisk(path),
			FileName: filepath.Base(path),
			Caption:  caption,
		}
	}

	if _, err := a.bot.Send(to, what); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (a *Adapter) publish(typ string, data any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func isImage(path string) bool {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return strings.HasPrefix(mt, "image/")
}
