package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// pollTimeout is the long-poll wait passed to getUpdates, in seconds.
const pollTimeout = 60

// ErrDispatcherStarted is returned by Start on a dispatcher that already ran.
var ErrDispatcherStarted = errors.New("dispatcher already started")

// Executor produces the reply for a command.
type Executor interface {
	Execute(ctx context.Context, req Request) string
}

// DispatcherConfig holds configuration for the update dispatcher.
type DispatcherConfig struct {
	Client   *Client
	Commands Executor

	// Workers bounds concurrently handled commands.
	// Default: 8
	Workers int

	// HandlerTimeout bounds one command, reply included.
	// Default: 2 minutes (admin snapshots can be slow)
	HandlerTimeout time.Duration

	Logger zerolog.Logger
}

// Dispatcher long-polls Telegram and routes commands to an Executor.
type Dispatcher struct {
	client   *Client
	commands Executor
	sem      chan struct{}
	timeout  time.Duration
	log      zerolog.Logger

	started  atomic.Bool
	alive    atomic.Bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	handlers sync.WaitGroup
}

// NewDispatcher creates a stopped dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Dispatcher{
		client:   cfg.Client,
		commands: cfg.Commands,
		sem:      make(chan struct{}, workers),
		timeout:  timeout,
		log:      cfg.Logger.With().Str("component", "dispatcher").Logger(),
		loopDone: make(chan struct{}),
	}
}

// Start begins polling in the background. It can be called once.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrDispatcherStarted
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.alive.Store(true)

	go d.loop(ctx)

	d.log.Info().Msg("dispatcher started")
	return nil
}

// Stop ends polling and waits for in-flight commands.
func (d *Dispatcher) Stop() {
	if !d.started.Load() {
		return
	}
	d.cancel()
	<-d.loopDone
	d.handlers.Wait()
	d.log.Info().Msg("dispatcher stopped")
}

// IsAlive reports whether the polling loop is running and has not crashed.
func (d *Dispatcher) IsAlive() bool {
	return d.alive.Load()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.loopDone)
	defer d.alive.Store(false)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("dispatcher loop crashed")
		}
	}()

	api := d.client.API()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	cfg.AllowedUpdates = []string{"message"}

	updates := api.GetUpdatesChan(cfg)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				d.log.Warn().Msg("update channel closed")
				return
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}

			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			d.handlers.Add(1)
			go func(msg *tgbotapi.Message) {
				defer d.handlers.Done()
				defer func() { <-d.sem }()
				d.handle(ctx, msg)
			}(msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg *tgbotapi.Message) {
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	log := d.log.With().
		Int64("chat_id", msg.Chat.ID).
		Int64("user_id", userID).
		Str("command", msg.Command()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("command handler panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	reply := d.commands.Execute(ctx, Request{
		UserID:  userID,
		Command: msg.Command(),
		Args:    msg.CommandArguments(),
	})

	if err := d.client.Reply(ctx, msg.Chat.ID, msg.MessageID, reply); err != nil {
		log.Error().Err(err).Msg("reply failed")
		return
	}

	log.Debug().Dur("duration", time.Since(start)).Msg("command handled")
}
