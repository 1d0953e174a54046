// Package telegram runs invoice sessions inside Telegram chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"invoice_nft_receipt/extractor"
	"invoice_nft_receipt/render"
)

const helpText = `Send me a description of the work you did, for example:
"I built a website for Acme for $5000 in 40 hours".

Say "you calculate yourself" if you want me to estimate missing details.
Commands: /cancel drops the current invoice, /retry repeats a failed request.`

const (
	chatQueueSize  = 16
	chatWorkerIdle = 10 * time.Minute
)

// Bot keeps one session per chat. Each chat gets its own worker so a slow
// model round in one chat does not hold up the others; messages within a
// chat are handled in order.
type Bot struct {
	api        *tgbotapi.BotAPI
	newSession extractor.SessionFactory
	logger     *zap.Logger
	send       func(chatID int64, text string)

	mu       sync.Mutex
	sessions map[int64]*extractor.Session
	queues   map[int64]chan string
	wg       sync.WaitGroup
}

// New returns a bot. api may be nil when only HandleText is used.
func New(api *tgbotapi.BotAPI, factory extractor.SessionFactory, logger *zap.Logger) (*Bot, error) {
	if factory == nil {
		return nil, errors.New("session factory required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		api:        api,
		newSession: factory,
		logger:     logger,
		sessions:   make(map[int64]*extractor.Session),
		queues:     make(map[int64]chan string),
	}
	b.send = b.reply
	return b, nil
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram api client required")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		b.wg.Wait()
	}()

	b.logger.Info("telegram bot started", zap.String("username", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bot stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil || upd.Message.Text == "" {
				continue
			}
			b.dispatch(ctx, upd.Message.Chat.ID, upd.Message.Text)
		}
	}
}

// dispatch queues text for the chat's worker, starting one if needed. A full
// queue drops the message rather than stalling every other chat.
func (b *Bot) dispatch(ctx context.Context, chatID int64, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[chatID]
	if !ok {
		q = make(chan string, chatQueueSize)
		b.queues[chatID] = q
		b.wg.Add(1)
		go b.work(ctx, chatID, q)
	}
	select {
	case q <- text:
	default:
		b.logger.Warn("chat queue full, dropping message", zap.Int64("chat", chatID))
	}
}

func (b *Bot) work(ctx context.Context, chatID int64, q chan string) {
	defer b.wg.Done()
	idle := time.NewTimer(chatWorkerIdle)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			delete(b.queues, chatID)
			b.mu.Unlock()
			return
		case text := <-q:
			b.send(chatID, b.HandleText(ctx, chatID, text))
			idle.Reset(chatWorkerIdle)
		case <-idle.C:
			b.mu.Lock()
			if len(q) == 0 {
				delete(b.queues, chatID)
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			idle.Reset(chatWorkerIdle)
		}
	}
}

// HandleText processes one message and returns the answer to send back.
func (b *Bot) HandleText(ctx context.Context, chatID int64, text string) string {
	text = strings.TrimSpace(text)
	var command string
	if fields := strings.Fields(text); len(fields) > 0 {
		command = strings.ToLower(fields[0])
	}
	switch command {
	case "/start", "/help":
		b.drop(chatID)
		return helpText
	case "/cancel":
		sess, ok := b.session(chatID)
		if !ok {
			return "Nothing to cancel."
		}
		snap, err := sess.Cancel()
		return b.answer(chatID, snap, err)
	case "/retry":
		sess, ok := b.session(chatID)
		if !ok {
			return "Nothing to retry."
		}
		snap, err := sess.Retry(ctx)
		return b.answer(chatID, snap, err)
	}

	if sess, ok := b.session(chatID); ok {
		if sess.State().State == extractor.StateAwaitingInput {
			snap, err := sess.Start(ctx, text)
			return b.answer(chatID, snap, err)
		}
		snap, err := sess.Reply(ctx, text)
		return b.answer(chatID, snap, err)
	}

	sess := b.newSession(fmt.Sprintf("tg-%d", chatID))
	b.mu.Lock()
	b.sessions[chatID] = sess
	b.mu.Unlock()
	snap, err := sess.Start(ctx, text)
	return b.answer(chatID, snap, err)
}

func (b *Bot) answer(chatID int64, snap extractor.Snapshot, err error) string {
	if err != nil {
		b.logger.Warn("session rejected message", zap.Int64("chat", chatID), zap.Error(err))
		if errors.Is(err, extractor.ErrUnexpectedEvent) {
			return "There is nothing to retry right now."
		}
		b.drop(chatID)
		return "That invoice is already closed. Send a new description to start over."
	}
	if snap.Closed {
		b.drop(chatID)
	}
	return render.Conversation(snap)
}

func (b *Bot) session(chatID int64) (*extractor.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[chatID]
	return s, ok
}

func (b *Bot) drop(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, chatID)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("telegram send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}
