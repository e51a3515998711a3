// Package retention evicts old messages and inactive conversations on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/metrics"
	mirror "pulsechat/internal/infrastructure/mirror/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// Pass names, used in logs and metrics.
const (
	PassMessages      = "messages"
	PassConversations = "conversations"
	PassManual        = "manual"
)

// Store is the persistence surface retention needs.
type Store interface {
	repository.MessageStore
	repository.ConversationStore
}

// Config sets the retention windows and schedules.
type Config struct {
	MessageTTL       time.Duration
	InactivityTTL    time.Duration
	MessageCron      string
	ConversationCron string
	BatchSize        int
}

// DefaultConfig is hourly eviction of week-old messages and 6-hourly eviction
// of conversations idle for two days.
func DefaultConfig() Config {
	return Config{
		MessageTTL:       7 * 24 * time.Hour,
		InactivityTTL:    48 * time.Hour,
		MessageCron:      "0 * * * *",
		ConversationCron: "0 */6 * * *",
		BatchSize:        500,
	}
}

// Result reports what one run removed. Skipped is set when another run held the guard.
type Result struct {
	MessagesDeleted      int  `json:"messagesDeleted"`
	ConversationsDeleted int  `json:"conversationsDeleted"`
	Skipped              bool `json:"skipped"`
}

// Scheduler runs the two eviction passes. Each pass has its own in-progress
// guard so a run that fires while the previous one is still going is skipped,
// not queued. A manual run holds both guards.
type Scheduler struct {
	cfg     Config
	store   Store
	mirror  mirror.Mirror
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	messagesRunning      atomic.Bool
	conversationsRunning atomic.Bool

	wg sync.WaitGroup
}

// New builds a Scheduler. m and met may be nil.
func New(store Store, m mirror.Mirror, cfg Config, met *metrics.Metrics, log *zap.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = def.MessageTTL
	}
	if cfg.InactivityTTL <= 0 {
		cfg.InactivityTTL = def.InactivityTTL
	}
	if cfg.MessageCron == "" {
		cfg.MessageCron = def.MessageCron
	}
	if cfg.ConversationCron == "" {
		cfg.ConversationCron = def.ConversationCron
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		mirror:  m,
		metrics: met,
		log:     log.Named("retention"),
		now:     time.Now,
	}
}

// Start launches both schedule loops; they stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("retention_enabled",
		zap.String("message_cron", s.cfg.MessageCron),
		zap.String("conversation_cron", s.cfg.ConversationCron),
		zap.Duration("message_ttl", s.cfg.MessageTTL),
		zap.Duration("inactivity_ttl", s.cfg.InactivityTTL))

	s.wg.Add(2)
	go s.scheduleLoop(ctx, PassMessages, s.cfg.MessageCron, s.EvictMessages)
	go s.scheduleLoop(ctx, PassConversations, s.cfg.ConversationCron, s.EvictConversations)
}

// Wait blocks until the loops started by Start have returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// EvictMessages deletes every message older than the message window.
func (s *Scheduler) EvictMessages(ctx context.Context) (Result, error) {
	if !s.messagesRunning.CompareAndSwap(false, true) {
		return s.skipped(PassMessages), nil
	}
	defer s.messagesRunning.Store(false)

	n, err := s.evictMessages(ctx)
	res := Result{MessagesDeleted: n}
	s.finish(PassMessages, res, err)
	return res, err
}

// EvictConversations deletes every conversation idle past the inactivity
// window, its messages first.
func (s *Scheduler) EvictConversations(ctx context.Context) (Result, error) {
	if !s.conversationsRunning.CompareAndSwap(false, true) {
		return s.skipped(PassConversations), nil
	}
	defer s.conversationsRunning.Store(false)

	convs, msgs, err := s.evictConversations(ctx)
	res := Result{MessagesDeleted: msgs, ConversationsDeleted: convs}
	s.finish(PassConversations, res, err)
	return res, err
}

// RunManual runs both passes synchronously. It reports Skipped, and deletes
// nothing, when either scheduled pass is in flight.
func (s *Scheduler) RunManual(ctx context.Context) (Result, error) {
	if !s.messagesRunning.CompareAndSwap(false, true) {
		return s.skipped(PassManual), nil
	}
	defer s.messagesRunning.Store(false)
	if !s.conversationsRunning.CompareAndSwap(false, true) {
		return s.skipped(PassManual), nil
	}
	defer s.conversationsRunning.Store(false)

	var res Result
	msgs, errMsgs := s.evictMessages(ctx)
	convs, convMsgs, errConvs := s.evictConversations(ctx)
	res.MessagesDeleted = msgs + convMsgs
	res.ConversationsDeleted = convs

	err := errors.Join(errMsgs, errConvs)
	s.finish(PassManual, res, err)
	return res, err
}

func (s *Scheduler) skipped(pass string) Result {
	s.log.Info("retention_run_skipped", zap.String("pass", pass))
	s.metrics.RetentionRun(pass, "skipped")
	return Result{Skipped: true}
}

func (s *Scheduler) finish(pass string, res Result, err error) {
	s.metrics.RetentionEvicted("message", res.MessagesDeleted)
	s.metrics.RetentionEvicted("conversation", res.ConversationsDeleted)
	fields := []zap.Field{
		zap.String("pass", pass),
		zap.Int("messages_deleted", res.MessagesDeleted),
		zap.Int("conversations_deleted", res.ConversationsDeleted),
	}
	if err != nil {
		s.metrics.RetentionRun(pass, "error")
		s.log.Error("retention_run_error", append(fields, zap.Error(err))...)
		return
	}
	s.metrics.RetentionRun(pass, "ok")
	s.log.Info("retention_run_done", fields...)
}

func (s *Scheduler) evictMessages(ctx context.Context) (int, error) {
	threshold := s.now().Add(-s.cfg.MessageTTL)
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		page, err := s.store.ListOlderThan(ctx, threshold, s.cfg.BatchSize)
		if err != nil {
			return deleted, fmt.Errorf("list expired messages: %w", err)
		}
		if len(page) == 0 {
			return deleted, nil
		}
		s.log.Debug("retention_scan_messages", zap.Int("count", len(page)), zap.Time("threshold", threshold))

		n, err := s.store.DeleteMany(ctx, messageIDs(page))
		if err != nil {
			return deleted, fmt.Errorf("delete messages: %w", err)
		}
		deleted += n
		s.unmirror(ctx, page)
		// A page that deleted nothing would come back unchanged.
		if len(page) < s.cfg.BatchSize || n == 0 {
			return deleted, nil
		}
	}
}

func (s *Scheduler) evictConversations(ctx context.Context) (convs, msgs int, err error) {
	threshold := s.now().Add(-s.cfg.InactivityTTL)
	ids, err := s.store.ListInactiveSince(ctx, threshold)
	if err != nil {
		return 0, 0, fmt.Errorf("list inactive conversations: %w", err)
	}
	if len(ids) > 0 {
		s.log.Info("retention_scan_conversations", zap.Int("count", len(ids)), zap.Time("threshold", threshold))
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.purgeConversationMessages(ctx, id)
		msgs += n
		if err != nil {
			// The conversation row is still removed; leftovers age out through the message pass.
			s.log.Warn("retention_conversation_messages_failed", zap.String("conversation_id", id), zap.Error(err))
			errs = append(errs, err)
		}

		if s.mirror != nil {
			if err := s.mirror.DeleteConversationSubtree(ctx, id); err != nil {
				s.log.Warn("retention_mirror_failed", zap.String("conversation_id", id), zap.Error(err))
			}
		}

		switch err := s.store.DeleteConversation(ctx, id); {
		case err == nil:
			convs++
		case errors.Is(err, repository.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("delete conversation %s: %w", id, err))
		}
	}
	return convs, msgs, errors.Join(errs...)
}

func (s *Scheduler) purgeConversationMessages(ctx context.Context, conversationID string) (int, error) {
	deleted := 0
	for {
		page, err := s.store.ListMessages(ctx, conversationID, s.cfg.BatchSize, 0)
		if err != nil {
			return deleted, fmt.Errorf("list messages of %s: %w", conversationID, err)
		}
		if len(page) == 0 {
			return deleted, nil
		}
		n, err := s.store.DeleteMany(ctx, messageIDs(page))
		if err != nil {
			return deleted, fmt.Errorf("delete messages of %s: %w", conversationID, err)
		}
		deleted += n
		if n == 0 {
			return deleted, fmt.Errorf("delete messages of %s: no progress", conversationID)
		}
	}
}

func (s *Scheduler) unmirror(ctx context.Context, msgs []chat.Message) {
	if s.mirror == nil {
		return
	}
	for _, m := range msgs {
		if err := s.mirror.Remove(ctx, m.ConversationID, m.ID); err != nil {
			s.log.Warn("retention_mirror_failed",
				zap.String("conversation_id", m.ConversationID),
				zap.String("message_id", m.ID),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) scheduleLoop(ctx context.Context, pass, expr string, run func(context.Context) (Result, error)) {
	defer s.wg.Done()
	for {
		next, err := gronx.NextTickAfter(expr, s.now(), false)
		if err != nil {
			s.log.Error("retention_nexttick_failed", zap.String("pass", pass), zap.String("cron", expr), zap.Error(err))
			if !sleep(ctx, 30*time.Second) {
				return
			}
			continue
		}
		if !sleep(ctx, next.Sub(s.now())) {
			return
		}
		s.runScheduled(ctx, pass, run)
	}
}

// runScheduled keeps a failing or panicking pass from taking the loop down.
func (s *Scheduler) runScheduled(ctx context.Context, pass string, run func(context.Context) (Result, error)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("retention_run_panic", zap.String("pass", pass), zap.Any("panic", r))
		}
	}()
	s.log.Info("retention_run_start", zap.String("pass", pass))
	_, _ = run(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func messageIDs(msgs []chat.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
