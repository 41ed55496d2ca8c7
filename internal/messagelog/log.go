package messagelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holodash/comlink/internal/stats"
	"github.com/holodash/comlink/internal/store"
	"github.com/holodash/comlink/internal/types"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Log owns per-conversation durable message history and the denormalized
// conversation metadata. Appends to a conversation are serialized through a
// per-conversation lock so the metadata read-modify-write cannot lose
// updates within a process; the history list itself uses the store's atomic
// append primitive.
type Log struct {
	log   *log.Logger
	store store.RecordStore
	stats stats.StatsProvider

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLog(logger *log.Logger, rs store.RecordStore, sp stats.StatsProvider) *Log {
	sp.RegisterMetric(stats.MessagesPersisted)
	sp.RegisterMetric(stats.DroppedRecords)

	return &Log{
		log:   logger,
		store: rs,
		stats: sp,
		locks: make(map[string]*sync.Mutex),
	}
}

// NewMessage constructs a message with a fresh time-derived id and the
// current timestamp.
func NewMessage(conversationId, author, content string) types.Message {
	return types.Message{
		Id:             ulid.Make().String(),
		ConversationId: conversationId,
		Author:         author,
		Content:        content,
		Timestamp:      time.Now().UTC().Round(time.Millisecond),
	}
}

// Append persists msg to the conversation's history and refreshes the
// metadata record: last message snippet, plus one unread for every
// participant other than the author.
func (l *Log) Append(ctx context.Context, conversationId string, msg types.Message) error {
	lock := l.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	meta, err := l.getMeta(ctx, conversationId)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %q: %w", msg.Id, err)
	}
	if err := l.store.Append(ctx, store.MessagesKey(conversationId), raw); err != nil {
		return err
	}

	meta.LastMessage = msg.Content
	for _, p := range meta.Participants {
		if p != msg.Author {
			meta.Unread[p]++
		}
	}

	if err := l.setMeta(ctx, meta); err != nil {
		return err
	}

	l.stats.Incr(stats.MessagesPersisted)
	return nil
}

// Messages returns the conversation's full history in stored order.
// Elements that fail to decode are dropped and counted, never surfaced as a
// hard failure.
func (l *Log) Messages(ctx context.Context, conversationId string) ([]types.Message, error) {
	elements, err := l.store.GetList(ctx, store.MessagesKey(conversationId))
	if err != nil {
		return nil, fmt.Errorf("get messages for %q: %w", conversationId, err)
	}

	messages := make([]types.Message, 0, len(elements))
	for _, raw := range elements {
		var msg types.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			l.log.Printf("dropping malformed message in %q: %v", conversationId, err)
			l.stats.Incr(stats.DroppedRecords)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// MarkRead zeroes username's unread counter for the conversation.
func (l *Log) MarkRead(ctx context.Context, conversationId, username string) error {
	lock := l.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	meta, err := l.getMeta(ctx, conversationId)
	if err != nil {
		return err
	}

	if meta.Unread[username] == 0 {
		return nil
	}
	meta.Unread[username] = 0

	return l.setMeta(ctx, meta)
}

func (l *Log) conversationLock(conversationId string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[conversationId]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[conversationId] = lock
	}
	return lock
}

func (l *Log) getMeta(ctx context.Context, conversationId string) (*store.ConversationMeta, error) {
	raw, err := l.store.Get(ctx, store.ConversationKey(conversationId))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %q: %w", conversationId, err)
	}

	var meta store.ConversationMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse conversation %q: %w", conversationId, err)
	}
	if meta.Unread == nil {
		meta.Unread = make(map[string]int)
	}

	return &meta, nil
}

func (l *Log) setMeta(ctx context.Context, meta *store.ConversationMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal conversation %q: %w", meta.Id, err)
	}
	return l.store.Set(ctx, store.ConversationKey(meta.Id), raw)
}
