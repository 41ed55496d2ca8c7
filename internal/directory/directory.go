package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/teris-io/shortid"

	"github.com/holodash/comlink/internal/stats"
	"github.com/holodash/comlink/internal/store"
	"github.com/holodash/comlink/internal/types"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAlreadyExists        = errors.New("conversation already exists")
	ErrSelfConversation     = errors.New("cannot open conversation with yourself")
)

// Directory owns conversation creation and enumeration and enforces the
// one-conversation-per-pair invariant.
type Directory struct {
	log   *log.Logger
	store store.RecordStore
	stats stats.StatsProvider
}

func NewDirectory(logger *log.Logger, rs store.RecordStore, sp stats.StatsProvider) *Directory {
	sp.RegisterMetric(stats.ConversationsCreated)
	sp.RegisterMetric(stats.DroppedRecords)

	return &Directory{
		log:   logger,
		store: rs,
		stats: sp,
	}
}

// List returns username's conversations in stored order. Membership entries
// that fail to parse, or whose metadata record is missing or malformed, are
// dropped and counted rather than failing the read.
func (d *Directory) List(ctx context.Context, username string) ([]types.Conversation, error) {
	elements, err := d.store.GetList(ctx, store.ConversationListKey(username))
	if err != nil {
		return nil, fmt.Errorf("list conversations for %q: %w", username, err)
	}

	conversations := make([]types.Conversation, 0, len(elements))
	for _, raw := range elements {
		var m store.Membership
		if err := json.Unmarshal(raw, &m); err != nil {
			d.log.Printf("dropping malformed membership entry for %q: %v", username, err)
			d.stats.Incr(stats.DroppedRecords)
			continue
		}

		meta, err := d.Meta(ctx, m.Id)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return nil, err
			}
			d.log.Printf("dropping conversation %q for %q: %v", m.Id, username, err)
			d.stats.Incr(stats.DroppedRecords)
			continue
		}

		conversations = append(conversations, types.Conversation{
			Id:          meta.Id,
			Name:        meta.Other(username),
			UnreadCount: meta.Unread[username],
			LastMessage: meta.LastMessage,
		})
	}

	return conversations, nil
}

// Create opens a conversation between requester and target. It fails if
// target is not a registered user or if either side's list already names
// the other; the check is bidirectional so a half-created pair can never be
// re-created from the other side.
func (d *Directory) Create(ctx context.Context, requester, target string) (types.Conversation, error) {
	if requester == target {
		return types.Conversation{}, ErrSelfConversation
	}

	if _, err := d.store.Get(ctx, store.UserKey(target)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Conversation{}, ErrUserNotFound
		}
		return types.Conversation{}, fmt.Errorf("lookup user %q: %w", target, err)
	}

	for _, pair := range [][2]string{{requester, target}, {target, requester}} {
		exists, err := d.hasConversationWith(ctx, pair[0], pair[1])
		if err != nil {
			return types.Conversation{}, err
		}
		if exists {
			return types.Conversation{}, ErrAlreadyExists
		}
	}

	id, err := shortid.Generate()
	if err != nil {
		return types.Conversation{}, fmt.Errorf("generate conversation id: %w", err)
	}

	meta := store.ConversationMeta{
		Id:           id,
		Participants: [2]string{requester, target},
		Unread:       map[string]int{requester: 0, target: 0},
		CreatedAt:    time.Now().UTC(),
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return types.Conversation{}, fmt.Errorf("marshal conversation %q: %w", id, err)
	}
	if err := d.store.Set(ctx, store.ConversationKey(id), rawMeta); err != nil {
		return types.Conversation{}, err
	}

	// The two mirrored appends are not atomic. A crash between them leaves
	// an asymmetric state which the bidirectional check above still detects.
	if err := d.appendMembership(ctx, requester, store.Membership{Id: id, With: target}); err != nil {
		return types.Conversation{}, err
	}
	if err := d.appendMembership(ctx, target, store.Membership{Id: id, With: requester}); err != nil {
		d.log.Printf("conversation %q half-created: mirrored record for %q missing: %v", id, target, err)
		return types.Conversation{}, err
	}

	d.stats.Incr(stats.ConversationsCreated)

	return types.Conversation{Id: id, Name: target, UnreadCount: 0}, nil
}

// Meta fetches a conversation's metadata record.
func (d *Directory) Meta(ctx context.Context, id string) (*store.ConversationMeta, error) {
	raw, err := d.store.Get(ctx, store.ConversationKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %q: %w", id, err)
	}

	var meta store.ConversationMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse conversation %q: %w", id, err)
	}
	if meta.Unread == nil {
		meta.Unread = make(map[string]int)
	}

	return &meta, nil
}

// IsParticipant reports whether username is one of the conversation's two
// participants.
func (d *Directory) IsParticipant(ctx context.Context, username, id string) (bool, error) {
	meta, err := d.Meta(ctx, id)
	if err != nil {
		return false, err
	}
	return meta.HasParticipant(username), nil
}

func (d *Directory) hasConversationWith(ctx context.Context, username, other string) (bool, error) {
	elements, err := d.store.GetList(ctx, store.ConversationListKey(username))
	if err != nil {
		return false, fmt.Errorf("list conversations for %q: %w", username, err)
	}

	for _, raw := range elements {
		var m store.Membership
		if err := json.Unmarshal(raw, &m); err != nil {
			d.log.Printf("skipping malformed membership entry for %q: %v", username, err)
			d.stats.Incr(stats.DroppedRecords)
			continue
		}
		if m.With == other {
			return true, nil
		}
	}

	return false, nil
}

func (d *Directory) appendMembership(ctx context.Context, username string, m store.Membership) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal membership for %q: %w", username, err)
	}
	return d.store.Append(ctx, store.ConversationListKey(username), raw)
}
