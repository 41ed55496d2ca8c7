package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/holodash/comlink/internal/messagelog"
	"github.com/holodash/comlink/internal/store"
)

const idleRoomTimeout = 30 * time.Second

// Room is the ephemeral fan-out group for one conversation. One goroutine
// per active room serializes joins, leaves and sends; the room unloads
// itself after sitting empty for idleRoomTimeout.
type Room struct {
	conversationId string
	participants   [2]string
	cs             *ChatServer
	joinChan       chan *ClientMessage
	leaveChan      chan *ClientMessage
	clientMsgChan  chan *ClientMessage
	clients        map[*Client]struct{}
	userMap        map[string]map[*Client]struct{}
	clientLock     sync.RWMutex
	log            *log.Logger
	// killTimer unloads the room when it has been empty for a while
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(cs *ChatServer, conversationId string, participants [2]string) *Room {
	return &Room{
		conversationId: conversationId,
		participants:   participants,
		cs:             cs,
		joinChan:       make(chan *ClientMessage, 256),
		leaveChan:      make(chan *ClientMessage, 256),
		clientMsgChan:  make(chan *ClientMessage, 256),
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[string]map[*Client]struct{}),
		log:            cs.log,
		exit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.conversationId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.saveAndBroadcast(msg)
			} else if msg.Read != nil {
				r.handleRead(msg)
			}
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

func (r *Room) isParticipant(username string) bool {
	return r.participants[0] == username || r.participants[1] == username
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if !r.isParticipant(c.user.Username) {
		r.log.Printf("rejecting join to %q from non-participant %q", r.conversationId, c.user.Username)
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueMessage(ErrNotParticipant(join.Id))
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, map[string]any{
		"conversation_id": r.conversationId,
	}))

	// notify the other members the user is present
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Presence: &Presence{
				Present:        true,
				Username:       c.user.Username,
				ConversationId: r.conversationId,
			},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	r.removeClient(client)

	if leaveMsg.Id != 0 {
		// the leave came from the user rather than connection cleanup
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	// notify remaining members once the user has no sessions left here
	if r.sessionsForUser(client.user.Username) == 0 {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present:        false,
					Username:       client.user.Username,
					ConversationId: r.conversationId,
				},
			},
			SkipClient: client,
		})
	}
}

// saveAndBroadcast persists the message, acknowledges the sender once the
// write lands, then fans out to every member. Durable before visible.
func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	m := messagelog.NewMessage(r.conversationId, msg.Username, msg.Publish.Content)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.cs.messages.Append(ctx, r.conversationId, m); err != nil {
		r.log.Println("error saving message:", err)
		if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		} else {
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: m.Timestamp,
		},
		Message: &m,
	})
}

func (r *Room) handleRead(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := r.cs.messages.MarkRead(ctx, r.conversationId, msg.Username); err != nil {
		r.log.Println("MarkRead:", err)
		if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		} else {
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.conversationId)
	select {
	case r.cs.unloadRoomChan <- r.conversationId:
	default:
		// try again on the next idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit() {
	r.log.Printf("room %q is exiting", r.conversationId)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.conversationId)
	}
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Username] == nil {
		r.userMap[c.user.Username] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Username][c] = struct{}{}

	c.addRoom(r)
}

// removeClient is idempotent: removing a client that is not a member is a
// no-op.
func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.conversationId)

	if userClients, ok := r.userMap[c.user.Username]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Username)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.conversationId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) sessionsForUser(username string) int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.userMap[username])
}

// broadcast delivers msg to every member best-effort, in arbitrary order.
func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
