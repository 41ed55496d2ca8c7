package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/holodash/comlink/internal/directory"
	"github.com/holodash/comlink/internal/messagelog"
	"github.com/holodash/comlink/internal/stats"
)

const storeTimeout = 5 * time.Second

// ChatServer is the process-wide realtime hub: it owns every connected
// client and one room per active conversation. Exactly one instance is
// constructed at startup and injected into the API layer.
type ChatServer struct {
	log            *log.Logger
	directory      *directory.Directory
	messages       *messagelog.Log
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, dir *directory.Directory, msgLog *messagelog.Log, sp stats.StatsProvider) (*ChatServer, error) {
	sp.RegisterMetric(stats.ActiveConnections)
	sp.RegisterMetric(stats.ActiveRooms)

	return &ChatServer{
		log:            logger,
		directory:      dir,
		messages:       msgLog,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case id := <-cs.unloadRoomChan:
			cs.unloadRoom(id)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

// handleJoin routes a join to the conversation's room, loading the room on
// first use. The conversation's metadata is fetched once at load time; the
// room itself checks the joining identity against the participant pair.
func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.ConversationId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.conversationId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	meta, err := cs.directory.Meta(ctx, joinMsg.Join.ConversationId)
	cancel()
	if err != nil {
		if errors.Is(err, directory.ErrConversationNotFound) {
			joinMsg.client.queueMessage(ErrConversationNotFound(joinMsg.Id))
		} else {
			cs.log.Println("load conversation:", err)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	room := newRoom(cs, meta.Id, meta.Participants)
	cs.rooms[room.conversationId] = room
	cs.stats.Incr(stats.ActiveRooms)
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveConnections)
}

func (cs *ChatServer) unloadRoom(id string) {
	r, ok := cs.rooms[id]
	if !ok {
		return
	}

	cs.log.Printf("unloading room %q", id)
	delete(cs.rooms, id)
	close(r.exit)
	<-r.done
	cs.stats.Decr(stats.ActiveRooms)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
