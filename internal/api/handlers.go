package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/holodash/comlink/internal/directory"
	"github.com/holodash/comlink/internal/server"
	"github.com/holodash/comlink/internal/store"
	"github.com/holodash/comlink/internal/types"
)

type CreateConversationRequest struct {
	TargetUsername string `json:"target_username"`
}

func (s *ComlinkApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ComlinkApp) storeErrResp(err error) *ApiError {
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return NewServiceUnavailableError()
	}
	return NewInternalServerError(err)
}

func (s *ComlinkApp) listConversations(w http.ResponseWriter, r *http.Request) {
	username, ok := Username(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	conversations, err := s.directory.List(ctx, username)
	if err != nil {
		s.log.Println("list conversations:", err)
		errResp := s.storeErrResp(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conversations)
}

func (s *ComlinkApp) createConversation(w http.ResponseWriter, r *http.Request) {
	username, ok := Username(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.TargetUsername == "" {
		errResp := NewBadRequestError("target username is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	conversation, err := s.directory.Create(ctx, username, req.TargetUsername)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, directory.ErrSelfConversation):
			errResp = NewBadRequestError("cannot open conversation with yourself")
		case errors.Is(err, directory.ErrAlreadyExists):
			errResp = NewBadRequestError("conversation already exists")
		case errors.Is(err, directory.ErrUserNotFound):
			errResp = NewNotFoundError()
		default:
			s.log.Println("create conversation:", err)
			errResp = s.storeErrResp(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, conversation)
}

func (s *ComlinkApp) getMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := Username(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.URL.Query().Get("conversation_id")
	if conversationId == "" {
		errResp := NewBadRequestError("conversation_id is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	isParticipant, err := s.directory.IsParticipant(ctx, username, conversationId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, directory.ErrConversationNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("check participant:", err)
			errResp = s.storeErrResp(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !isParticipant {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.messages.Messages(ctx, conversationId)
	if err != nil {
		s.log.Println("get messages:", err)
		errResp := s.storeErrResp(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ComlinkApp) serveWs(w http.ResponseWriter, r *http.Request) {
	username, ok := Username(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{Username: username}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
