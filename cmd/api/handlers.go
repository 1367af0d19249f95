package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/samber/lo"

	"github.com/PaulBabatuyi/realtime-chat/internal/auth"
	"github.com/PaulBabatuyi/realtime-chat/internal/data"
	"github.com/PaulBabatuyi/realtime-chat/internal/middleware"
	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
	"github.com/PaulBabatuyi/realtime-chat/internal/realtime"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type startChatRequest struct {
	Recipient string `json:"recipient" validate:"required"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type searchResult struct {
	Username string `json:"username"`
}

// decode reads a JSON body into dst and validates it. Any failure is an
// ErrInvalidInput carrying msg.
func decode(w http.ResponseWriter, r *http.Request, dst any, msg string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return newAPIError(data.ErrInvalidInput, msg)
	}
	if err := validate.Struct(dst); err != nil {
		return newAPIError(data.ErrInvalidInput, msg)
	}
	return nil
}

// currentUser is the identity the auth middleware attached to the request.
func currentUser(r *http.Request) (string, error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.Username == "" {
		return "", errUnauthorized
	}
	return claims.Username, nil
}

// handleRegister hashes the password and stores the user.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req, "Username and password are required."); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Username = normalize.Username(req.Username)
	if req.Username == "" {
		s.writeError(w, r, newAPIError(data.ErrInvalidInput, "Username and password are required."))
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	if _, err := s.users.CreateUser(ctx, req.Username, hashed); err != nil {
		s.writeError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().Str("username", req.Username).Msg("user registered")
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully. You can now log in.",
	})
}

// handleLogin checks credentials and issues a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req, "Username and password are required."); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	invalid := newAPIError(data.ErrInvalidInput, "Invalid username or password.")

	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if errors.Is(err, data.ErrNotFound) {
		s.writeError(w, r, invalid)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		s.writeError(w, r, invalid)
		return
	}

	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("generate token: %w", err))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "Login successful!",
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// handleActiveChats lists the caller's chats, most recently active first.
func (s *Server) handleActiveChats(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	chats, err := s.chats.ListActiveChatsFor(ctx, me)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, chats)
}

// handleSearchUsers finds other users by case-insensitive substring.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	users, err := s.users.SearchUsers(ctx, r.URL.Query().Get("query"), me)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, lo.Map(users, func(u *data.User, _ int) searchResult {
		return searchResult{Username: u.Username}
	}))
}

// handleStartChat opens the caller's chat with recipient, or returns the existing one.
func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req startChatRequest
	if err := decode(w, r, &req, "Recipient username is required."); err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient := normalize.Username(req.Recipient)
	if recipient == "" {
		s.writeError(w, r, newAPIError(data.ErrInvalidInput, "Recipient username is required."))
		return
	}
	if recipient == me {
		s.writeError(w, r, newAPIError(data.ErrInvalidInput, "You cannot start a chat with yourself."))
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	exists, err := s.users.UserExists(ctx, recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !exists {
		s.writeError(w, r, newAPIError(data.ErrNotFound, "User not found."))
		return
	}

	chat, created, err := s.chats.FindOrCreateChat(ctx, me, recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	chatID := chat.ID.Hex()

	if !created {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Chat already exists.", "chatId": chatID})
		return
	}

	s.events.PublishTo(chat.Participants, realtime.Event{
		Type:   realtime.TypeChatStarted,
		ChatID: chatID,
		Sender: me,
		Chat:   chat.Summary(),
	})
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"message": "Chat started successfully.", "chatId": chatID})
}

// handleListMessages returns the chat history to a participant.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	chatID := mux.Vars(r)["chatId"]
	if _, err := s.memberChat(ctx, chatID, me); err != nil {
		s.writeError(w, r, err)
		return
	}

	messages, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		s.writeError(w, r, chatErr(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messages)
}

// handleSendMessage stores a message and pushes it to the chat's participants.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req sendMessageRequest
	if err := decode(w, r, &req, "Message text is required."); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	chatID := mux.Vars(r)["chatId"]
	if _, err := s.memberChat(ctx, chatID, me); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.chats.AppendMessage(ctx, chatID, me, req.Text)
	if errors.Is(err, data.ErrInvalidInput) {
		s.writeError(w, r, newAPIError(data.ErrInvalidInput, "Message text is required."))
		return
	}
	if err != nil {
		s.writeError(w, r, chatErr(err))
		return
	}

	ev := realtime.Event{
		Type:      realtime.TypeMessage,
		ChatID:    chatID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		MessageID: msg.ID.Hex(),
		Message:   msg,
	}
	if _, err := s.events.Publish(ctx, chatID, ev); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("chat_id", chatID).Msg("publish message")
	}
	middleware.WriteJSON(w, http.StatusCreated, msg)
}

// handleLeave removes the caller from the chat, deleting it when nobody remains.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	chatID := mux.Vars(r)["chatId"]
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		s.writeError(w, r, chatErr(err))
		return
	}
	// former participants may repeat the call; strangers may not
	if !chat.HasEverParticipated(me) {
		s.writeError(w, r, newAPIError(errForbidden, "You are not a participant of this chat."))
		return
	}

	res, err := s.chats.Leave(ctx, chatID, me)
	if err != nil {
		s.writeError(w, r, chatErr(err))
		return
	}

	if res.Changed {
		s.notifyLeave(chatID, me, res)
		hlog.FromRequest(r).Info().Str("chat_id", chatID).Bool("deleted", res.Deleted).Msg("participant left")
	}

	if res.Deleted {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"message": "Chat deleted as no participants remain.", "deleted": true})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"message": "You have left the chat.", "deleted": false})
}

func (s *Server) notifyLeave(chatID, leaver string, res *data.LeaveResult) {
	if res.Deleted {
		s.events.PublishTo([]string{leaver}, realtime.Event{Type: realtime.TypeChatDeleted, ChatID: chatID, User: leaver})
		return
	}

	// the leaver is no longer a participant but still needs the update
	targets := append([]string{leaver}, res.Chat.Participants...)
	if note := res.SystemMessage; note != nil {
		s.events.PublishTo(targets, realtime.Event{
			Type:      realtime.TypeMessage,
			ChatID:    chatID,
			Sender:    note.Sender,
			Text:      note.Text,
			MessageID: note.ID.Hex(),
			Message:   note,
		})
	}
	s.events.PublishTo(targets, realtime.Event{
		Type:   realtime.TypeParticipantLeft,
		ChatID: chatID,
		User:   leaver,
		Chat:   res.Chat.Summary(),
	})
}

// handleMarkRead records that the caller has read every message in the chat.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	chatID := mux.Vars(r)["chatId"]
	if _, err := s.memberChat(ctx, chatID, me); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.chats.MarkRead(ctx, chatID, me)
	if err != nil {
		s.writeError(w, r, chatErr(err))
		return
	}

	if updated > 0 {
		ev := realtime.Event{Type: realtime.TypeRead, ChatID: chatID, Reader: me, Count: updated}
		if _, err := s.events.Publish(ctx, chatID, ev); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("chat_id", chatID).Msg("publish read receipt")
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

// memberChat loads the chat and requires user to be an active participant.
func (s *Server) memberChat(ctx context.Context, chatID, user string) (*data.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, chatErr(err)
	}
	if !chat.HasParticipant(user) {
		return nil, newAPIError(errForbidden, "You are not a participant of this chat.")
	}
	return chat, nil
}

// chatErr gives a missing chat its client message.
func chatErr(err error) error {
	if errors.Is(err, data.ErrNotFound) {
		return newAPIError(data.ErrNotFound, "Chat not found.")
	}
	return err
}
