package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"relay-hub/models"

	"go.uber.org/zap"
)

// ExternalChannel is the messaging gateway as seen by the relay.
type ExternalChannel interface {
	IsOpen() bool
	Send(ctx context.Context, chatID, text string) error
}

// Replies sent through the external channel.
const (
	ReplyLinked       = "✅ Linked! Your tasks and chats are now synced with your wallet."
	ReplyLinkRejected = "❌ That code is invalid or has expired. Generate a new one in the app and send /link <code>."
	ReplyLinkFirst    = "🔗 Please link your wallet first: generate a code in the app and send /link <code>."
	ReplyTodoUsage    = "Usage: /todo <task text>"
	ReplyStart        = "👋 Hi! Open the app, connect your wallet, generate a link code and send /link <code> here."

	loginFailedMessage   = "Signature verification failed"
	storageFailedMessage = "Request failed, please try again"
)

const (
	cmdLink  = "/link"
	cmdTodo  = "/todo"
	cmdStart = "/start"
)

// RelayConfig holds the relay's collaborators.
type RelayConfig struct {
	Verifier    SignatureVerifier
	Codes       *LinkCodeRegistry
	Users       *UserDirectory
	Sessions    *SessionRegistry
	Persona     Persona
	Gateway     ExternalChannel
	Admins      AdminPolicy
	PersonaName string
	Logger      *zap.Logger
}

// RelayController runs the UI protocol state machine and interprets
// inbound gateway messages.
type RelayController struct {
	verifier    SignatureVerifier
	codes       *LinkCodeRegistry
	users       *UserDirectory
	sessions    *SessionRegistry
	persona     Persona
	gateway     ExternalChannel
	admins      AdminPolicy
	personaName string
	log         *zap.Logger
}

func NewRelayController(cfg RelayConfig) *RelayController {
	if cfg.Verifier == nil {
		cfg.Verifier = Ed25519Verifier{}
	}
	if cfg.Admins == nil {
		cfg.Admins = WalletAllowlist{}
	}
	if cfg.PersonaName == "" {
		cfg.PersonaName = "Relay"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &RelayController{
		verifier:    cfg.Verifier,
		codes:       cfg.Codes,
		users:       cfg.Users,
		sessions:    cfg.Sessions,
		persona:     cfg.Persona,
		gateway:     cfg.Gateway,
		admins:      cfg.Admins,
		personaName: cfg.PersonaName,
		log:         cfg.Logger,
	}
	if r.users != nil {
		r.users.OnTasksChanged(r.publishTasks)
	}
	return r
}

// Open registers a new UI connection.
func (r *RelayController) Open(conn Conn) *Session {
	s := r.sessions.Register(conn)
	r.log.Debug("[RELAY] session opened", zap.String("session", s.ID))
	return s
}

// Close tears down a UI connection.
func (r *RelayController) Close(s *Session) {
	r.sessions.Unregister(s)
	r.log.Debug("[RELAY] session closed", zap.String("session", s.ID), zap.String("wallet", s.Wallet()))
}

// HandleUIMessage processes one inbound UI frame. Malformed frames, unknown
// kinds and any non-login frame on an unauthenticated session are dropped.
func (r *RelayController) HandleUIMessage(ctx context.Context, s *Session, raw []byte) {
	var msg models.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.log.Debug("[RELAY] dropping malformed frame", zap.String("session", s.ID), zap.Error(err))
		return
	}

	if msg.Type == models.MsgLogin {
		r.handleLogin(ctx, s, msg)
		return
	}

	wallet := s.Wallet()
	if wallet == "" {
		r.log.Debug("[RELAY] ignoring frame before login", zap.String("session", s.ID), zap.String("type", msg.Type))
		return
	}

	var err error
	switch msg.Type {
	case models.MsgGenerateLinkCode:
		err = r.handleGenerateLinkCode(s, wallet)
	case models.MsgAddTodo:
		err = r.handleAddTodo(ctx, wallet, msg.Text)
	case models.MsgToggleTodo:
		err = r.handleToggleTodo(ctx, wallet, msg.ID)
	case models.MsgGetTodos:
		err = r.handleGetTodos(ctx, s, wallet)
	case models.MsgSendChat:
		err = r.handleSendChat(ctx, s, wallet, msg.Text)
	case models.MsgGetStats:
		r.handleGetStats(s, wallet)
	default:
		r.log.Debug("[RELAY] dropping unknown frame type", zap.String("type", msg.Type))
	}

	if err != nil {
		r.reportError(s, msg.Type, err)
	}
}

func (r *RelayController) handleLogin(ctx context.Context, s *Session, msg models.ClientMessage) {
	if !r.verifier.Verify(msg.PublicKey, msg.Signature, msg.Message) {
		r.log.Info("[RELAY] login rejected", zap.String("session", s.ID), zap.String("public_key", msg.PublicKey))
		s.SendJSON(models.LoginFail{Type: models.MsgLoginFail, Message: loginFailedMessage})
		return
	}

	wallet := msg.PublicKey
	r.sessions.Bind(s, wallet)

	user, err := r.users.CreateIfAbsent(ctx, wallet)
	if err != nil {
		r.reportError(s, msg.Type, err)
		return
	}
	todos := user.Tasks
	if todos == nil {
		todos = []models.Task{}
	}

	r.log.Info("[RELAY] login ok", zap.String("session", s.ID), zap.String("wallet", wallet))
	s.SendJSON(models.LoginSuccess{Type: models.MsgLoginSuccess, Username: wallet, Todos: todos})
}

func (r *RelayController) handleGenerateLinkCode(s *Session, wallet string) error {
	code, err := r.codes.Issue(wallet)
	if err != nil {
		return err
	}
	s.SendJSON(models.LinkCodeReply{Type: models.MsgLinkCode, Code: code})
	return nil
}

func (r *RelayController) handleAddTodo(ctx context.Context, wallet, text string) error {
	_, err := r.users.AppendTask(ctx, wallet, text)
	if errors.Is(err, ErrEmptyTask) {
		return nil
	}
	return err
}

func (r *RelayController) handleToggleTodo(ctx context.Context, wallet string, id int64) error {
	_, err := r.users.ToggleTask(ctx, wallet, id)
	return err
}

func (r *RelayController) handleGetTodos(ctx context.Context, s *Session, wallet string) error {
	tasks, err := r.users.ListTasks(ctx, wallet)
	if err != nil {
		return err
	}
	s.SendJSON(models.NewStateUpdate(tasks))
	return nil
}

// handleSendChat forwards the user's text to the linked chat, asks the
// persona, then answers the requester and mirrors the answer to the chat.
func (r *RelayController) handleSendChat(ctx context.Context, s *Session, wallet, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	user, err := r.users.FindByWallet(ctx, wallet)
	if err != nil {
		return err
	}
	externalID := ""
	if user.Linked() {
		externalID = *user.ExternalID
	}

	if externalID != "" {
		r.sendExternal(ctx, externalID, text)
	}

	reply := r.persona.GenerateReply(ctx, text, wallet)

	s.SendJSON(models.ChatIncoming{
		Type:   models.MsgChatIncoming,
		Text:   reply,
		From:   models.OriginWeb,
		Sender: r.personaName,
	})
	if externalID != "" {
		r.sendExternal(ctx, externalID, reply)
	}
	return nil
}

func (r *RelayController) handleGetStats(s *Session, wallet string) {
	if !r.admins.IsAdmin(wallet) {
		r.log.Debug("[RELAY] stats denied", zap.String("wallet", wallet))
		return
	}
	s.SendJSON(models.Stats{
		Type:         models.MsgStats,
		Sessions:     r.sessions.Count(),
		Wallets:      r.sessions.WalletCount(),
		PendingCodes: r.codes.Pending(),
		GatewayOpen:  r.gateway != nil && r.gateway.IsOpen(),
	})
}

// HandleGatewayPayload decodes a raw gateway frame and handles it.
func (r *RelayController) HandleGatewayPayload(ctx context.Context, raw []byte) {
	msg, ok := models.ParseExternalMessage(raw)
	if !ok {
		r.log.Debug("[RELAY] dropping gateway frame without id or text")
		return
	}
	r.HandleExternal(ctx, msg)
}

// HandleExternal interprets one message from the external chat. /link is
// checked first; the remaining commands depend on whether the sender is linked.
func (r *RelayController) HandleExternal(ctx context.Context, msg models.ExternalMessage) {
	command, arg := splitCommand(msg.Text)

	if command == cmdLink {
		r.handleLink(ctx, msg.ChatID, arg)
		return
	}
	if command == cmdStart {
		r.sendExternal(ctx, msg.ChatID, ReplyStart)
		return
	}

	user, err := r.users.FindByExternalID(ctx, msg.ChatID)
	if err != nil {
		r.log.Error("[RELAY] resolve external sender", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return
	}
	wallet := ""
	if user != nil {
		wallet = user.WalletAddress
	}

	if command == cmdTodo {
		r.handleExternalTodo(ctx, msg.ChatID, wallet, arg)
		return
	}
	r.handleExternalChat(ctx, msg.ChatID, wallet, msg.Text)
}

func (r *RelayController) handleLink(ctx context.Context, chatID, code string) {
	owner, err := r.codes.Redeem(code)
	if err != nil {
		r.log.Info("[RELAY] link rejected", zap.String("chat_id", chatID))
		r.sendExternal(ctx, chatID, ReplyLinkRejected)
		return
	}
	if err := r.users.LinkExternalID(ctx, owner, chatID); err != nil {
		r.log.Error("[RELAY] link write failed", zap.String("wallet", owner), zap.String("chat_id", chatID), zap.Error(err))
		r.sendExternal(ctx, chatID, storageFailedMessage)
		return
	}
	r.sendExternal(ctx, chatID, ReplyLinked)
}

func (r *RelayController) handleExternalTodo(ctx context.Context, chatID, wallet, text string) {
	if wallet == "" {
		r.sendExternal(ctx, chatID, ReplyLinkFirst)
		return
	}
	task, err := r.users.AppendTask(ctx, wallet, text)
	if errors.Is(err, ErrEmptyTask) {
		r.sendExternal(ctx, chatID, ReplyTodoUsage)
		return
	}
	if err != nil {
		r.log.Error("[RELAY] external todo failed", zap.String("wallet", wallet), zap.Error(err))
		r.sendExternal(ctx, chatID, storageFailedMessage)
		return
	}

	prompt := fmt.Sprintf("I just added a task to my list: %q. Acknowledge it briefly.", task.Text)
	r.sendExternal(ctx, chatID, r.persona.GenerateReply(ctx, prompt, wallet))
}

func (r *RelayController) handleExternalChat(ctx context.Context, chatID, wallet, text string) {
	displayName := chatID
	if wallet != "" {
		displayName = wallet
		r.sessions.BroadcastToWallet(wallet, models.ChatIncoming{
			Type:   models.MsgChatIncoming,
			Text:   text,
			From:   models.OriginTelegram,
			Sender: "user",
		})
	}

	reply := r.persona.GenerateReply(ctx, text, displayName)
	r.sendExternal(ctx, chatID, reply)

	if wallet != "" {
		r.sessions.BroadcastToWallet(wallet, models.ChatIncoming{
			Type:   models.MsgChatIncoming,
			Text:   reply,
			From:   models.OriginTelegram,
			Sender: r.personaName,
		})
	}
}

// publishTasks runs under the directory's wallet lock, so STATE_UPDATE
// frames for one wallet are queued in commit order.
func (r *RelayController) publishTasks(wallet string, tasks []models.Task) {
	r.sessions.BroadcastToWallet(wallet, models.NewStateUpdate(tasks))
}

// sendExternal is best effort: a closed gateway drops the message.
func (r *RelayController) sendExternal(ctx context.Context, chatID, text string) {
	if r.gateway == nil || !r.gateway.IsOpen() {
		r.log.Debug("[RELAY] gateway closed, dropping outbound message", zap.String("chat_id", chatID))
		return
	}
	if err := r.gateway.Send(ctx, chatID, text); err != nil {
		r.log.Warn("[RELAY] gateway send failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (r *RelayController) reportError(s *Session, kind string, err error) {
	r.log.Error("[RELAY] request failed",
		zap.String("session", s.ID),
		zap.String("type", kind),
		zap.Bool("storage", IsStorageError(err)),
		zap.Error(err))
	s.SendJSON(models.ErrorReply{Type: models.MsgError, Message: storageFailedMessage})
}

// splitCommand returns the lower-cased leading /command and its argument.
// Plain text yields an empty command.
func splitCommand(text string) (command, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, arg = text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		command, arg = text[:i], text[i:]
	}
	// Telegram appends @botname in group chats.
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(arg)
}
