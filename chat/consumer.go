package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DIGIT-HABs/back/domain"
)

const (
	// authWait is how long a fresh socket gets to send its auth frame.
	authWait = 10 * time.Second
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a socket may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the socket alive.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize   = 4096
	outboundBuffer = 16
)

// TokenVerifier authenticates the JWT carried by a socket's first frame,
// returning the user it belongs to.
type TokenVerifier interface {
	VerifyAccessToken(token string) (uuid.UUID, error)
}

// Consumer upgrades chat requests to WebSocket and speaks the conversation
// protocol. The connection is accepted first; the client must then send
// {"type": "auth", "token": "<JWT>"} before anything else, and only
// conversation participants get past the handshake.
type Consumer struct {
	hub      *Hub
	chats    domain.ChatRepository
	users    domain.UserRepository
	tokens   TokenVerifier
	upgrader websocket.Upgrader
	authWait time.Duration
}

// NewConsumer creates a consumer over the hub and repositories.
func NewConsumer(hub *Hub, chats domain.ChatRepository, users domain.UserRepository, tokens TokenVerifier) *Consumer {
	return &Consumer{
		hub:    hub,
		chats:  chats,
		users:  users,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens at the gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		authWait: authWait,
	}
}

// inboundFrame is any frame a client may send. Unused fields stay zero.
type inboundFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Access    string `json:"access"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
	IsTyping  bool   `json:"is_typing"`
}

// messageFrame is the broadcast form of a chat message.
type messageFrame struct {
	Type string          `json:"type"`
	Data *messagePayload `json:"data"`
}

type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	SenderEmail    string `json:"sender_email"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	Edited         bool   `json:"edited"`
	Deleted        bool   `json:"deleted"`
	IsOwn          bool   `json:"is_own"`
}

// Serve upgrades the request and runs the conversation protocol until the
// client disconnects. The caller resolves the conversation ID from the URL.
func (consumer *Consumer) Serve(writer http.ResponseWriter, request *http.Request, conversationID uuid.UUID) {
	socket, err := consumer.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		log.Printf("warning: upgrading chat socket: %v", err)
		return
	}

	socket.SetReadLimit(maxFrameSize)
	socket.SetReadDeadline(time.Now().Add(consumer.authWait))

	_, data, err := socket.ReadMessage()
	if err != nil {
		reject(socket, "")
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		reject(socket, "Invalid JSON")
		return
	}
	if frame.Type != "auth" {
		reject(socket, `Envoyez d'abord {"type": "auth", "token": "<JWT>"}.`)
		return
	}

	token := frame.Token
	if token == "" {
		token = frame.Access
	}
	if token == "" {
		reject(socket, "Token manquant dans le message auth.")
		return
	}

	userID, err := consumer.tokens.VerifyAccessToken(token)
	if err != nil {
		reject(socket, "Token invalide ou expiré.")
		return
	}
	user, err := consumer.users.GetUser(userID)
	if err != nil {
		reject(socket, "Token invalide ou expiré.")
		return
	}

	participant, err := consumer.chats.IsParticipant(conversationID, user.ID)
	if err != nil {
		log.Printf("warning: checking participant %s in conversation %s: %v", user.ID, conversationID, err)
	}
	if !participant {
		reject(socket, "Vous n'êtes pas participant de cette conversation.")
		return
	}

	session := &session{
		consumer:       consumer,
		socket:         socket,
		conversationID: conversationID,
		group:          ConversationGroup(conversationID),
		userID:         user.ID,
		userName:       user.FullName(),
		userEmail:      user.Email,
		outbound:       make(chan []byte, outboundBuffer),
		quit:           make(chan struct{}),
	}

	consumer.hub.Join(session.group, session)

	confirmation, _ := json.Marshal(map[string]string{
		"type":            "connection",
		"message":         "Connected to conversation",
		"conversation_id": conversationID.String(),
		"user_id":         user.ID.String(),
	})
	session.Deliver(confirmation)

	go session.writePump()
	session.readPump()
}

// reject answers a failed handshake with an error frame, when there is one to
// give, and a policy-violation close.
func reject(socket *websocket.Conn, message string) {
	deadline := time.Now().Add(writeWait)
	if message != "" {
		frame, _ := json.Marshal(map[string]string{"type": "error", "message": message})
		socket.SetWriteDeadline(deadline)
		socket.WriteMessage(websocket.TextMessage, frame)
	}
	socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
	socket.Close()
}

// session is one authenticated socket in a conversation. All writes to the
// socket go through outbound so a single goroutine owns the connection.
type session struct {
	consumer       *Consumer
	socket         *websocket.Conn
	conversationID uuid.UUID
	group          string
	userID         uuid.UUID
	userName       string
	userEmail      string
	outbound       chan []byte
	quit           chan struct{}
}

// Deliver queues a frame for the socket. A full buffer drops the frame;
// the ping cycle will reap the socket if the client is truly gone.
func (session *session) Deliver(payload []byte) {
	select {
	case session.outbound <- payload:
	default:
		log.Printf("warning: chat client %s lagging, dropping a frame", session.userID)
	}
}

func (session *session) readPump() {
	socket := session.socket
	defer func() {
		session.consumer.hub.Leave(session.group, session)
		close(session.quit)
		socket.Close()
	}()

	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("warning: chat socket for %s: %v", session.userID, err)
			}
			return
		}
		session.handleFrame(data)
	}
}

func (session *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		session.socket.Close()
	}()

	for {
		select {
		case payload := <-session.outbound:
			frame, keep := session.localize(payload)
			if !keep {
				continue
			}
			session.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			session.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-session.quit:
			session.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// localize adapts a group frame to this recipient: is_own is computed per
// socket, and a typer never gets their own indicator back.
func (session *session) localize(payload []byte) ([]byte, bool) {
	var frame struct {
		Type   string          `json:"type"`
		UserID string          `json:"user_id"`
		Data   *messagePayload `json:"data"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return payload, true
	}

	switch frame.Type {
	case "typing":
		if frame.UserID == session.userID.String() {
			return nil, false
		}
	case "message":
		if frame.Data != nil {
			frame.Data.IsOwn = frame.Data.SenderID == session.userID.String()
			if patched, err := json.Marshal(messageFrame{Type: "message", Data: frame.Data}); err == nil {
				return patched, true
			}
		}
	}
	return payload, true
}

func (session *session) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		session.sendError("Invalid JSON")
		return
	}

	switch frame.Type {
	case "message":
		session.handleMessage(frame)
	case "edit":
		session.handleEdit(frame)
	case "delete":
		session.handleDelete(frame)
	case "typing":
		session.handleTyping(frame)
	case "read":
		session.handleRead(frame)
	default:
		session.sendError("Unknown message type")
	}
}

func (session *session) handleMessage(frame inboundFrame) {
	if frame.Content == "" {
		session.sendError("Content is required")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		log.Printf("warning: creating message id: %v", err)
		session.sendError("Erreur traitement message")
		return
	}

	message := &domain.Message{
		ID:             id,
		ConversationID: session.conversationID,
		SenderID:       session.userID,
		Body:           frame.Content,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := session.consumer.chats.InsertMessage(message); err != nil {
		log.Printf("warning: saving chat message: %v", err)
		session.sendError("Erreur traitement message")
		return
	}

	session.broadcastMessage(message)
}

func (session *session) handleEdit(frame inboundFrame) {
	if frame.MessageID == "" || frame.Content == "" {
		session.sendError("message_id et content sont requis pour éditer un message.")
		return
	}

	message, ok := session.ownMessage(frame.MessageID)
	if !ok {
		return
	}

	if err := session.consumer.chats.UpdateMessageBody(message.ID, frame.Content); err != nil {
		log.Printf("warning: editing message %s: %v", message.ID, err)
		session.sendError("Erreur traitement message")
		return
	}

	message.Body = frame.Content
	message.Edited = true
	session.broadcastMessage(message)
}

func (session *session) handleDelete(frame inboundFrame) {
	if frame.MessageID == "" {
		session.sendError("message_id est requis pour supprimer un message.")
		return
	}

	message, ok := session.ownMessage(frame.MessageID)
	if !ok {
		return
	}

	if err := session.consumer.chats.SoftDeleteMessage(message.ID); err != nil {
		log.Printf("warning: deleting message %s: %v", message.ID, err)
		session.sendError("Erreur traitement message")
		return
	}

	message.Body = ""
	message.Deleted = true
	session.broadcastMessage(message)
}

// ownMessage loads a message when it belongs to this conversation and this
// sender. Anything else is silently ignored, matching how clients probe.
func (session *session) ownMessage(rawID string) (*domain.Message, bool) {
	messageID, err := uuid.Parse(rawID)
	if err != nil {
		session.sendError("message_id invalide.")
		return nil, false
	}

	message, err := session.consumer.chats.GetMessage(messageID)
	if err != nil {
		log.Printf("warning: loading message %s: %v", messageID, err)
		return nil, false
	}
	if message.ConversationID != session.conversationID || message.SenderID != session.userID {
		return nil, false
	}
	return message, true
}

func (session *session) handleTyping(frame inboundFrame) {
	payload, err := json.Marshal(map[string]any{
		"type":      "typing",
		"user_id":   session.userID.String(),
		"user_name": session.userName,
		"is_typing": frame.IsTyping,
	})
	if err != nil {
		return
	}
	session.consumer.hub.Publish(session.group, payload)
}

func (session *session) handleRead(frame inboundFrame) {
	if _, err := session.consumer.chats.MarkMessagesRead(session.conversationID, session.userID); err != nil {
		log.Printf("warning: marking conversation %s read: %v", session.conversationID, err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type":       "read",
		"message_id": frame.MessageID,
		"user_id":    session.userID.String(),
		"read_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	session.consumer.hub.Publish(session.group, payload)
}

func (session *session) broadcastMessage(message *domain.Message) {
	payload, err := json.Marshal(messageFrame{
		Type: "message",
		Data: &messagePayload{
			ID:             message.ID.String(),
			ConversationID: message.ConversationID.String(),
			SenderID:       message.SenderID.String(),
			SenderName:     session.userName,
			SenderEmail:    session.userEmail,
			Content:        message.Body,
			CreatedAt:      message.CreatedAt.UTC().Format(time.RFC3339),
			Edited:         message.Edited,
			Deleted:        message.Deleted,
		},
	})
	if err != nil {
		log.Printf("warning: serializing message %s: %v", message.ID, err)
		return
	}
	session.consumer.hub.Publish(session.group, payload)
}

func (session *session) sendError(message string) {
	frame, err := json.Marshal(map[string]string{"type": "error", "message": message})
	if err != nil {
		return
	}
	session.Deliver(frame)
}
