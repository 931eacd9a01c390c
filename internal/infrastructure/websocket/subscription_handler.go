package websocket

import (
	"context"
	"encoding/json"
	"time"

	"lotedd/pkg/logger"
)

// Client-to-server message types
const (
	MessageTypePing                   = "ping"
	MessageTypeSubscribeConversations = "subscribe_conversations"
	MessageTypeSubscribeConversation  = "subscribe_conversation"
	MessageTypeSubscribeMessages      = "subscribe_messages"
	MessageTypeUnsubscribe            = "unsubscribe"
)

// Server-to-client message types
const (
	MessageTypePong          = "pong"
	MessageTypeConversations = "conversations"
	MessageTypeConversation  = "conversation"
	MessageTypeMessages      = "messages"
	MessageTypeDenied        = "denied"
	MessageTypeError         = "error"
)

// WSMessage is the frame exchanged over the realtime socket. ID is the
// client-chosen subscription id echoed back on every related push.
type WSMessage struct {
	Type           string      `json:"type"`
	ID             string      `json:"id,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

func frame(messageType, subscriptionID string, data interface{}) []byte {
	payload, err := json.Marshal(WSMessage{
		Type:      messageType,
		ID:        subscriptionID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to marshal websocket frame: %v", err)
		return nil
	}
	return payload
}

func (m *Manager) sendFrame(client *Client, payload []byte) {
	if payload == nil {
		return
	}
	select {
	case client.Send <- payload:
	default:
		logger.Warn("Dropping websocket frame for slow client %s", client.UserID)
	}
}

// HandleClientMessage dispatches one inbound frame from a connection.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, payload []byte) {
	var message WSMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		logger.Warn("Invalid websocket frame from %s: %v", client.UserID, err)
		m.sendFrame(client, frame(MessageTypeError, "", "invalid frame"))
		return
	}

	switch message.Type {
	case MessageTypePing:
		m.sendFrame(client, frame(MessageTypePong, message.ID, nil))

	case MessageTypeSubscribeConversations:
		m.subscribeConversations(ctx, client, message)

	case MessageTypeSubscribeConversation:
		m.subscribeConversation(ctx, client, message)

	case MessageTypeSubscribeMessages:
		m.subscribeMessages(ctx, client, message)

	case MessageTypeUnsubscribe:
		client.removeSubscription(message.ID)

	default:
		m.sendFrame(client, frame(MessageTypeError, message.ID, "unknown message type"))
	}
}

func (m *Manager) subscribeConversations(ctx context.Context, client *Client, message WSMessage) {
	stream, err := m.streams.SubscribeConversations(ctx, client.UserID)
	if err != nil {
		logger.Error("subscribe_conversations failed for %s: %v", client.UserID, err)
		m.sendFrame(client, frame(MessageTypeError, message.ID, "subscription failed"))
		return
	}

	client.addSubscription(message.ID, stream.Cancel)

	go func() {
		for batch := range stream.Updates() {
			m.sendFrame(client, frame(MessageTypeConversations, message.ID, batch))
		}
		client.removeSubscription(message.ID)
	}()
}

func (m *Manager) subscribeConversation(ctx context.Context, client *Client, message WSMessage) {
	stream, err := m.streams.SubscribeConversation(ctx, client.UserID, message.ConversationID)
	if err != nil {
		logger.Error("subscribe_conversation failed for %s: %v", client.UserID, err)
		m.sendFrame(client, frame(MessageTypeError, message.ID, "subscription failed"))
		return
	}

	client.addSubscription(message.ID, stream.Cancel)

	go func() {
		for snapshot := range stream.Updates() {
			if snapshot == nil {
				m.sendFrame(client, frame(MessageTypeDenied, message.ID, nil))
				continue
			}
			m.sendFrame(client, frame(MessageTypeConversation, message.ID, snapshot))
		}
		client.removeSubscription(message.ID)
	}()
}

func (m *Manager) subscribeMessages(ctx context.Context, client *Client, message WSMessage) {
	stream, err := m.streams.SubscribeMessages(ctx, client.UserID, message.ConversationID, message.Limit)
	if err != nil {
		logger.Error("subscribe_messages failed for %s: %v", client.UserID, err)
		m.sendFrame(client, frame(MessageTypeError, message.ID, "subscription failed"))
		return
	}

	client.addSubscription(message.ID, stream.Cancel)

	go func() {
		for window := range stream.Updates() {
			if window == nil {
				m.sendFrame(client, frame(MessageTypeDenied, message.ID, nil))
				continue
			}
			m.sendFrame(client, frame(MessageTypeMessages, message.ID, window))
		}
		client.removeSubscription(message.ID)
	}()
}
