package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lotedd/internal/domain/entity"
	"lotedd/internal/usecase"
	"lotedd/pkg/response"
	"lotedd/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type participantPayload struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=buyer seller admin"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

type relatedEntityPayload struct {
	Type string `json:"type" validate:"required,oneof=order product general"`
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

type resolveConversationRequest struct {
	Participants  []participantPayload  `json:"participants" validate:"required,min=2,dive"`
	RelatedEntity *relatedEntityPayload `json:"relatedEntity,omitempty"`
}

type attachmentPayload struct {
	Type string `json:"type" validate:"required,oneof=image document product"`
	URL  string `json:"url" validate:"required,url"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

type sendMessageRequest struct {
	Text        string              `json:"text" validate:"required"`
	Attachments []attachmentPayload `json:"attachments,omitempty" validate:"omitempty,dive"`
}

// ResolveConversation finds or creates the conversation for a participant
// set, optionally tied to an order or product.
func (h *ChatHandler) ResolveConversation(c echo.Context) error {
	var req resolveConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	input := usecase.ResolveConversationInput{}
	for _, p := range req.Participants {
		input.Participants = append(input.Participants, usecase.ParticipantInput{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			AvatarURL:   p.AvatarURL,
		})
	}
	if req.RelatedEntity != nil {
		input.RelatedEntity = &entity.RelatedEntity{
			Type: req.RelatedEntity.Type,
			ID:   req.RelatedEntity.ID,
			Name: req.RelatedEntity.Name,
		}
	}

	conversation, err := h.chatUseCase.ResolveConversation(c.Request().Context(), userID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

// GetConversations lists the caller's conversations, updatedAt descending.
func (h *ChatHandler) GetConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	conversations, total, err := h.chatUseCase.GetConversations(c.Request().Context(), userID, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, conversations, total, params.Page, params.PageSize)
}

// GetUnreadTotal returns the caller's unread badge count.
func (h *ChatHandler) GetUnreadTotal(c echo.Context) error {
	userID := c.Get("uid").(string)

	total, err := h.chatUseCase.UnreadTotal(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int64{"unreadCount": total})
}

func (h *ChatHandler) GetConversationByID(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	conversation, err := h.chatUseCase.GetConversationByID(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := usecase.SendMessageInput{
		ConversationID: conversationID,
		Text:           req.Text,
	}
	for _, a := range req.Attachments {
		input.Attachments = append(input.Attachments, entity.Attachment{
			Type: a.Type,
			URL:  a.URL,
			Name: a.Name,
			Size: a.Size,
		})
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages returns one newest-first page of a conversation's messages.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)
	params := utils.GetCursorParams(c)

	page, err := h.chatUseCase.GetMessages(c.Request().Context(), userID, conversationID, params.PageSize, params.Cursor)
	if err != nil {
		return response.Error(c, err)
	}

	return response.CursorPaginated(c, page.Messages, page.NextCursor)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.MarkRead(c.Request().Context(), userID, conversationID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// RemoveMessage is the admin moderation removal endpoint.
func (h *ChatHandler) RemoveMessage(c echo.Context) error {
	conversationID := c.Param("id")
	messageID := c.Param("messageId")
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.RemoveMessage(c.Request().Context(), userID, conversationID, messageID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
