package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/internal/http/dto"
	"basegraph.app/concierge/internal/model"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	HandleMessage(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

type MessageHandler struct {
	turns TurnHandler
}

func NewMessageHandler(turns TurnHandler) *MessageHandler {
	return &MessageHandler{turns: turns}
}

func (h *MessageHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := model.TurnInput{UserID: req.UserID, Message: req.Message}
	if req.ConversationID != nil && *req.ConversationID != "" {
		conversationID, err := id.Parse(*req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		in.ConversationID = &conversationID
	}

	result, err := h.turns.HandleMessage(ctx, in)
	if err != nil {
		respondError(c, err, "failed to handle message")
		return
	}

	c.JSON(http.StatusOK, dto.ToSendMessageResponse(result))
}
