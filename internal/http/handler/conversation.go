package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/internal/http/dto"
	"basegraph.app/concierge/internal/service"
)

type ConversationHandler struct {
	conversations service.ConversationService
}

func NewConversationHandler(conversations service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) History(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	msgs, err := h.conversations.History(c.Request.Context(), conversationID, q.Limit)
	if err != nil {
		respondError(c, err, "failed to load history")
		return
	}

	resp := dto.HistoryResponse{
		ConversationID: conversationID,
		Messages:       make([]dto.MessageResponse, len(msgs)),
	}
	for i, m := range msgs {
		resp.Messages[i] = dto.ToMessageResponse(m)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) ListByUser(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	convs, err := h.conversations.ListByUser(c.Request.Context(), c.Param("user_id"), q.Limit)
	if err != nil {
		respondError(c, err, "failed to list conversations")
		return
	}

	resp := dto.ConversationListResponse{Conversations: make([]dto.ConversationResponse, len(convs))}
	for i := range convs {
		resp.Conversations[i] = dto.ToConversationResponse(&convs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) RecordSatisfaction(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req dto.SatisfactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	conv, err := h.conversations.RecordSatisfaction(c.Request.Context(), conversationID, req.Rating, req.Feedback)
	if err != nil {
		respondError(c, err, "failed to record satisfaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.UpdateStatus(c.Request.Context(), conversationID, req.Status, req.Reason)
	if err != nil {
		respondError(c, err, "failed to update status")
		return
	}
	c.JSON(http.StatusOK, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Statistics(c *gin.Context) {
	var q dto.StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.conversations.Statistics(c.Request.Context(), q.UserID)
	if err != nil {
		respondError(c, err, "failed to compute statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func conversationIDParam(c *gin.Context) (int64, bool) {
	conversationID, err := id.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
		return 0, false
	}
	return conversationID, true
}
