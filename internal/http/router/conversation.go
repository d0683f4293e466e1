package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/internal/http/handler"
)

func MessageRouter(rg *gin.RouterGroup, h *handler.MessageHandler) {
	rg.POST("", h.Send)
}

func ConversationRouter(rg *gin.RouterGroup, h *handler.ConversationHandler) {
	rg.GET("/:conversation_id/messages", h.History)
	rg.POST("/:conversation_id/satisfaction", h.RecordSatisfaction)
	rg.POST("/:conversation_id/status", h.UpdateStatus)
}

func UserRouter(rg *gin.RouterGroup, h *handler.ConversationHandler) {
	rg.GET("/:user_id/conversations", h.ListByUser)
}
