package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/internal/model"
)

// respondError maps a tagged error onto a status code. Only validation
// errors echo their message; the rest get a generic body.
func respondError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()

	switch model.KindOf(err) {
	case model.ErrorKindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case model.ErrorKindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case model.ErrorKindGeneration:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "the assistant is unavailable, please try again"})
	case model.ErrorKindStorage:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func validationMessage(err error) string {
	var tagged *model.Error
	if errors.As(err, &tagged) && tagged.Err != nil {
		return tagged.Err.Error()
	}
	return err.Error()
}
