package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timeline-service/internal/service/milestone"
	"timeline-service/pkg/logger"
	"timeline-service/pkg/outbox"
)

var errMalformedBody = errors.New("request body is not valid JSON")

// respondError maps domain errors to status codes; anything unknown is a 500
// with the detail kept in the log
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var (
		notFound   *milestone.NotFoundError
		validation *milestone.ValidationError
	)

	switch {
	case errors.Is(err, errMalformedBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.Is(err, outbox.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validation):
		body := gin.H{"error": validation.Message}
		if validation.Field != "" {
			body["field"] = validation.Field
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	default:
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
