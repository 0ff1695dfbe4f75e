package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timeline-service/internal/model"
	"timeline-service/internal/service/milestone"
	"timeline-service/pkg/logger"
)

// MilestoneService is satisfied by *milestone.Service
type MilestoneService interface {
	UpdateMilestone(ctx context.Context, cmd milestone.UpdateCommand) (*model.Milestone, error)
	GetTimeline(ctx context.Context, timelineID int) (*model.Timeline, error)
	ListMilestones(ctx context.Context, timelineID int) ([]*model.Milestone, error)
}

type MilestoneHandler struct {
	svc    MilestoneService
	logger *zap.Logger
}

func NewMilestoneHandler(svc MilestoneService, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{svc: svc, logger: logger}
}

// UpdateMilestone PATCH /timelines/:timelineId/milestones/:milestoneId
func (h *MilestoneHandler) UpdateMilestone(c *gin.Context) {
	timelineID, ok := pathID(c, "timelineId")
	if !ok {
		return
	}
	milestoneID, ok := pathID(c, "milestoneId")
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	patch, err := decodeUpdateRequest(body)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Warn("UpdateMilestone: invalid request",
			zap.Int("timeline_id", timelineID),
			zap.Int("milestone_id", milestoneID),
			zap.Error(err),
		)
		respondError(c, h.logger, err)
		return
	}

	updated, err := h.svc.UpdateMilestone(c.Request.Context(), milestone.UpdateCommand{
		TimelineID:  timelineID,
		MilestoneID: milestoneID,
		ActorID:     c.GetInt(userIDKey),
		Patch:       patch,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// GetTimeline GET /timelines/:timelineId
func (h *MilestoneHandler) GetTimeline(c *gin.Context) {
	timelineID, ok := pathID(c, "timelineId")
	if !ok {
		return
	}

	tl, err := h.svc.GetTimeline(c.Request.Context(), timelineID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tl})
}

// ListMilestones GET /timelines/:timelineId/milestones
func (h *MilestoneHandler) ListMilestones(c *gin.Context) {
	timelineID, ok := pathID(c, "timelineId")
	if !ok {
		return
	}

	ms, err := h.svc.ListMilestones(c.Request.Context(), timelineID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if ms == nil {
		ms = []*model.Milestone{}
	}

	c.JSON(http.StatusOK, gin.H{"data": ms})
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
