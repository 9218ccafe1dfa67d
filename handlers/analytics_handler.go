package handlers

import (
	"context"
	"net/http"
	"time"

	"habitPulseAPI/middleware"
	"habitPulseAPI/services"
	"habitPulseAPI/utils"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	now              func() time.Time
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		now:              time.Now,
	}
}

// GET /analytics/heatmap?end=YYYY-MM-DD
func (h *AnalyticsHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	now := today(ctx, h.now)
	end, err := utils.ParseOptionalDate(r.URL.Query().Get("end"), now)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.analyticsService.GetHeatmap(ctx, ownerID, end, now)
	if err != nil {
		respondWithServiceError(w, err, "Failed to build heatmap")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
