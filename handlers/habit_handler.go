package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/logger"
	"habitPulseAPI/middleware"
	"habitPulseAPI/services"
	"habitPulseAPI/utils"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

type HabitHandler struct {
	habitService *services.HabitService
	now          func() time.Time
}

func NewHabitHandler(habitService *services.HabitService) *HabitHandler {
	return &HabitHandler{
		habitService: habitService,
		now:          time.Now,
	}
}

// POST /habits
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req habit.CreateHabitRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	detail, err := h.habitService.CreateHabit(ctx, ownerID, &req, today(ctx, h.now))
	if err != nil {
		respondWithServiceError(w, err, "Failed to create habit")
		return
	}

	respondWithJSON(w, http.StatusCreated, detail)
}

// GET /habits
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	habits, err := h.habitService.ListHabits(ctx, ownerID, today(ctx, h.now))
	if err != nil {
		respondWithServiceError(w, err, "Failed to list habits")
		return
	}

	respondWithJSON(w, http.StatusOK, habits)
}

// GET /habits/{id}
func (h *HabitHandler) GetHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	habitID, ok := habitIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.habitService.GetHabit(ctx, ownerID, habitID, today(ctx, h.now))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get habit")
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

// PUT /habits/{id}/archive
func (h *HabitHandler) ArchiveHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	habitID, ok := habitIDParam(w, r)
	if !ok {
		return
	}

	if err := h.habitService.ArchiveHabit(ctx, ownerID, habitID); err != nil {
		respondWithServiceError(w, err, "Failed to archive habit")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Habit archived successfully"})
}

// POST /habits/{id}/completions/increment
func (h *HabitHandler) IncrementCompletion(w http.ResponseWriter, r *http.Request) {
	h.mutateCompletion(w, r, "increment", h.habitService.IncrementCompletion)
}

// POST /habits/{id}/completions/decrement
func (h *HabitHandler) DecrementCompletion(w http.ResponseWriter, r *http.Request) {
	h.mutateCompletion(w, r, "decrement", h.habitService.DecrementCompletion)
}

type completionFunc func(ctx context.Context, ownerID string, id uuid.UUID, date, today civil.Date) (*habit.CompletionResponse, error)

func (h *HabitHandler) mutateCompletion(w http.ResponseWriter, r *http.Request, direction string, mutate completionFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	habitID, ok := habitIDParam(w, r)
	if !ok {
		return
	}

	var req habit.CompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Date == "" {
		req.Date = r.URL.Query().Get("date")
	}

	now := today(ctx, h.now)
	date, err := utils.ParseOptionalDate(req.Date, now)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := mutate(ctx, ownerID, habitID, date, now)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update completion")
		return
	}

	middleware.RecordCompletion(direction, resp.HealthState)
	respondWithJSON(w, http.StatusOK, resp)
}

// GET /habits/{id}/streak?as_of=YYYY-MM-DD
func (h *HabitHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	habitID, ok := habitIDParam(w, r)
	if !ok {
		return
	}

	now := today(ctx, h.now)
	asOf, err := utils.ParseOptionalDate(r.URL.Query().Get("as_of"), now)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.habitService.StreakAsOf(ctx, ownerID, habitID, asOf, now)
	if err != nil {
		respondWithServiceError(w, err, "Failed to compute streak")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GET /habits/{id}/calendar?year=&month=
func (h *HabitHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ownerID, ok := middleware.GetOwnerID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	habitID, ok := habitIDParam(w, r)
	if !ok {
		return
	}

	now := today(ctx, h.now)
	year, month := now.Year, int(now.Month)
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = n
	}
	if v := r.URL.Query().Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid month")
			return
		}
		month = n
	}

	calendar, err := h.habitService.GetCalendar(ctx, ownerID, habitID, year, time.Month(month), now)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get calendar")
		return
	}

	respondWithJSON(w, http.StatusOK, calendar)
}

func today(ctx context.Context, now func() time.Time) civil.Date {
	return utils.Today(middleware.GetLocation(ctx), now())
}

func habitIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid habit id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody accepts an empty body as the zero request.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *habit.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, utils.ErrInvalidDate):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, habit.ErrHabitNotFound):
		respondWithError(w, http.StatusNotFound, "Habit not found")
	case errors.Is(err, habit.ErrHabitArchived):
		respondWithError(w, http.StatusConflict, "Habit is archived")
	default:
		logger.Error(fallback, "error", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
