package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Skufu/MeddyPal/internal/apperr"
	"github.com/Skufu/MeddyPal/internal/assistant"
	"github.com/Skufu/MeddyPal/internal/engine"
	"github.com/Skufu/MeddyPal/internal/platform/middleware"
	"github.com/Skufu/MeddyPal/internal/store"
)

const (
	storeTimeout    = 3 * time.Second
	composeTimeout  = 10 * time.Second
	historyWindow   = 90 * 24 * time.Hour
	maxHistoryDays  = 365
	maxEventSummary = 200
	futureTolerance = 5 * time.Minute
)

type Handler struct {
	engine   *engine.Engine
	profiles store.ProfileRepository
	events   store.EventRepository
	composer assistant.Composer
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewHandler(eng *engine.Engine, profiles store.ProfileRepository, events store.EventRepository, composer assistant.Composer, log zerolog.Logger) *Handler {
	if composer == nil {
		composer = assistant.Canned{}
	}
	return &Handler{
		engine:   eng,
		profiles: profiles,
		events:   events,
		composer: composer,
		validate: newValidator(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recommend runs the pipeline on a caller-supplied profile and history.
func (h *Handler) Recommend(c *gin.Context) {
	var req recommendRequest
	if err := h.bindJSON(c, &req); err != nil {
		httpError(c, err)
		return
	}
	resp := h.engine.Respond(engine.Request{
		FreeText:           req.FreeText,
		Profile:            req.Profile,
		Events:             req.Events,
		MaxRecommendations: req.MaxRecommendations,
	})
	h.logDecision(c, resp)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SymptomCheck(c *gin.Context) {
	var req symptomCheckRequest
	if err := h.bindJSON(c, &req); err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.engine.CheckSymptoms(req.Symptoms))
}

// Chat answers one assistant message for the authenticated caller.
func (h *Handler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	var req chatRequest
	if err := h.bindJSON(c, &req); err != nil {
		httpError(c, err)
		return
	}

	profile, events, err := h.loadContext(c.Request.Context(), userID)
	if err != nil {
		httpError(c, err)
		return
	}

	resp := h.engine.Respond(engine.Request{
		FreeText:           req.Message,
		Profile:            profile,
		Events:             events,
		MaxRecommendations: req.MaxRecommendations,
	})
	h.logDecision(c, resp)

	ctx, cancel := context.WithTimeout(c.Request.Context(), composeTimeout)
	defer cancel()
	content, source := assistant.Reply(ctx, h.composer, assistant.Input{Message: req.Message, Response: resp}, h.log)
	resp.Content = content

	if resp.Intent == engine.IntentHealthConcern {
		h.recordSymptomCheck(c.Request.Context(), userID, req.Message)
	}

	c.JSON(http.StatusOK, chatResponse{Response: resp, Source: source})
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	profile, err := h.profiles.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		httpError(c, apperr.NotFound("profile not found"))
		return
	}
	if err != nil {
		httpError(c, apperr.Unavailable("profile store unavailable", err).WithOp("profiles.Get"))
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		Profile:             profile,
		ProfileCompleteness: h.engine.Rules().ProfileCompleteness(profile),
	})
}

func (h *Handler) PutProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	var req profileRequest
	if err := h.bindJSON(c, &req); err != nil {
		httpError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	profile := req.toProfile(userID)
	if err := h.profiles.Upsert(ctx, profile); err != nil {
		httpError(c, apperr.Unavailable("profile store unavailable", err).WithOp("profiles.Upsert"))
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		Profile:             profile,
		ProfileCompleteness: h.engine.Rules().ProfileCompleteness(profile),
	})
}

func (h *Handler) ListEvents(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	days, err := queryInt(c, "days", 90, 1, maxHistoryDays)
	if err != nil {
		httpError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 100, 1, store.MaxEvents)
	if err != nil {
		httpError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	since := h.now().AddDate(0, 0, -days)
	events, err := h.events.ListSince(ctx, userID, since, limit)
	if err != nil {
		httpError(c, apperr.Unavailable("activity store unavailable", err).WithOp("events.ListSince"))
		return
	}
	c.JSON(http.StatusOK, eventsResponse{Events: events, Since: since})
}

func (h *Handler) CreateEvent(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	var req eventRequest
	if err := h.bindJSON(c, &req); err != nil {
		httpError(c, err)
		return
	}

	now := h.now()
	event := &engine.ActivityEvent{
		UserID:      userID,
		Category:    req.Category,
		Description: req.Description,
		OccurredAt:  now,
	}
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		if req.OccurredAt.After(now.Add(futureTolerance)) {
			httpError(c, apperr.Validation("occurredAt must not be in the future").
				WithDetails([]fieldError{{Field: "occurredAt", Rule: "past", Message: "occurredAt must not be in the future"}}))
			return
		}
		event.OccurredAt = req.OccurredAt.UTC()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.events.Append(ctx, event); err != nil {
		httpError(c, apperr.Unavailable("activity store unavailable", err).WithOp("events.Append"))
		return
	}
	c.JSON(http.StatusCreated, event)
}

// Insights returns both scores, the activity windows and the proactive
// recommendations for the caller.
func (h *Handler) Insights(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httpError(c, apperr.Unauthorized("authentication required"))
		return
	}
	limit, err := queryInt(c, "limit", 0, 0, engine.MaxRecommendations)
	if err != nil {
		httpError(c, err)
		return
	}
	profile, events, err := h.loadContext(c.Request.Context(), userID)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.engine.Insights(profile, events, limit))
}

// loadContext fetches the caller's profile and last 90 days of activity. A missing
// profile is not an error.
func (h *Handler) loadContext(ctx context.Context, userID uuid.UUID) (*engine.UserProfile, []engine.ActivityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	profile, err := h.profiles.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		profile = nil
	} else if err != nil {
		return nil, nil, apperr.Unavailable("profile store unavailable", err).WithOp("profiles.Get")
	}

	events, err := h.events.ListSince(ctx, userID, h.now().Add(-historyWindow), store.MaxEvents)
	if err != nil {
		return nil, nil, apperr.Unavailable("activity store unavailable", err).WithOp("events.ListSince")
	}
	return profile, events, nil
}

func (h *Handler) recordSymptomCheck(ctx context.Context, userID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	event := &engine.ActivityEvent{
		UserID:      userID,
		Category:    engine.CategorySymptomCheck,
		Description: truncate(message, maxEventSummary),
		OccurredAt:  h.now(),
	}
	if err := h.events.Append(ctx, event); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID.String()).Msg("record symptom check")
	}
}

func (h *Handler) logDecision(c *gin.Context, resp engine.Response) {
	ids := make([]string, 0, len(resp.SuggestedActions))
	for _, rec := range resp.SuggestedActions {
		ids = append(ids, rec.ID)
	}
	h.log.Debug().
		Str("request_id", middleware.GetRequestID(c)).
		Str("intent", string(resp.Intent)).
		Str("type", string(resp.Type)).
		Str("urgency", string(resp.Urgency)).
		Strs("suggestions", ids).
		Int("engagement_score", resp.Scores.Engagement).
		Int("completeness_score", resp.Scores.ProfileCompleteness).
		Msg("recommendation")
}

func queryInt(c *gin.Context, key string, fallback, lo, hi int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, apperr.BadRequest(key + " must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return v, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
