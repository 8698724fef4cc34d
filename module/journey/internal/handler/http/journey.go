package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

type journeyService interface {
	CreateJourney(ctx context.Context, j *domain.Journey) (*domain.Journey, error)
	Submit(ctx context.Context, r *domain.PositionReport) (*domain.SubmitResult, error)
	State(ctx context.Context, journeyID string) (*domain.JourneyState, error)
	Complete(ctx context.Context, journeyID string) (*domain.JourneyState, error)
	Cancel(ctx context.Context, journeyID string) (*domain.JourneyState, error)
}

type historyService interface {
	Latest(ctx context.Context, journeyID string) (*domain.PositionReport, error)
	History(ctx context.Context, query *domain.HistoryQuery) ([]domain.PositionReport, error)
}

type eventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, journeyID string)
}

type waypointRequest struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	Latitude                float64 `json:"latitude"`
	Longitude               float64 `json:"longitude"`
	Category                string  `json:"category"`
	Sequence                int     `json:"sequence"`
	CloseAtDistanceKm       float64 `json:"close_at_distance_km"`
	CloseAtMinutesRemaining float64 `json:"close_at_minutes_remaining"`
	ScheduledOffsetMinutes  float64 `json:"scheduled_offset_minutes"`
}

type createJourneyRequest struct {
	ID            string            `json:"id"`
	RouteID       string            `json:"route_id"`
	VehicleID     string            `json:"vehicle_id"`
	DepartureTime int64             `json:"departure_time"`
	Waypoints     []waypointRequest `json:"waypoints"`
}

type positionRequest struct {
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy"`
	Heading    *float64 `json:"heading"`
	Speed      *float64 `json:"speed"`
	Timestamp  int64    `json:"timestamp"`
}

type positionResponse struct {
	JourneyID  string   `json:"journey_id"`
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	Heading    *float64 `json:"heading,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

type JourneyHandler struct {
	journeySvc journeyService
	historySvc historyService
	stream     eventStream
}

func NewJourneyHandler(journeySvc journeyService, historySvc historyService, stream eventStream) *JourneyHandler {
	return &JourneyHandler{journeySvc: journeySvc, historySvc: historySvc, stream: stream}
}

func (h *JourneyHandler) Register(r *gin.RouterGroup) {
	r.POST("/journeys", h.CreateJourney)
	r.GET("/journeys/:journey_id", h.GetState)
	r.POST("/journeys/:journey_id/positions", h.SubmitPosition)
	r.GET("/journeys/:journey_id/positions/latest", h.GetLatestPosition)
	r.GET("/journeys/:journey_id/positions", h.GetHistory)
	r.POST("/journeys/:journey_id/complete", h.Complete)
	r.POST("/journeys/:journey_id/cancel", h.Cancel)
	r.GET("/journeys/:journey_id/events", h.Events)
}

func (h *JourneyHandler) CreateJourney(c *gin.Context) {
	var req createJourneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewAppError(domain.ErrCodeMissingField, "invalid request body", err))
		return
	}

	j := &domain.Journey{
		ID:        req.ID,
		RouteID:   req.RouteID,
		VehicleID: req.VehicleID,
		Waypoints: make([]domain.Waypoint, len(req.Waypoints)),
	}
	if req.DepartureTime > 0 {
		j.DepartureTime = time.Unix(req.DepartureTime, 0).UTC()
	}
	for i, wp := range req.Waypoints {
		j.Waypoints[i] = domain.Waypoint{
			ID:                      wp.ID,
			Name:                    wp.Name,
			Point:                   domain.Point{Lat: wp.Latitude, Lng: wp.Longitude},
			Category:                domain.Category(wp.Category),
			Sequence:                wp.Sequence,
			CloseAtDistanceKm:       wp.CloseAtDistanceKm,
			CloseAtMinutesRemaining: wp.CloseAtMinutesRemaining,
			ScheduledOffsetMinutes:  wp.ScheduledOffsetMinutes,
		}
	}

	created, err := h.journeySvc.CreateJourney(c.Request.Context(), j)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *JourneyHandler) GetState(c *gin.Context) {
	st, err := h.journeySvc.State(c.Request.Context(), c.Param("journey_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// SubmitPosition answers 202 for every report that was received without
// error, including duplicates and out-of-order reports that were not applied.
func (h *JourneyHandler) SubmitPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewAppError(domain.ErrCodeMissingField, "invalid request body", err))
		return
	}

	report := &domain.PositionReport{
		JourneyID:  c.Param("journey_id"),
		SourceType: domain.SourceType(req.SourceType),
		SourceID:   req.SourceID,
		Point:      domain.Point{Lat: req.Latitude, Lng: req.Longitude},
		Accuracy:   req.Accuracy,
		Heading:    req.Heading,
		Speed:      req.Speed,
	}
	if req.Timestamp > 0 {
		report.Timestamp = time.Unix(req.Timestamp, 0).UTC()
	}

	res, err := h.journeySvc.Submit(c.Request.Context(), report)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *JourneyHandler) GetLatestPosition(c *gin.Context) {
	p, err := h.historySvc.Latest(c.Request.Context(), c.Param("journey_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPositionResponse(p))
}

func (h *JourneyHandler) GetHistory(c *gin.Context) {
	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		writeError(c, domain.NewAppError(domain.ErrCodeInvalidTimeRange, "invalid start parameter", err))
		return
	}

	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		writeError(c, domain.NewAppError(domain.ErrCodeInvalidTimeRange, "invalid end parameter", err))
		return
	}

	query := &domain.HistoryQuery{
		JourneyID: c.Param("journey_id"),
		Start:     time.Unix(start, 0),
		End:       time.Unix(end, 0),
	}

	reports, err := h.historySvc.History(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}

	results := make([]positionResponse, len(reports))
	for i := range reports {
		results[i] = toPositionResponse(&reports[i])
	}
	c.JSON(http.StatusOK, results)
}

func (h *JourneyHandler) Complete(c *gin.Context) {
	st, err := h.journeySvc.Complete(c.Request.Context(), c.Param("journey_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *JourneyHandler) Cancel(c *gin.Context) {
	st, err := h.journeySvc.Cancel(c.Request.Context(), c.Param("journey_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Events upgrades to a WebSocket carrying the journey's cycle events.
func (h *JourneyHandler) Events(c *gin.Context) {
	journeyID := c.Param("journey_id")
	if _, err := h.journeySvc.State(c.Request.Context(), journeyID); err != nil {
		writeError(c, err)
		return
	}
	h.stream.Serve(c.Writer, c.Request, journeyID)
}

func writeError(c *gin.Context, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    domain.ErrCodeInternal,
			"message": "unexpected error",
		}})
		return
	}

	body := gin.H{"code": appErr.Code, "message": appErr.Message}
	if appErr.Retryable() {
		body["retryable"] = true
	}
	c.JSON(appErr.Code.HTTPStatus(), gin.H{"error": body})
}

func toPositionResponse(p *domain.PositionReport) positionResponse {
	return positionResponse{
		JourneyID:  p.JourneyID,
		SourceType: string(p.SourceType),
		SourceID:   p.SourceID,
		Latitude:   p.Point.Lat,
		Longitude:  p.Point.Lng,
		Accuracy:   p.Accuracy,
		Heading:    p.Heading,
		Speed:      p.Speed,
		Timestamp:  p.Timestamp.Unix(),
	}
}
