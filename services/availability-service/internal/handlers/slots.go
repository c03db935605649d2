package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/slotfinder/libs/apperr"
	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/scheduling"
)

type Scheduler interface {
	GetSchedule(ctx context.Context, req scheduling.Request) (availability.Result, error)
}

type SlotsHandler struct {
	scheduler Scheduler
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewSlotsHandler(scheduler Scheduler, logger *slog.Logger) *SlotsHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		return f.Name
	})
	return &SlotsHandler{scheduler: scheduler, validate: v, logger: logger}
}

type slotsQuery struct {
	StartTime     string   `query:"startTime" validate:"required"`
	EndTime       string   `query:"endTime" validate:"required"`
	EventTypeID   int64    `query:"eventTypeId" validate:"required_without=UsernameList,gte=0"`
	EventTypeSlug string   `query:"eventTypeSlug" validate:"omitempty,max=255"`
	TimeZone      string   `query:"timeZone" validate:"omitempty,timezone"`
	UsernameList  []string `query:"usernameList" validate:"required_without=EventTypeID,max=50,dive,required,max=255"`
	Duration      int      `query:"duration" validate:"gte=0,lte=1440"`
}

type slotsResponse struct {
	Slots map[string][]availability.Slot `json:"slots"`
}

type errorResponse struct {
	Error *apperr.Error `json:"error"`
}

// Slots serves GET /api/v1/slots.
func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseSlotsQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeError(w, r, validationError(err))
		return
	}

	res, err := h.scheduler.GetSchedule(r.Context(), scheduling.Request{
		StartTime:     q.StartTime,
		EndTime:       q.EndTime,
		EventTypeID:   q.EventTypeID,
		EventTypeSlug: q.EventTypeSlug,
		TimeZone:      q.TimeZone,
		UsernameList:  q.UsernameList,
		Duration:      q.Duration,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slots := res.Slots
	if slots == nil {
		slots = map[string][]availability.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}

func parseSlotsQuery(r *http.Request) (slotsQuery, error) {
	values := r.URL.Query()
	q := slotsQuery{
		StartTime:     strings.TrimSpace(values.Get("startTime")),
		EndTime:       strings.TrimSpace(values.Get("endTime")),
		EventTypeSlug: strings.TrimSpace(values.Get("eventTypeSlug")),
		TimeZone:      strings.TrimSpace(values.Get("timeZone")),
	}
	if raw := strings.TrimSpace(values.Get("eventTypeId")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, apperr.BadRequest("eventTypeId must be an integer")
		}
		q.EventTypeID = id
	}
	if raw := strings.TrimSpace(values.Get("duration")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return q, apperr.BadRequest("duration must be an integer number of minutes")
		}
		q.Duration = d
	}
	// usernameList may be repeated, comma separated, or both.
	for _, v := range values["usernameList"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				q.UsernameList = append(q.UsernameList, name)
			}
		}
	}
	return q, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.BadRequest("invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.BadRequest("%s is required", fe.Field())
	case "required_without":
		return apperr.BadRequest("either eventTypeId or usernameList is required")
	case "timezone":
		return apperr.BadRequest("invalid timeZone %q", fmt.Sprint(fe.Value()))
	default:
		return apperr.BadRequest("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

func (h *SlotsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.FromError(err)
	logger := runtime.LoggerFromContext(r.Context(), h.logger)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("slots request failed", "err", err)
	} else {
		logger.Debug("slots request rejected", "code", appErr.Code, "msg", appErr.Message)
	}
	writeJSON(w, appErr.Status, errorResponse{Error: appErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
