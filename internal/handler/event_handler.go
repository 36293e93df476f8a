package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/marquee/internal/event"
	"github.com/hitoshi/marquee/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	ListUpcoming(ctx context.Context, q event.Query) ([]model.Event, error)
}

// EventHandler はイベント一覧のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

type eventItem struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Date  string  `json:"date"`
	Venue string  `json:"venue"`
	Image *string `json:"image"`
}

type eventListResponse struct {
	OK    bool        `json:"ok"`
	Items []eventItem `json:"items"`
}

// ListUpcoming は公開中のイベントを開催日の昇順で返す。
// GET /api/events?from=YYYY-MM-DD&limit=N
func (h *EventHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.service.ListUpcoming(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]eventItem, 0, len(events))
	for _, e := range events {
		items = append(items, eventItem{
			ID:    e.ID,
			Title: e.Title,
			Date:  e.Date,
			Venue: e.Venue,
			Image: optional(e.ImageURL),
		})
	}
	writeJSON(w, http.StatusOK, eventListResponse{OK: true, Items: items})
}

// parseEventQuery はクエリパラメータを検証する。不正な値はまとめてVALIDATION_FAILEDにする。
// limitの上限超過はエラーにせずサービス側で丸める。
func parseEventQuery(r *http.Request) (event.Query, error) {
	var q event.Query
	var details []string

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			details = append(details, `"from" must be a valid date in YYYY-MM-DD format`)
		} else {
			q.From = &from
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			details = append(details, `"limit" must be a positive integer`)
		} else {
			q.Limit = limit
		}
	}

	if len(details) > 0 {
		return event.Query{}, model.NewValidationError(details)
	}
	return q, nil
}
