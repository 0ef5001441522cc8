package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

// Pinger проверяет доступность кэша для health-чека.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler отдаёт REST-поверхность над ядром: подписки, дайджесты
// и отладочные проекции над хранилищем новостей.
type Handler struct {
	log        zerolog.Logger
	roster     domain.SubscriberRepo
	store      domain.NewsStore
	summarizer domain.Summarizer
	summaries  domain.SummaryCache
	pinger     Pinger
}

// NewHandler создаёт обработчик API.
func NewHandler(log zerolog.Logger, roster domain.SubscriberRepo, store domain.NewsStore, summarizer domain.Summarizer, summaries domain.SummaryCache, pinger Pinger) *Handler {
	return &Handler{
		log:        log.With().Str("component", "api").Logger(),
		roster:     roster,
		store:      store,
		summarizer: summarizer,
		summaries:  summaries,
		pinger:     pinger,
	}
}

// Router собирает маршруты с базовыми middleware.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/", h.root)
	r.Get("/health", h.health)

	r.Post("/subscribe", h.subscribe)
	r.Delete("/unsubscribe/{user_id}", h.unsubscribe)
	r.Get("/subscribers", h.subscribers)

	r.Get("/summary", h.summaryToday)
	r.Get("/summary/latest", h.summaryLatest)
	r.Get("/summary/{date}", h.summaryByDate)

	r.Get("/news/count", h.newsCount)
	r.Get("/news/all", h.newsAll)
	r.Get("/news/preview", h.newsPreview)
	r.Get("/news/summarization-preview", h.summarizationPreview)
	r.Post("/news/generate-summary", h.generateSummary)

	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "MarketTwits Summarizer API is running"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("health-чек не прошёл")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type subscribeRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	sub := domain.Subscriber{
		UserID:       req.UserID,
		Username:     req.Username,
		SubscribedAt: time.Now().UTC(),
		IsActive:     true,
	}
	if !h.roster.Subscribe(sub) {
		writeError(w, http.StatusInternalServerError, "failed to subscribe user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully subscribed to daily summaries",
		"user_id": req.UserID,
	})
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if !h.roster.Unsubscribe(userID) {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully unsubscribed from daily summaries",
		"user_id": userID,
	})
}

func (h *Handler) subscribers(w http.ResponseWriter, r *http.Request) {
	ids := h.roster.List()
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) summaryToday(w http.ResponseWriter, r *http.Request) {
	summary := h.summaries.Get(time.Now())
	if summary == nil {
		summary = h.summaries.Latest()
	}
	h.writeSummary(w, summary, "No summary available")
}

func (h *Handler) summaryLatest(w http.ResponseWriter, r *http.Request) {
	h.writeSummary(w, h.summaries.Latest(), "No summary available yet")
}

func (h *Handler) summaryByDate(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}
	h.writeSummary(w, h.summaries.Get(date), fmt.Sprintf("No summary available for %s", raw))
}

func (h *Handler) writeSummary(w http.ResponseWriter, summary *domain.Summary, missing string) {
	if summary == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": missing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": summary,
		"message": "Summary retrieved successfully",
	})
}

// targetDate вычисляет дату выборки: по умолчанию вчера, как у суммаризации.
func targetDate(r *http.Request) time.Time {
	daysAgo := 1
	if raw := r.URL.Query().Get("days_ago"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			daysAgo = parsed
		}
	}
	return time.Now().AddDate(0, 0, -daysAgo)
}

func limitParam(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func (h *Handler) newsCount(w http.ResponseWriter, r *http.Request) {
	date := targetDate(r)
	count := 0
	if batch := h.store.ForDate(date); batch != nil {
		count = len(batch.Items)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"total_count": count,
		"date":        date.Format("2006-01-02"),
		"message":     fmt.Sprintf("Total news items for %s: %d", date.Format("2006-01-02"), count),
	})
}

func (h *Handler) newsAll(w http.ResponseWriter, r *http.Request) {
	date := targetDate(r)
	batch := h.store.ForDate(date)
	if batch == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     false,
			"message":     fmt.Sprintf("No news found for %s", date.Format("2006-01-02")),
			"news_items":  []domain.NewsItem{},
			"total_count": 0,
		})
		return
	}
	items := batch.Items
	if limit := limitParam(r, 100); len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"total_count":    len(batch.Items),
		"returned_count": len(items),
		"date":           date.Format("2006-01-02"),
		"news_items":     items,
		"message":        fmt.Sprintf("Retrieved %d news items for %s", len(items), date.Format("2006-01-02")),
	})
}

func (h *Handler) newsPreview(w http.ResponseWriter, r *http.Request) {
	date := targetDate(r)
	batch := h.store.ForDate(date)
	if batch == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     false,
			"message":     fmt.Sprintf("No news found for %s", date.Format("2006-01-02")),
			"news_items":  []domain.NewsItem{},
			"total_count": 0,
		})
		return
	}
	preview := batch.Items
	if limit := limitParam(r, 10); len(preview) > limit {
		preview = preview[:limit]
	}
	var sampleTexts []string
	for _, item := range preview {
		if item.Text == "" {
			continue
		}
		sampleTexts = append(sampleTexts, item.Text)
		if len(sampleTexts) == 5 {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("Preview of %d news items for summarization", len(preview)),
		"date":            date.Format("2006-01-02"),
		"total_available": len(batch.Items),
		"preview_count":   len(preview),
		"news_items":      preview,
		"sample_texts":    sampleTexts,
	})
}

// summarizationPreview показывает точный промпт, который ушёл бы в модель.
func (h *Handler) summarizationPreview(w http.ResponseWriter, r *http.Request) {
	date := targetDate(r)
	batch := h.store.ForDate(date)
	if batch == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        false,
			"message":        fmt.Sprintf("No news found for %s", date.Format("2006-01-02")),
			"prompt_preview": "",
			"news_count":     0,
		})
		return
	}
	prompt, truncated, ok := h.summarizer.BuildPrompt(*batch)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        false,
			"message":        "No text content found in news items",
			"prompt_preview": "",
			"news_count":     0,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Summarization preview for %s", date.Format("2006-01-02")),
		"date":           date.Format("2006-01-02"),
		"news_count":     len(batch.Items),
		"truncated":      truncated,
		"prompt_preview": prompt,
	})
}

// generateSummary принудительно перегенерирует дайджест за дату.
func (h *Handler) generateSummary(w http.ResponseWriter, r *http.Request) {
	date := targetDate(r)
	batch := h.store.ForDate(date)
	if batch == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": fmt.Sprintf("No news found for %s", date.Format("2006-01-02")),
			"summary": nil,
		})
		return
	}
	h.log.Info().Str("date", date.Format("2006-01-02")).Msg("перегенерация дайджеста по запросу API")
	summary := h.summarizer.ProcessForced(r.Context(), *batch)
	if summary == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Failed to generate summary",
			"summary": nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("Summary generated for %s", date.Format("2006-01-02")),
		"summary":      summary,
		"news_count":   len(batch.Items),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
