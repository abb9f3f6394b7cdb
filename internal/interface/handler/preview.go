package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"linkpreview/internal/domain"
	"linkpreview/internal/usecase"
)

// RequestIDHeader はリクエストIDを返すレスポンスヘッダ
const RequestIDHeader = "X-Request-ID"

// PreviewHandler は GET /fetch?url= を処理する
type PreviewHandler struct {
	previewUseCase *usecase.PreviewUseCase
	clientIP       *ClientIPResolver
	logger         domain.Logger
}

// NewPreviewHandler は新しいPreviewHandlerインスタンスを作成
func NewPreviewHandler(
	previewUseCase *usecase.PreviewUseCase,
	clientIP *ClientIPResolver,
	logger domain.Logger,
) *PreviewHandler {
	return &PreviewHandler{
		previewUseCase: previewUseCase,
		clientIP:       clientIP,
		logger:         logger,
	}
}

// Routes はAPIサーバーのルーティングを返す
func (h *PreviewHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/fetch", h)
	return mux
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)

	fields := map[string]interface{}{
		"request_id": requestID,
		"method":     r.Method,
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		fields["status"] = http.StatusMethodNotAllowed
		h.logger.Info("Method not allowed", fields)
		return
	}

	clientKey := h.clientIP.Resolve(r)
	rawURL := r.URL.Query().Get("url")
	fields["client"] = clientKey
	fields["url"] = rawURL

	md, err := h.previewUseCase.Preview(r.Context(), clientKey, rawURL)
	if err != nil {
		status := h.writeError(w, err)
		fields["status"] = status
		fields["duration"] = time.Since(start).String()
		if status == http.StatusInternalServerError {
			h.logger.Error("Preview failed", err, fields)
		} else {
			fields["reason"] = err.Error()
			h.logger.Info("Preview rejected", fields)
		}
		return
	}

	writeJSON(w, http.StatusOK, md)
	fields["status"] = http.StatusOK
	fields["cached"] = md.Cached
	fields["duration"] = time.Since(start).String()
	h.logger.Info("Preview served", fields)
}

// writeError はエラーをレスポンスに変換し、ステータスコードを返す.
// フェッチ失敗の詳細はクライアントに返さない.
func (h *PreviewHandler) writeError(w http.ResponseWriter, err error) int {
	var (
		inputErr *domain.InputError
		rateErr  *domain.RateLimitError
		fetchErr *domain.FetchError
	)

	switch {
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: inputErr.Reason})
		return http.StatusBadRequest

	case errors.As(err, &rateErr):
		secs := int64(rateErr.RetryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      "rate limit exceeded",
			RetryAfter: secs,
		})
		return http.StatusTooManyRequests

	case errors.As(err, &fetchErr) && fetchErr.Kind == domain.FetchContentType:
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported content type"})
		return http.StatusUnsupportedMediaType

	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch url"})
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
