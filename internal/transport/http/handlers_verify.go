package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certproof/internal/verify"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/httputil"
)

type verifyHandler struct {
	service *verify.Service
	logger  *slog.Logger
}

func newVerifyHandler(service *verify.Service, logger *slog.Logger) *verifyHandler {
	return &verifyHandler{service: service, logger: logger}
}

func (h *verifyHandler) Register(r chi.Router) {
	r.Post("/verify/student", h.HandleVerifyStudent)
	r.Post("/verify/token", h.HandleVerifyToken)
	r.Get("/search", h.HandleSearch)
}

// HandleVerifyStudent handles POST /verify/student requests.
func (h *verifyHandler) HandleVerifyStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		StudentID int64 `json:"student_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "student_id required"))
		return
	}

	verdict, err := h.service.VerifyByStudent(ctx, req.StudentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed", "student_id", req.StudentID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verdict)
}

// HandleVerifyToken handles POST /verify/token requests.
func (h *verifyHandler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token required"))
		return
	}

	verdict, err := h.service.VerifyByToken(ctx, req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verdict)
}

// HandleSearch handles GET /search requests.
func (h *verifyHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results, err := h.service.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}
