package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certproof/internal/proof"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/httputil"
)

type proofHandler struct {
	service *proof.Service
	logger  *slog.Logger
}

func newProofHandler(service *proof.Service, logger *slog.Logger) *proofHandler {
	return &proofHandler{service: service, logger: logger}
}

func (h *proofHandler) Register(r chi.Router) {
	r.Post("/proofs", h.HandleAppend)
}

// HandleAppend handles POST /proofs requests. It re-seals the student's
// current data with a fresh proof entry attributed to the caller.
func (h *proofHandler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		StudentID int64 `json:"student_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "student_id required"))
		return
	}

	appended, err := h.service.Append(ctx, req.StudentID, issuer)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "student not found"))
			return
		}
		h.logger.ErrorContext(ctx, "proof append failed", "student_id", req.StudentID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, appended)
}
