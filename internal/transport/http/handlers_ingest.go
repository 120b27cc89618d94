package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certproof/internal/ingest"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/httputil"
	"certproof/pkg/requestcontext"
)

// maxUploadBytes bounds a CSV upload.
const maxUploadBytes = 32 << 20

type ingestHandler struct {
	service  *ingest.Service
	students records.Students
	logger   *slog.Logger
}

func newIngestHandler(service *ingest.Service, students records.Students, logger *slog.Logger) *ingestHandler {
	return &ingestHandler{service: service, students: students, logger: logger}
}

func (h *ingestHandler) Register(r chi.Router) {
	r.Post("/ingest", h.HandleIngest)
	r.Post("/clear", h.HandleClear)
	r.Get("/records", h.HandleRecords)
}

// HandleIngest handles POST /ingest requests.
func (h *ingestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected multipart form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing csv file"))
		return
	}
	defer file.Close()

	rows, err := ingest.ParseCSV(file)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Ingest(ctx, ingest.Request{
		Rows:          rows,
		Issuer:        issuer,
		TemplateID:    r.FormValue("template_id"),
		Policy:        ingest.ParsePolicy(r.FormValue("duplicate_action")),
		ClearPrevious: r.FormValue("clear_previous") == "true",
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "ingest failed",
			"issuer", issuer,
			"rows", len(rows),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "batch ingested",
		"request_id", requestcontext.RequestID(ctx),
		"issuer", issuer,
		"created", result.Stats.Created,
		"updated", result.Stats.Updated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleClear handles POST /clear requests.
func (h *ingestHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	res, err := h.service.Clear(ctx, issuer)
	if err != nil {
		h.logger.ErrorContext(ctx, "clear failed", "issuer", issuer, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleRecords handles GET /records requests, listing the caller's uploads.
func (h *ingestHandler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	all, err := h.students.All(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mine := all[:0:0]
	for _, rec := range all {
		if rec.UploadedBy == issuer {
			mine = append(mine, rec)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": mine, "count": len(mine)})
}
