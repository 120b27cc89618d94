package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certproof/internal/domain"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/httputil"
)

var allowedTemplateExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

type templateHandler struct {
	templates   records.Templates
	storageRoot string
	logger      *slog.Logger
}

func newTemplateHandler(templates records.Templates, storageRoot string, logger *slog.Logger) *templateHandler {
	return &templateHandler{templates: templates, storageRoot: storageRoot, logger: logger}
}

func (h *templateHandler) Register(r chi.Router) {
	r.Post("/templates", h.HandleUpload)
	r.Get("/templates", h.HandleList)
}

// HandleUpload handles POST /templates requests: a multipart template image
// plus an optional JSON layout merged over the defaults.
func (h *templateHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing template image"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedTemplateExts[ext] {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "template must be a png or jpeg image"))
		return
	}

	layout := domain.DefaultLayout()
	if raw := r.FormValue("layout"); raw != "" {
		layout, err = domain.ParseLayout([]byte(raw))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed layout"))
			return
		}
	}

	templateID := uuid.New().String()
	filename := templateID + ext
	if err := h.saveAsset(filename, file); err != nil {
		h.logger.ErrorContext(ctx, "template save failed", "issuer", issuer, "error", err)
		httputil.WriteError(w, err)
		return
	}

	tpl := domain.Template{
		TemplateID: templateID,
		Filename:   filename,
		Layout:     layout,
		UploadedBy: issuer,
		UploadedAt: time.Now().UTC(),
	}
	if err := h.templates.Insert(ctx, tpl); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "template uploaded", "issuer", issuer, "template_id", templateID)
	httputil.WriteJSON(w, http.StatusCreated, tpl)
}

func (h *templateHandler) saveAsset(filename string, src io.Reader) error {
	dir := filepath.Join(h.storageRoot, "templates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// HandleList handles GET /templates requests, scoped to the caller.
func (h *templateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	tpls, err := h.templates.ByUploader(ctx, issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"templates": tpls, "count": len(tpls)})
}
