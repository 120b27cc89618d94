package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"certproof/internal/docstore"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/httputil"
)

// tokenIssuer mints signed verification tokens for a certificate.
type tokenIssuer interface {
	Issue(studentID, certID int64) (string, error)
}

type certificateHandler struct {
	certs       records.Certificates
	tokens      tokenIssuer
	auditor     *audit.Publisher
	storageRoot string
	logger      *slog.Logger
}

func newCertificateHandler(certs records.Certificates, tokens tokenIssuer, auditor *audit.Publisher, storageRoot string, logger *slog.Logger) *certificateHandler {
	return &certificateHandler{certs: certs, tokens: tokens, auditor: auditor, storageRoot: storageRoot, logger: logger}
}

func (h *certificateHandler) Register(r chi.Router) {
	r.Get("/certificates", h.HandleList)
	r.Get("/certificates/{certID}", h.HandleDownload)
	r.Post("/certificates/{certID}/token", h.HandleIssueToken)
}

// HandleList handles GET /certificates requests, scoped to the caller.
func (h *certificateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	certs, err := h.certs.ByIssuer(ctx, issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"certificates": certs, "count": len(certs)})
}

// HandleDownload handles GET /certificates/{certID} requests. The artifact
// path stored on the certificate is relative; resolution is confined to the
// storage root so a corrupted record cannot escape it.
func (h *certificateHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	certID, err := strconv.ParseInt(chi.URLParam(r, "certID"), 10, 64)
	if err != nil || certID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid certificate id"))
		return
	}

	cert, err := h.certs.ByCertID(ctx, certID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "certificate not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	root, err := filepath.Abs(h.storageRoot)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	full, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(cert.File)))
	if err != nil || !strings.HasPrefix(full, root+string(filepath.Separator)) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "artifact path escapes storage root"))
		return
	}

	http.ServeFile(w, r, full)
}

// HandleIssueToken handles POST /certificates/{certID}/token requests. It
// mints a fresh signed token for an already-issued certificate, for embedding
// in a new QR code or link.
func (h *certificateHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := issuerFrom(w, r)
	if !ok {
		return
	}

	certID, err := strconv.ParseInt(chi.URLParam(r, "certID"), 10, 64)
	if err != nil || certID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid certificate id"))
		return
	}

	cert, err := h.certs.ByCertID(ctx, certID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "certificate not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	token, err := h.tokens.Issue(cert.StudentID, cert.CertID)
	if err != nil {
		h.logger.ErrorContext(ctx, "token issuance failed", "cert_id", certID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Action:    audit.ActionTokenIssued,
		Issuer:    issuer,
		StudentID: cert.StudentID,
		CertID:    cert.CertID,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"cert_id": cert.CertID,
		"token":   token,
	})
}
