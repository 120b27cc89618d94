package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certproof/internal/ingest"
	"certproof/internal/proof"
	"certproof/internal/records"
	"certproof/internal/verify"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/httputil"
	"certproof/pkg/requestcontext"
)

// Deps carries everything the HTTP layer needs. Auth is an external
// collaborator: the issuer identity arrives on the X-Issuer header, assumed
// to be set by a trusted front-end.
type Deps struct {
	Ingest      *ingest.Service
	Verify      *verify.Service
	Proofs      *proof.Service
	Students    records.Students
	Certs       records.Certificates
	Templates   records.Templates
	Tokens      tokenIssuer
	Audit       *audit.Publisher
	StorageRoot string
	Logger      *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestScope)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	newIngestHandler(d.Ingest, d.Students, d.Logger).Register(r)
	newVerifyHandler(d.Verify, d.Logger).Register(r)
	newProofHandler(d.Proofs, d.Logger).Register(r)
	newTemplateHandler(d.Templates, d.StorageRoot, d.Logger).Register(r)
	newCertificateHandler(d.Certs, d.Tokens, d.Audit, d.StorageRoot, d.Logger).Register(r)
	return r
}

// requestScope bridges transport values into the request context so services
// and log lines can reach them without touching net/http.
func requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		if issuer := r.Header.Get("X-Issuer"); issuer != "" {
			ctx = requestcontext.WithIssuer(ctx, issuer)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// issuerFrom extracts the caller identity or fails the request.
func issuerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	issuer := requestcontext.Issuer(r.Context())
	if issuer == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing X-Issuer header"))
		return "", false
	}
	return issuer, true
}
