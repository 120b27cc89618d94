package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"certproof/internal/domain"
)

const certsSubdir = "certs"

// TokenIssuer is the slice of the token service the renderer needs.
type TokenIssuer interface {
	Issue(studentID, certID int64) (string, error)
}

// Renderer turns a template image, a layout, and a student record into a
// certificate artifact. It is decoupled from any fixed schema: whichever
// record fields the layout positions get drawn, nothing else.
type Renderer struct {
	storageRoot string
	fontPath    string
	tokens      TokenIssuer
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

func New(storageRoot, fontPath string, tokens TokenIssuer, logger *slog.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		storageRoot: storageRoot,
		fontPath:    fontPath,
		tokens:      tokens,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render produces the certificate artifact and returns its path relative to
// the storage root, forward slashes regardless of host OS. templatePath may
// be empty; a missing or unreadable template degrades to the plain-text
// artifact instead of failing the row.
func (r *Renderer) Render(templatePath string, layout domain.Layout, student domain.StudentRecord, certID int64) (string, error) {
	if templatePath == "" {
		return r.renderPlain(student, certID)
	}
	canvas, err := r.loadTemplate(templatePath)
	if err != nil {
		r.logger.Warn("template unreadable, falling back to plain artifact",
			"template", templatePath, "cert_id", certID, "error", err)
		return r.renderPlain(student, certID)
	}
	return r.renderImage(canvas, layout, student, certID)
}

func (r *Renderer) loadTemplate(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
	return canvas, nil
}

// renderPlain emits the minimal templateless artifact: enough to identify the
// issuance without any layout at all.
func (r *Renderer) renderPlain(student domain.StudentRecord, certID int64) (string, error) {
	dir := filepath.Join(r.storageRoot, certsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("certificate_%d.txt", certID))

	var b strings.Builder
	fmt.Fprintf(&b, "Certificate #%d\n", certID)
	fmt.Fprintf(&b, "Student: %s\n", student.DisplayName())
	fmt.Fprintf(&b, "ID: %d\n", student.ID)
	fmt.Fprintf(&b, "Issued: %s\n", r.now().UTC().Format(time.RFC3339))

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return r.relative(path)
}

func (r *Renderer) renderImage(canvas *image.RGBA, layout domain.Layout, student domain.StudentRecord, certID int64) (string, error) {
	faceLarge := loadFace(r.fontPath, layout.FontSize)
	faceSmall := loadFace(r.fontPath, layout.FontSizeSmall)

	signed, err := r.tokens.Issue(student.ID, certID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	code, err := qrImage(signed, layout.QRSize)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	r.pasteQR(canvas, layout, code)

	// Standard fields only render when the layout positions them.
	if geom, ok := layout.Fields["name"]; ok && geom.Point != nil {
		drawText(canvas, faceLarge, *geom.Point, student.DisplayName())
	}
	if geom, ok := layout.Fields["cert_no"]; ok && geom.Point != nil {
		drawText(canvas, faceLarge, *geom.Point, domain.CertNumber(certID))
	}
	if geom, ok := layout.Fields["date"]; ok && geom.Point != nil {
		drawText(canvas, faceLarge, *geom.Point, r.now().UTC().Format("2006-01-02"))
	}

	r.drawDiscoveredFields(canvas, layout, student, faceLarge, faceSmall)

	dir := filepath.Join(r.storageRoot, certsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	pngPath := filepath.Join(dir, fmt.Sprintf("cert_%d.png", certID))
	if err := savePNG(pngPath, canvas); err != nil {
		return "", err
	}

	// PDF export is a best-effort enhancement; the raster stays the artifact
	// of record when it fails.
	pdfPath := filepath.Join(dir, fmt.Sprintf("cert_%d.pdf", certID))
	if err := writePDF(pdfPath, pngPath, canvas.Bounds()); err != nil {
		r.logger.Warn("pdf export failed, keeping raster artifact",
			"cert_id", certID, "error", err)
		return r.relative(pngPath)
	}
	return r.relative(pdfPath)
}

func (r *Renderer) pasteQR(canvas *image.RGBA, layout domain.Layout, code image.Image) {
	size := code.Bounds().Dx()
	pos := image.Pt(
		canvas.Bounds().Max.X-size-50,
		canvas.Bounds().Max.Y-size-50,
	)
	if geom, ok := layout.Fields["qr"]; ok && geom.Point != nil {
		pos = image.Pt(geom.Point.X, geom.Point.Y)
	}
	target := image.Rectangle{Min: pos, Max: pos.Add(image.Pt(size, size))}
	draw.Draw(canvas, target, code, code.Bounds().Min, draw.Over)
}

// drawDiscoveredFields handles every layout position beyond the standard
// three: the field name is matched case-insensitively against the record's
// columns, so institutions position arbitrary CSV columns with no code change.
func (r *Renderer) drawDiscoveredFields(canvas *image.RGBA, layout domain.Layout, student domain.StudentRecord, faceLarge, faceSmall font.Face) {
	for name, geom := range layout.Fields {
		switch name {
		case "name", "cert_no", "date", "qr":
			continue
		}
		value, ok := lookupField(student.Data, name)
		if !ok {
			continue
		}
		switch {
		case geom.LabelValue != nil:
			drawText(canvas, faceSmall, geom.LabelValue.Label, prettifyLabel(name))
			drawText(canvas, faceLarge, geom.LabelValue.Value, value)
		case geom.Point != nil:
			drawText(canvas, faceLarge, *geom.Point, value)
		}
	}
}

func lookupField(data map[string]string, name string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for key, value := range data {
		if strings.ToLower(strings.TrimSpace(key)) == want {
			return value, true
		}
	}
	return "", false
}

// prettifyLabel turns a column name into a printable label:
// "graduation_year" -> "Graduation Year:".
func prettifyLabel(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + ":"
}

func drawText(canvas *image.RGBA, face font.Face, at domain.Point, text string) {
	drawer := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(at.X, at.Y),
	}
	drawer.DrawString(text)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// relative normalizes an artifact path to storage-root-relative with forward
// slashes so stored paths are portable across hosts.
func (r *Renderer) relative(path string) (string, error) {
	rel, err := filepath.Rel(r.storageRoot, path)
	if err != nil {
		return "", fmt.Errorf("relativize artifact path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}
