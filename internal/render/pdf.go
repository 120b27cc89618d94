package render

import (
	"fmt"
	"image"
	"os"

	"github.com/go-pdf/fpdf"
)

// writePDF wraps the rendered raster in a single-page document sized to the
// image. Callers treat failure as non-fatal.
func writePDF(pdfPath, pngPath string, bounds image.Rectangle) error {
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())
	if width <= 0 || height <= 0 {
		return fmt.Errorf("empty canvas")
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: width, Ht: height},
	})
	doc.AddPage()

	f, err := os.Open(pngPath)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("certificate", opts, f)
	doc.ImageOptions("certificate", 0, 0, width, height, false, opts, 0, "")

	if err := doc.OutputFileAndClose(pdfPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
