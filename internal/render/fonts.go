package render

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// loadFace opens the configured TTF at the requested size. A missing or
// unreadable font degrades to the built-in bitmap face rather than failing the
// render.
func loadFace(fontPath string, size int) font.Face {
	face, err := openFace(fontPath, size)
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

func openFace(fontPath string, size int) (font.Face, error) {
	if fontPath == "" {
		return nil, fmt.Errorf("no font configured")
	}
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build face: %w", err)
	}
	return face, nil
}
