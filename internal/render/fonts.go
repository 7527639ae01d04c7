package render

import (
	_ "embed"
	"fmt"
	"sync"
	"unicode"

	"golang.org/x/image/font/sfnt"

	"scholarbridge/internal/apperr"
)

// DejaVu Sans Condensed covers Latin, Greek, Cyrillic and Arabic. Text is
// drawn in logical order without Arabic shaping.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	regularTTF []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	boldTTF []byte
)

type face struct {
	data []byte
	font *sfnt.Font
}

// covers reports whether every visible rune of s has a glyph.
func (f face) covers(s string) (rune, bool) {
	var buf sfnt.Buffer
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		idx, err := f.font.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			return r, false
		}
	}
	return 0, true
}

type fontSet struct {
	regular face
	bold    face
}

var loadFonts = sync.OnceValues(func() (*fontSet, error) {
	regular, err := sfnt.Parse(regularTTF)
	if err != nil {
		return nil, fmt.Errorf("%w: parse regular font: %w", apperr.ErrRender, err)
	}
	bold, err := sfnt.Parse(boldTTF)
	if err != nil {
		return nil, fmt.Errorf("%w: parse bold font: %w", apperr.ErrRender, err)
	}
	return &fontSet{
		regular: face{data: regularTTF, font: regular},
		bold:    face{data: boldTTF, font: bold},
	}, nil
})

// check fails with ErrRender when a drawn string has a rune the embedded
// fonts cannot show.
func (fs *fontSet) check(doc *bound) error {
	type drawn struct {
		text string
		face face
	}
	items := []drawn{
		{doc.Header, fs.bold},
		{doc.Subheader, fs.regular},
		{doc.Footer, fs.regular},
	}
	if doc.Photo.Show {
		label := doc.Photo.Placeholder
		if label == "" {
			label = noPhotoLabel
		}
		items = append(items, drawn{label, fs.regular})
	}
	for _, section := range doc.Sections {
		items = append(items, drawn{section.Title, fs.bold})
		for _, row := range section.Rows {
			items = append(items, drawn{row.Label, fs.bold}, drawn{row.Value, fs.regular})
		}
	}

	for _, it := range items {
		if r, ok := it.face.covers(it.text); !ok {
			return fmt.Errorf("%w: %q has no glyph for %U", apperr.ErrRender, it.text, r)
		}
	}
	return nil
}
