// Package render turns a ProfileViewModel into a PDF document.
package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

const (
	pageMargin   = 18.0
	lineHeight   = 6.0
	labelWidth   = 48.0
	photoGap     = 6.0
	bottomMargin = 20.0
	fontFamily   = "DejaVu"
	photoImage   = "student-photo"
	producerName = "scholarbridge"
	noPhotoLabel = "No photo"
)

type Options struct {
	TemplateDir     string
	DefaultTemplate string
	Compress        bool
}

// Renderer is safe for concurrent use. Layouts are loaded once at
// construction and never modified afterwards.
type Renderer struct {
	layouts         map[string]*compiled
	defaultTemplate string
	compress        bool
}

func New(opts Options) (*Renderer, error) {
	layouts, err := loadLayouts(opts.TemplateDir)
	if err != nil {
		return nil, err
	}
	def := opts.DefaultTemplate
	if def == "" {
		def = "sponsor-profile"
	}
	if _, ok := layouts[def]; !ok {
		return nil, fmt.Errorf("%w: default template %q is not defined", apperr.ErrTemplate, def)
	}
	return &Renderer{
		layouts:         layouts,
		defaultTemplate: def,
		compress:        opts.Compress,
	}, nil
}

// Templates lists the available template ids.
func (r *Renderer) Templates() []string {
	ids := make([]string, 0, len(r.layouts))
	for id := range r.layouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render produces the PDF bytes for vm. An empty templateID selects the
// default template. vm is only read.
func (r *Renderer) Render(vm *model.ProfileViewModel, templateID string) ([]byte, error) {
	if vm == nil {
		return nil, fmt.Errorf("%w: nil view model", apperr.ErrRender)
	}
	if templateID == "" {
		templateID = r.defaultTemplate
	}
	layout, ok := r.layouts[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template %q", apperr.ErrTemplate, templateID)
	}

	doc, err := layout.bind(vm)
	if err != nil {
		return nil, err
	}

	out, err := r.synthesize(doc, vm)
	if err != nil {
		return nil, err
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Renderer) synthesize(doc *bound, vm *model.ProfileViewModel) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(vm.GeneratedAt)
	pdf.SetModificationDate(vm.GeneratedAt)
	pdf.SetCompression(r.compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.AliasNbPages("")

	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	if err := fonts.check(doc); err != nil {
		return nil, err
	}
	pdf.AddUTF8FontFromBytes(fontFamily, "", fonts.regular.data)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fonts.bold.data)

	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(producerName, true)
	pdf.SetCreator(producerName, true)

	footer := doc.Footer
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.SetX(pageMargin)
		pdf.CellFormat(0, 5, footer, "", 0, "L", false, 0, "")
		pdf.SetX(pageMargin)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	textW := contentW
	photoBottom := pageMargin
	if doc.Photo.Show {
		textW = contentW - doc.Photo.WidthMM - photoGap
		x := pageW - pageMargin - doc.Photo.WidthMM
		if err := drawPhoto(pdf, doc.Photo, vm.Photo, x, pageMargin); err != nil {
			return nil, err
		}
		photoBottom = pageMargin + doc.Photo.HeightMM
	}

	pdf.SetXY(pageMargin, pageMargin)
	pdf.SetTextColor(20, 40, 80)
	pdf.SetFont(fontFamily, "B", 20)
	pdf.MultiCell(textW, 9, doc.Header, "", "L", false)
	if doc.Subheader != "" {
		pdf.SetFont(fontFamily, "", 11)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(textW, lineHeight, doc.Subheader, "", "L", false)
	}
	pdf.SetY(max(pdf.GetY(), photoBottom) + photoGap)

	for _, section := range doc.Sections {
		drawSection(pdf, section, contentW)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: synthesize pdf: %w", apperr.ErrRender, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: write pdf: %w", apperr.ErrRender, err)
	}
	return buf.Bytes(), nil
}

func drawPhoto(pdf *fpdf.Fpdf, box PhotoBox, asset model.PhotoAsset, x, y float64) error {
	if asset.Placeholder || len(asset.Data) == 0 {
		pdf.SetDrawColor(170, 170, 170)
		pdf.SetFillColor(240, 240, 240)
		pdf.Rect(x, y, box.WidthMM, box.HeightMM, "FD")
		label := box.Placeholder
		if label == "" {
			label = noPhotoLabel
		}
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(120, 120, 120)
		pdf.SetXY(x, y+box.HeightMM/2-3)
		pdf.CellFormat(box.WidthMM, 6, label, "", 0, "C", false, 0, "")
		return nil
	}

	imageType, err := fpdfImageType(asset.ImageType)
	if err != nil {
		return err
	}
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(photoImage, opts, bytes.NewReader(asset.Data))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("%w: register photo: %w", apperr.ErrRender, err)
	}

	w, h := box.WidthMM, box.HeightMM
	if asset.Width > 0 && asset.Height > 0 {
		// keep aspect ratio inside the box
		ratio := float64(asset.Width) / float64(asset.Height)
		if w/h > ratio {
			w = h * ratio
		} else {
			h = w / ratio
		}
	}
	pdf.ImageOptions(photoImage, x+(box.WidthMM-w)/2, y+(box.HeightMM-h)/2, w, h, false, opts, 0, "")
	return nil
}

func fpdfImageType(t string) (string, error) {
	switch strings.ToLower(t) {
	case "jpeg", "jpg", "":
		return "JPG", nil
	case "png":
		return "PNG", nil
	case "gif":
		return "GIF", nil
	}
	return "", fmt.Errorf("%w: unsupported image type %q", apperr.ErrRender, t)
}

func drawSection(pdf *fpdf.Fpdf, section boundSection, contentW float64) {
	_, pageH := pdf.GetPageSize()
	// keep a section title together with its first row
	if pdf.GetY()+3*lineHeight > pageH-bottomMargin {
		pdf.AddPage()
	}

	pdf.SetFont(fontFamily, "B", 13)
	pdf.SetTextColor(20, 40, 80)
	pdf.CellFormat(contentW, 8, section.Title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)

	for _, row := range section.Rows {
		if pdf.GetY()+lineHeight > pageH-bottomMargin {
			pdf.AddPage()
		}
		y := pdf.GetY()

		pdf.SetXY(pageMargin, y)
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(labelWidth, lineHeight, row.Label, "", "L", false)
		labelBottom := pdf.GetY()

		pdf.SetXY(pageMargin+labelWidth, y)
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(0, 0, 0)
		if row.Value == model.PlaceholderValue {
			pdf.SetTextColor(140, 140, 140)
		}
		pdf.MultiCell(contentW-labelWidth, lineHeight, row.Value, "", "L", false)

		pdf.SetY(max(labelBottom, pdf.GetY()) + 1)
	}
	pdf.Ln(4)
}

func validationConfig() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// Validate checks that b is a structurally sound PDF.
func Validate(b []byte) error {
	if err := api.Validate(bytes.NewReader(b), validationConfig()); err != nil {
		return fmt.Errorf("%w: validate pdf: %w", apperr.ErrRender, err)
	}
	return nil
}

func PageCount(b []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(b), validationConfig())
	if err != nil {
		return 0, fmt.Errorf("%w: count pages: %w", apperr.ErrRender, err)
	}
	return n, nil
}
