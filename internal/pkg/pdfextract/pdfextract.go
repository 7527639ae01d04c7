// Package pdfextract reads the text layer back out of rendered documents.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractBytes returns the text of every page, one page per line block.
// Returns empty string and nil error if the PDF has no extractable text.
func ExtractBytes(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	pages, err := Pages(b)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n"), nil
}

// Pages returns the text of each page in order.
func Pages(b []byte) ([]string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	pages := make([]string, 0, pdfReader.NumPage())
	for i := 1; i <= pdfReader.NumPage(); i++ {
		p := pdfReader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := pageText(p)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pageText walks the content stream the way pdf.Page.GetPlainText does, but
// decodes Identity-H fonts through parseToUnicode.
func pageText(p pdf.Page) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = errors.New(fmt.Sprint(r))
		}
	}()

	strm := p.V.Key("Contents")
	if strm.Kind() == pdf.Null {
		return "", nil
	}

	decoders := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		decoders[name] = fontDecoder(p.Font(name))
	}

	var sb strings.Builder
	var enc pdf.TextEncoding
	show := func(raw string) {
		if enc == nil {
			return
		}
		sb.WriteString(enc.Decode(raw))
	}

	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "BT", "T*":
			sb.WriteString("\n")
		case "Tf":
			if len(args) != 2 {
				panic("bad Tf operator")
			}
			enc = decoders[args[0].Name()]
		case "Tj", "'":
			if len(args) != 1 {
				panic("bad " + op + " operator")
			}
			show(args[0].RawString())
		case "\"":
			if len(args) != 3 {
				panic("bad \" operator")
			}
			show(args[2].RawString())
		case "TJ":
			if len(args) != 1 {
				panic("bad TJ operator")
			}
			v := args[0]
			for i := 0; i < v.Len(); i++ {
				if x := v.Index(i); x.Kind() == pdf.String {
					show(x.RawString())
				}
			}
		}
	})
	return sb.String(), nil
}

func fontDecoder(f pdf.Font) pdf.TextEncoding {
	if f.V.Key("Subtype").Name() == "Type0" && f.V.Key("Encoding").Name() == "Identity-H" {
		if cmap := f.V.Key("ToUnicode"); cmap.Kind() == pdf.Stream {
			if m, err := readToUnicode(cmap); err == nil {
				return m
			}
		}
	}
	return f.Encoder()
}

// Normalize drops all whitespace so that assertions survive the extractor's
// line and word splitting.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}
