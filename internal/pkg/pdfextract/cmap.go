package pdfextract

import (
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// toUnicode decodes the two-byte codes of an Identity-H font. bfrange
// offsets are applied to the whole code, not only its last byte.
type toUnicode struct {
	chars  map[uint16][]rune
	ranges []cidRange
}

type cidRange struct {
	lo, hi uint16
	base   []rune   // string destination, last rune offset by code-lo
	each   [][]rune // array destination, one entry per code
}

func (m *toUnicode) Decode(raw string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(raw); i += 2 {
		code := uint16(raw[i])<<8 | uint16(raw[i+1])
		sb.WriteString(string(m.lookup(code)))
	}
	return sb.String()
}

func (m *toUnicode) lookup(code uint16) []rune {
	if r, ok := m.chars[code]; ok {
		return r
	}
	for _, rg := range m.ranges {
		if code < rg.lo || code > rg.hi {
			continue
		}
		off := int(code - rg.lo)
		if rg.each != nil {
			if off < len(rg.each) {
				return rg.each[off]
			}
			break
		}
		if len(rg.base) == 0 {
			break
		}
		out := append([]rune(nil), rg.base...)
		out[len(out)-1] += rune(off)
		return out
	}
	return []rune{utf8.RuneError}
}

func readToUnicode(v pdf.Value) (*toUnicode, error) {
	rc := v.Reader()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return parseToUnicode(b)
}

func parseToUnicode(b []byte) (*toUnicode, error) {
	m := &toUnicode{chars: make(map[uint16][]rune)}
	toks := tokenize(b)

	const (
		none = iota
		inChar
		inRange
	)
	mode := none
	for i := 0; i < len(toks); i++ {
		switch t := toks[i]; t {
		case "beginbfchar":
			mode = inChar
			continue
		case "beginbfrange":
			mode = inRange
			continue
		case "endbfchar", "endbfrange":
			mode = none
			continue
		}

		switch mode {
		case inChar:
			if i+1 >= len(toks) {
				return nil, errors.New("truncated bfchar")
			}
			src, err := hexCode(toks[i])
			if err != nil {
				return nil, err
			}
			dst, err := hexRunes(toks[i+1])
			if err != nil {
				return nil, err
			}
			m.chars[src] = dst
			i++
		case inRange:
			if i+2 >= len(toks) {
				return nil, errors.New("truncated bfrange")
			}
			lo, err := hexCode(toks[i])
			if err != nil {
				return nil, err
			}
			hi, err := hexCode(toks[i+1])
			if err != nil {
				return nil, err
			}
			rg := cidRange{lo: lo, hi: hi}
			i += 2
			if toks[i] == "[" {
				for i++; i < len(toks) && toks[i] != "]"; i++ {
					r, err := hexRunes(toks[i])
					if err != nil {
						return nil, err
					}
					rg.each = append(rg.each, r)
				}
			} else {
				if rg.base, err = hexRunes(toks[i]); err != nil {
					return nil, err
				}
			}
			m.ranges = append(m.ranges, rg)
		}
	}
	if len(m.chars) == 0 && len(m.ranges) == 0 {
		return nil, errors.New("empty cmap")
	}
	return m, nil
}

// tokenize keeps hex strings (with brackets), array brackets and bare
// operators. Names, literal strings, dictionaries and comments are dropped.
func tokenize(b []byte) []string {
	var toks []string
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case isSpace(c):
			i++
		case c == '%':
			for i < len(b) && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		case c == '<' && i+1 < len(b) && b[i+1] == '<', c == '>' && i+1 < len(b) && b[i+1] == '>':
			i += 2
		case c == '<':
			j := i + 1
			for j < len(b) && b[j] != '>' {
				j++
			}
			toks = append(toks, string(b[i:min(j+1, len(b))]))
			i = j + 1
		case c == '[' || c == ']':
			toks = append(toks, string(c))
			i++
		case c == '(':
			depth := 0
			for ; i < len(b); i++ {
				if b[i] == '\\' {
					i++
					continue
				}
				if b[i] == '(' {
					depth++
				} else if b[i] == ')' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
			}
		case c == '/':
			i++
			for i < len(b) && !isSpace(b[i]) && !isDelim(b[i]) {
				i++
			}
		default:
			j := i
			for j < len(b) && !isSpace(b[j]) && !isDelim(b[j]) {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, string(b[i:j]))
			i = j
		}
	}
	return toks
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func hexBytes(tok string) ([]byte, error) {
	if len(tok) < 2 || tok[0] != '<' || tok[len(tok)-1] != '>' {
		return nil, errors.New("expected hex string, got " + tok)
	}
	s := strings.Join(strings.Fields(tok[1:len(tok)-1]), "")
	if len(s)%2 == 1 {
		s += "0"
	}
	return hex.DecodeString(s)
}

func hexCode(tok string) (uint16, error) {
	b, err := hexBytes(tok)
	if err != nil {
		return 0, err
	}
	var code uint16
	for _, c := range b {
		code = code<<8 | uint16(c)
	}
	return code, nil
}

func hexRunes(tok string) ([]rune, error) {
	b, err := hexBytes(tok)
	if err != nil {
		return nil, err
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return utf16.Decode(units), nil
}
