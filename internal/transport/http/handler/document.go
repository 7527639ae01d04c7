package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/model"
	"scholarbridge/internal/transport/http/response"
)

type DocumentGenerator interface {
	Generate(ctx context.Context, recordID, templateID string) (*model.RenderedDocument, error)
}

type DocumentHandler struct {
	documents DocumentGenerator
}

func NewDocumentHandler(documents DocumentGenerator) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Profile streams the rendered profile. The document is complete before the
// first byte is written; failures are answered with a JSON error instead.
func (h *DocumentHandler) Profile(c *gin.Context) {
	doc, err := h.documents.Generate(c.Request.Context(), c.Param("id"), c.Query("template"))
	if err != nil {
		_ = c.Error(err)
		response.FromError(c, err, nil)
		return
	}

	c.Header("Content-Disposition", contentDisposition(doc.Filename, doc.UnicodeFilename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// contentDisposition adds an RFC 6266 filename* parameter when the Unicode
// name differs from the ASCII fallback.
func contentDisposition(ascii, unicodeName string) string {
	v := fmt.Sprintf(`attachment; filename="%s"`, ascii)
	if unicodeName == "" || unicodeName == ascii {
		return v
	}
	return v + "; filename*=UTF-8''" + encodeExtValue(unicodeName)
}

// encodeExtValue percent-encodes every byte outside the RFC 5987 attr-char set.
func encodeExtValue(s string) string {
	const upperhex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&0x0f])
	}
	return sb.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
