package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/app"
	"scholarbridge/internal/transport/http/response"
)

const maxWebhookBody = 1 << 20

type WebhookIntake interface {
	Handle(ctx context.Context, body []byte) (*app.IntakeResult, error)
}

type WebhookHandler struct {
	intake WebhookIntake
}

func NewWebhookHandler(intake WebhookIntake) *WebhookHandler {
	return &WebhookHandler{intake: intake}
}

// Receive answers 200 once inline provisioning finished (or the delivery was
// ignored), 202 when the events were queued, 4xx for payloads the sender
// should not redeliver and 503 for failures it should.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read request body failed")
		return
	}
	if len(body) > maxWebhookBody {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "payload too large")
		return
	}

	result, err := h.intake.Handle(c.Request.Context(), body)
	if err != nil {
		_ = c.Error(err)
		var data interface{}
		if result != nil {
			data = result
		}
		response.FromError(c, err, data)
		return
	}

	status := http.StatusOK
	if result.Status == "accepted" {
		status = http.StatusAccepted
	}
	response.JSON(c, status, result)
}
