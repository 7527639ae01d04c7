// Package recordstore talks to the Baserow REST API that holds student rows.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/config"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/retry"
)

const maxResponseBytes = 4 << 20

// CredentialSource hands out the API token for each outbound call.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource for a database token that never rotates.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("baserow token is not configured")
	}
	return string(t), nil
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	tableID    string
	creds      CredentialSource
	columns    config.RecordColumns
	policy     retry.Policy
}

func New(cfg config.BaserowConfig, columns config.RecordColumns, creds CredentialSource, policy retry.Policy) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		tableID:    cfg.TableID,
		creds:      creds,
		columns:    columns,
		policy:     policy,
	}
}

// Get fetches one row and decodes it into a StudentRecord.
func (c *Client) Get(ctx context.Context, recordID string) (*model.StudentRecord, error) {
	row, err := c.GetRow(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return DecodeRecord(row, c.columns), nil
}

// GetRow returns the raw row keyed by user field names.
func (c *Client) GetRow(ctx context.Context, recordID string) (map[string]any, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, apperr.Validation("record id is empty")
	}

	raw, err := c.do(ctx, "get row", http.MethodGet, recordID, nil)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("parse baserow row failed: %w", err)
	}
	return row, nil
}

// Patch writes only the fields set in patch. Columns not named in the body
// are left untouched by Baserow.
func (c *Client) Patch(ctx context.Context, recordID string, patch model.RecordPatch) error {
	if strings.TrimSpace(recordID) == "" {
		return apperr.Validation("record id is empty")
	}
	body := c.patchBody(patch)
	if len(body) == 0 {
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal patch body failed: %w", err)
	}
	_, err = c.do(ctx, "patch row", http.MethodPatch, recordID, payload)
	return err
}

func (c *Client) patchBody(patch model.RecordPatch) map[string]string {
	body := make(map[string]string, 3)
	if patch.FolderLink != "" && c.columns.FolderLink != "" {
		body[c.columns.FolderLink] = patch.FolderLink
	}
	if patch.FolderID != "" && c.columns.FolderID != "" {
		body[c.columns.FolderID] = patch.FolderID
	}
	if patch.ProfileLink != "" && c.columns.ProfileLink != "" {
		body[c.columns.ProfileLink] = patch.ProfileLink
	}
	return body
}

func (c *Client) rowURL(recordID string) string {
	return fmt.Sprintf("%s/%s/%s/?user_field_names=true",
		c.apiURL,
		url.PathEscape(c.tableID),
		url.PathEscape(recordID),
	)
}

func (c *Client) do(ctx context.Context, op, method, recordID string, body []byte) ([]byte, error) {
	var out []byte
	err := retry.Do(ctx, op, c.policy, func(ctx context.Context) error {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return &apperr.UpstreamError{Op: op, Err: fmt.Errorf("resolve credential: %w", err)}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.rowURL(recordID), reader)
		if err != nil {
			return fmt.Errorf("build baserow request failed: %w", err)
		}
		req.Header.Set("Authorization", "Token "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &apperr.UpstreamError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return &apperr.UpstreamError{Op: op, Err: fmt.Errorf("read response: %w", err)}
		}
		if resp.StatusCode >= 300 {
			return &apperr.UpstreamError{Op: op, Status: resp.StatusCode, Body: truncate(string(raw), 512)}
		}
		out = raw
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("baserow %s %s: %w", op, recordID, err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
