package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/pkg/logger"
	"scholarbridge/internal/pkg/retry"
)

// HTTPPhotoFetcher downloads photo files referenced by a record, with a size
// limit and an optional byte cache in front.
type HTTPPhotoFetcher struct {
	client   *http.Client
	maxBytes int64
	cache    PhotoCache
	policy   retry.Policy
}

func NewHTTPPhotoFetcher(timeout time.Duration, maxBytes int64, cache PhotoCache, policy retry.Policy) *HTTPPhotoFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return &HTTPPhotoFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		cache:    cache,
		policy:   policy,
	}
}

func (f *HTTPPhotoFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		data, ok, err := f.cache.Get(ctx, url)
		if err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "photo cache read failed", logger.Err(err))
		}
		if ok {
			return data, nil
		}
	}

	var data []byte
	err := retry.Do(ctx, "fetch photo", f.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return apperr.Validation("invalid photo url")
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return &apperr.UpstreamError{Op: "fetch photo", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &apperr.UpstreamError{Op: "fetch photo", Status: resp.StatusCode}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return &apperr.UpstreamError{Op: "read photo", Err: err}
		}
		if int64(len(body)) > f.maxBytes {
			return apperr.Validation(fmt.Sprintf("photo exceeds %d bytes", f.maxBytes))
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, url, data); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "photo cache write failed", logger.Err(err))
		}
	}
	return data, nil
}
