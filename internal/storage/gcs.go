package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"scholarbridge/internal/config"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/retry"
)

const gcsConsoleURL = "https://console.cloud.google.com/storage/browser/"

// GCSProvisioner represents a folder as a zero-byte "<prefix>/<name>/" marker
// object. The marker is written with a DoesNotExist precondition, so a
// concurrent or repeated create collapses onto the first one.
type GCSProvisioner struct {
	client *gcs.Client
	bucket string
	prefix string
	policy retry.Policy
}

func NewGCSProvisioner(ctx context.Context, cfg config.GCSConfig, policy retry.Policy, opts ...option.ClientOption) (*GCSProvisioner, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is not configured")
	}
	if len(opts) == 0 && cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}
	return &GCSProvisioner{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		policy: policy,
	}, nil
}

func (p *GCSProvisioner) Close() error {
	return p.client.Close()
}

func (p *GCSProvisioner) EnsureFolder(ctx context.Context, name string) (model.FolderReference, error) {
	if err := validateName(name); err != nil {
		return model.FolderReference{}, err
	}
	object := p.objectName(name)

	err := retry.Do(ctx, "gcs ensure folder", p.policy, func(ctx context.Context) error {
		w := p.client.Bucket(p.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "application/x-directory"
		if err := w.Close(); err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
				return nil
			}
			if errors.As(err, &gerr) {
				return upstream("gcs create marker", gerr.Code, gerr.Message, err)
			}
			return upstream("gcs create marker", 0, "", err)
		}
		return nil
	})
	if err != nil {
		return model.FolderReference{}, fmt.Errorf("ensure gcs folder %q failed: %w", name, err)
	}
	return model.FolderReference{
		ProviderFolderID: "gs://" + p.bucket + "/" + object,
		ShareableLink:    gcsConsoleURL + p.bucket + "/" + escapeSegments(object),
	}, nil
}

func (p *GCSProvisioner) objectName(name string) string {
	if p.prefix == "" {
		return name + "/"
	}
	return path.Join(p.prefix, name) + "/"
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
