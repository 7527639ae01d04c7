package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scholarbridge/internal/config"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/retry"
)

const minioMarker = ".keep"

// MinioProvisioner keeps a "<name>/.keep" object per folder in one bucket.
type MinioProvisioner struct {
	client     *minio.Client
	bucket     string
	consoleURL string
	policy     retry.Policy
}

func NewMinioProvisioner(cfg config.MinioConfig, policy retry.Policy) (*MinioProvisioner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	consoleURL := strings.TrimRight(cfg.ConsoleURL, "/")
	if consoleURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		consoleURL = scheme + "://" + cfg.Endpoint
	}
	return &MinioProvisioner{
		client:     client,
		bucket:     cfg.Bucket,
		consoleURL: consoleURL,
		policy:     policy,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (p *MinioProvisioner) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check minio bucket failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create minio bucket failed: %w", err)
	}
	return nil
}

func (p *MinioProvisioner) EnsureFolder(ctx context.Context, name string) (model.FolderReference, error) {
	if err := validateName(name); err != nil {
		return model.FolderReference{}, err
	}
	key := name + "/" + minioMarker

	err := retry.Do(ctx, "minio ensure folder", p.policy, func(ctx context.Context) error {
		_, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return nil
		}
		if resp := minio.ToErrorResponse(err); resp.Code != "NoSuchKey" {
			return upstream("minio stat marker", resp.StatusCode, resp.Message, err)
		}

		_, err = p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
			ContentType: "application/x-directory",
		})
		if err != nil {
			resp := minio.ToErrorResponse(err)
			return upstream("minio put marker", resp.StatusCode, resp.Message, err)
		}
		return nil
	})
	if err != nil {
		return model.FolderReference{}, fmt.Errorf("ensure minio folder %q failed: %w", name, err)
	}
	return model.FolderReference{
		ProviderFolderID: p.bucket + "/" + name + "/",
		ShareableLink:    p.consoleURL + "/" + p.bucket + "/" + escapeSegments(name) + "/",
	}, nil
}
