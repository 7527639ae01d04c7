package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"scholarbridge/internal/config"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/retry"
)

const (
	folderMimeType  = "application/vnd.google-apps.folder"
	driveFolderURL  = "https://drive.google.com/drive/folders/"
	driveFileFields = "id, webViewLink"
)

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

type DriveProvisioner struct {
	files       *drive.FilesService
	permissions *drive.PermissionsService
	parentID    string
	sharePublic bool
	policy      retry.Policy
}

// NewDriveProvisioner builds a Drive v3 client. Without explicit options the
// service account file from cfg is used.
func NewDriveProvisioner(ctx context.Context, cfg config.DriveConfig, policy retry.Policy, opts ...option.ClientOption) (*DriveProvisioner, error) {
	if len(opts) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, fmt.Errorf("drive credentials file is not configured")
		}
		opts = append(opts,
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(drive.DriveScope),
		)
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service failed: %w", err)
	}
	return &DriveProvisioner{
		files:       svc.Files,
		permissions: svc.Permissions,
		parentID:    cfg.ParentFolderID,
		sharePublic: cfg.SharePublic,
		policy:      policy,
	}, nil
}

func (p *DriveProvisioner) EnsureFolder(ctx context.Context, name string) (model.FolderReference, error) {
	if err := validateName(name); err != nil {
		return model.FolderReference{}, err
	}

	var ref model.FolderReference
	err := retry.Do(ctx, "drive ensure folder", p.policy, func(ctx context.Context) error {
		found, err := p.find(ctx, name)
		if err != nil {
			return err
		}
		if found == nil {
			found, err = p.create(ctx, name)
			if err != nil {
				return err
			}
		} else {
			slog.InfoContext(ctx, "reusing existing drive folder", "folder_id", found.Id, "name", name)
		}
		if p.sharePublic {
			if err := p.share(ctx, found.Id); err != nil {
				return err
			}
		}
		ref = driveReference(found)
		return nil
	})
	if err != nil {
		return model.FolderReference{}, fmt.Errorf("ensure drive folder %q failed: %w", name, err)
	}
	return ref, nil
}

func (p *DriveProvisioner) find(ctx context.Context, name string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", queryEscaper.Replace(name), folderMimeType)
	if p.parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", queryEscaper.Replace(p.parentID))
	}

	list, err := p.files.List().
		Q(q).
		Fields(googleapi.Field("files(" + driveFileFields + ")")).
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("drive list folders", err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

func (p *DriveProvisioner) create(ctx context.Context, name string) (*drive.File, error) {
	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if p.parentID != "" {
		meta.Parents = []string{p.parentID}
	}
	file, err := p.files.Create(meta).
		Fields(driveFileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("drive create folder", err)
	}
	slog.InfoContext(ctx, "drive folder created", "folder_id", file.Id, "name", name)
	return file, nil
}

func (p *DriveProvisioner) share(ctx context.Context, fileID string) error {
	_, err := p.permissions.Create(fileID, &drive.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return driveError("drive create permission", err)
	}
	return nil
}

func driveReference(f *drive.File) model.FolderReference {
	link := f.WebViewLink
	if link == "" {
		link = driveFolderURL + f.Id
	}
	return model.FolderReference{ProviderFolderID: f.Id, ShareableLink: link}
}

func driveError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return upstream(op, gerr.Code, gerr.Message, err)
	}
	return upstream(op, 0, "", err)
}
