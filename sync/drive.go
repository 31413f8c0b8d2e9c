package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	driveFolderType = "application/vnd.google-apps.folder"
	driveFileFields = "id,name,mimeType,size,modifiedTime,trashed"
	driveListChunk  = 1000
	// Files up to this size go up in one request, larger ones as a
	// resumable upload in chunks of this size.
	driveChunkSize = 8 << 20
)

// DriveOptions tunes a DriveRemote.
type DriveOptions struct {
	UseTrash bool               // trash deleted files instead of removing them
	Retry    Retry              // DefaultRetry when zero
	Log      logrus.FieldLogger // defaults to the standard logger
}

// DriveRemote stores files in Google Drive, including shared drives.
type DriveRemote struct {
	svc      *drive.Service
	useTrash bool
	retry    Retry
	log      logrus.FieldLogger
}

// NewDriveRemote creates a DriveRemote on an authenticated service.
func NewDriveRemote(svc *drive.Service, opts DriveOptions) *DriveRemote {
	if opts.Retry == (Retry{}) {
		opts.Retry = DefaultRetry
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &DriveRemote{
		svc:      svc,
		useTrash: opts.UseTrash,
		retry:    opts.Retry,
		log:      opts.Log,
	}
}

func (d *DriveRemote) Folder(ctx context.Context, id string) (*Entry, error) {
	var f *drive.File
	err := d.retry.do(ctx, d.log, "get", func() (err error) {
		f, err = d.svc.Files.Get(id).
			Fields(driveFileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	switch {
	case isDriveNotFound(err):
		return nil, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return nil, err
	case f.Trashed:
		return nil, errors.Wrapf(ErrNotFound, "%s is in the trash", id)
	case f.MimeType != driveFolderType:
		return nil, errors.Wrapf(ErrNotFolder, "%s has type %s", id, f.MimeType)
	}
	e := driveEntry(f)
	return &e, nil
}

func (d *DriveRemote) List(ctx context.Context, parentID string) ([]Entry, error) {
	call := d.svc.Files.List().
		Q(driveListQuery(parentID)).
		Fields("nextPageToken,files(" + driveFileFields + ")").
		PageSize(driveListChunk).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)

	var entries []Entry
	for {
		var page *drive.FileList
		err := d.retry.do(ctx, d.log, "list", func() (err error) {
			page, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, f := range page.Files {
			entries = append(entries, driveEntry(f))
		}
		if page.NextPageToken == "" {
			return entries, nil
		}
		call.PageToken(page.NextPageToken)
	}
}

func (d *DriveRemote) CreateFolder(ctx context.Context, parentID, name string) (*Entry, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: driveFolderType,
		Parents:  []string{parentID},
	}
	var f *drive.File
	err := d.retry.do(ctx, d.log, "mkdir", func() (err error) {
		f, err = d.svc.Files.Create(meta).
			Fields(driveFileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	e := driveEntry(f)
	return &e, nil
}

func (d *DriveRemote) Create(ctx context.Context, parentID string, obj Object) (*Entry, error) {
	meta := &drive.File{
		Name:         obj.Name,
		Parents:      []string{parentID},
		ModifiedTime: formatDriveTime(obj.ModTime),
	}
	var f *drive.File
	err := d.retry.do(ctx, d.log, "create", func() (err error) {
		if _, err = obj.Body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		f, err = d.svc.Files.Create(meta).
			Media(obj.Body, driveMediaOptions(obj)...).
			Fields(driveFileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	e := driveEntry(f)
	return &e, nil
}

func (d *DriveRemote) Update(ctx context.Context, id string, obj Object) (*Entry, error) {
	meta := &drive.File{ModifiedTime: formatDriveTime(obj.ModTime)}
	var f *drive.File
	err := d.retry.do(ctx, d.log, "update", func() (err error) {
		if _, err = obj.Body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		f, err = d.svc.Files.Update(id, meta).
			Media(obj.Body, driveMediaOptions(obj)...).
			Fields(driveFileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	e := driveEntry(f)
	return &e, nil
}

func (d *DriveRemote) Delete(ctx context.Context, id string) error {
	err := d.retry.do(ctx, d.log, "delete", func() error {
		if d.useTrash {
			_, err := d.svc.Files.Update(id, &drive.File{Trashed: true}).
				SupportsAllDrives(true).
				Context(ctx).
				Do()
			return err
		}
		return d.svc.Files.Delete(id).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	// A retried delete can find the file already gone.
	if isDriveNotFound(err) {
		return nil
	}
	return err
}

func driveMediaOptions(obj Object) []googleapi.MediaOption {
	opts := []googleapi.MediaOption{googleapi.ChunkSize(driveChunkSize)}
	if obj.MimeType != "" {
		opts = append(opts, googleapi.ContentType(obj.MimeType))
	}
	return opts
}

func driveEntry(f *drive.File) Entry {
	e := Entry{
		ID:     f.Id,
		Name:   f.Name,
		Folder: f.MimeType == driveFolderType,
		Size:   f.Size,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		e.ModTime = t
	}
	return e
}

func driveListQuery(parentID string) string {
	return fmt.Sprintf("'%s' in parents and trashed=false", escapeDriveQuery(parentID))
}

// escapeDriveQuery quotes s for use inside a single-quoted query string.
func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// Drive keeps modification times at millisecond precision; seconds are
// enough for change detection.
func formatDriveTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
