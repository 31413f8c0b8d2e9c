package sync

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Overwrite selects what happens to a local file whose name already exists
// in the remote folder.
type Overwrite string

const (
	// OverwriteChanged replaces the remote file when its size or
	// modification time differs from the local file.
	OverwriteChanged Overwrite = "changed"
	// OverwriteAlways replaces the remote file unconditionally.
	OverwriteAlways Overwrite = "always"
	// OverwriteNever keeps the remote file.
	OverwriteNever Overwrite = "never"
)

// ParseOverwrite converts a policy name into an Overwrite.
func ParseOverwrite(s string) (Overwrite, error) {
	switch o := Overwrite(strings.ToLower(strings.TrimSpace(s))); o {
	case OverwriteChanged, OverwriteAlways, OverwriteNever:
		return o, nil
	}
	return "", errors.Errorf("unknown overwrite policy %q (want changed, always or never)", s)
}

// Action is what happened to a single local file.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// UploadFile copies the local file path into the remote folder parentID.
// An existing remote file of the same name is handled according to
// opts.Overwrite; opts.Src and opts.FolderID are not used.
func UploadFile(ctx context.Context, opts Options, path, parentID string) (Action, error) {
	opts = opts.withDefaults()
	info, err := opts.Fs.Stat(path)
	if err != nil {
		return "", errors.Wrap(err, "stat")
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return "", errors.Errorf("%s is not a regular file", path)
	}

	l, err := listFolder(ctx, opts.Dst, parentID)
	if err != nil {
		return "", err
	}
	var existing *Entry
	if e, ok := l.files[info.Name()]; ok {
		existing = &e
	}
	return upload(ctx, opts, opts.Log.WithField("path", path), path, info, parentID, existing)
}

func decide(policy Overwrite, info os.FileInfo, existing *Entry) Action {
	if existing == nil {
		return ActionCreated
	}
	switch policy {
	case OverwriteAlways:
		return ActionUpdated
	case OverwriteNever:
		return ActionSkipped
	}
	if existing.Size == info.Size() && sameModTime(existing.ModTime, info.ModTime()) {
		return ActionSkipped
	}
	return ActionUpdated
}

func upload(ctx context.Context, opts Options, log logrus.FieldLogger, path string, info os.FileInfo, parentID string, existing *Entry) (Action, error) {
	action := decide(opts.Overwrite, info, existing)
	switch action {
	case ActionSkipped:
		log.Debug("up to date")
		return action, nil
	case ActionUpdated:
		log = log.WithField("id", existing.ID)
		log.Info("update")
	default:
		log.Info("upload")
	}
	if opts.DryRun {
		return action, nil
	}

	f, err := opts.Fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	mimeType, err := detectMimeType(f, info.Name())
	if err != nil {
		return "", errors.Wrapf(err, "detect type of %s", path)
	}
	obj := Object{
		Name:     info.Name(),
		Body:     f,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		MimeType: mimeType,
	}

	var e *Entry
	if action == ActionCreated {
		e, err = opts.Dst.Create(ctx, parentID, obj)
	} else {
		e, err = opts.Dst.Update(ctx, existing.ID, obj)
	}
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", path)
	}
	log.WithField("id", e.ID).Debugf("sent %d bytes as %s", obj.Size, mimeType)
	return action, nil
}

// detectMimeType prefers the extension and falls back to sniffing the
// content. r is rewound afterwards.
func detectMimeType(r io.ReadSeeker, name string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t, nil
	}
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return m.String(), nil
}
