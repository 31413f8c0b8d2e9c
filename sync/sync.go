package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Options configures a sync operation.
type Options struct {
	Src          string             // source directory
	Dst          Remote             // destination
	FolderID     string             // remote folder mirroring Src
	Fs           afero.Fs           // local filesystem; the OS filesystem when nil
	Overwrite    Overwrite          // policy for files that already exist remotely
	DryRun       bool               // if true, log actions without making changes
	Delete       bool               // if true, remove remote files absent from Src
	PruneFolders bool               // if true, also remove remote folders absent from Src
	Log          logrus.FieldLogger // defaults to the standard logger
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Overwrite == "" {
		o.Overwrite = OverwriteChanged
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}

// Stats counts what a sync did, or would have done in a dry run.
type Stats struct {
	Created int // files uploaded for the first time
	Updated int // existing remote files overwritten
	Skipped int // files left alone by the overwrite policy
	Deleted int // remote entries removed
	Folders int // remote folders created
}

// Uploads is the number of files whose content was sent to the remote.
func (s Stats) Uploads() int {
	return s.Created + s.Updated
}

// Sync mirrors opts.Src into the remote folder opts.FolderID. The local
// root is validated before the remote is contacted, and the remote root is
// verified before anything is written.
func Sync(ctx context.Context, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	if err := validateSrc(opts.Fs, opts.Src); err != nil {
		return Stats{}, err
	}
	if _, err := opts.Dst.Folder(ctx, opts.FolderID); err != nil {
		return Stats{}, errors.Wrapf(err, "remote folder %q", opts.FolderID)
	}

	s := &syncer{opts: opts}
	err := s.syncDir(ctx, opts.Src, opts.FolderID, false)
	return s.stats, err
}

// CountFiles returns the number of regular files below root.
func CountFiles(fsys afero.Fs, root string) (int, error) {
	if err := validateSrc(fsys, root); err != nil {
		return 0, err
	}
	n := 0
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Mode().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}

type syncer struct {
	opts  Options
	stats Stats
}

// syncDir reconciles the local directory dir with the remote folder
// folderID. A pending folder is one a dry run would have created; it has
// no identifier and is treated as empty.
func (s *syncer) syncDir(ctx context.Context, dir, folderID string, pending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := afero.ReadDir(s.opts.Fs, dir)
	if err != nil {
		return errors.Wrapf(err, "read %s", dir)
	}

	remote := newListing()
	if !pending {
		if remote, err = listFolder(ctx, s.opts.Dst, folderID); err != nil {
			return err
		}
	}
	s.log(dir).WithField("folder", folderID).Debugf("%d remote entries", remote.len())

	seenFiles := make(map[string]bool)
	seenFolders := make(map[string]bool)
	for _, info := range infos {
		name := info.Name()
		path := filepath.Join(dir, name)

		switch {
		case info.IsDir():
			seenFolders[name] = true
			childID, childPending, err := s.resolve(ctx, path, folderID, name, remote)
			if err != nil {
				return err
			}
			if err := s.syncDir(ctx, path, childID, childPending); err != nil {
				return err
			}

		case info.Mode().IsRegular():
			seenFiles[name] = true
			var existing *Entry
			if e, ok := remote.files[name]; ok {
				existing = &e
			}
			action, err := upload(ctx, s.opts, s.log(path), path, info, folderID, existing)
			if err != nil {
				return err
			}
			s.count(action)

		default:
			s.log(path).Debug("skip non-regular file")
		}
	}

	if s.opts.Delete && !pending {
		return s.deleteExtras(ctx, dir, remote, seenFiles, seenFolders)
	}
	return nil
}

// resolve returns the remote folder mirroring the local directory path,
// creating it unless this is a dry run.
func (s *syncer) resolve(ctx context.Context, path, parentID, name string, l listing) (string, bool, error) {
	if e, ok := l.folders[name]; ok {
		return e.ID, false, nil
	}

	s.stats.Folders++
	log := s.log(path)
	log.Info("create folder")
	if s.opts.DryRun {
		return "", true, nil
	}

	e, err := createFolder(ctx, s.opts.Dst, parentID, name)
	if err != nil {
		return "", false, err
	}
	l.folders[name] = *e
	log.WithField("id", e.ID).Debug("folder created")
	return e.ID, false, nil
}

// deleteExtras removes the entries of l that have no local counterpart in
// dir, along with any duplicate copies of a file name.
func (s *syncer) deleteExtras(ctx context.Context, dir string, l listing, seenFiles, seenFolders map[string]bool) error {
	var extras []Entry
	for name, e := range l.files {
		if !seenFiles[name] {
			extras = append(extras, e)
		}
	}
	extras = append(extras, l.dupes...)
	if s.opts.PruneFolders {
		for name, e := range l.folders {
			if !seenFolders[name] {
				extras = append(extras, e)
			}
		}
	}
	sort.Slice(extras, func(i, j int) bool {
		if extras[i].Name != extras[j].Name {
			return extras[i].Name < extras[j].Name
		}
		return extras[i].ID < extras[j].ID
	})

	for _, e := range extras {
		s.log(filepath.Join(dir, e.Name)).WithField("id", e.ID).Info("delete")
		s.stats.Deleted++
		if s.opts.DryRun {
			continue
		}
		if err := s.opts.Dst.Delete(ctx, e.ID); err != nil {
			return errors.Wrapf(err, "delete %s", e.Name)
		}
	}
	return nil
}

func (s *syncer) count(action Action) {
	switch action {
	case ActionCreated:
		s.stats.Created++
	case ActionUpdated:
		s.stats.Updated++
	case ActionSkipped:
		s.stats.Skipped++
	}
}

func (s *syncer) log(path string) logrus.FieldLogger {
	rel, err := filepath.Rel(s.opts.Src, path)
	if err != nil {
		rel = path
	}
	return s.opts.Log.WithField("path", filepath.ToSlash(rel))
}

func validateSrc(fsys afero.Fs, src string) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return errors.Wrap(err, "source")
	}
	if !info.IsDir() {
		return errors.Errorf("source %q is not a directory", src)
	}
	return nil
}
