package sync

import (
	"context"

	"github.com/pkg/errors"
)

// listing is one remote folder's children indexed by name.
type listing struct {
	files   map[string]Entry
	folders map[string]Entry
	dupes   []Entry // files sharing a name with an earlier entry
}

func newListing() listing {
	return listing{
		files:   make(map[string]Entry),
		folders: make(map[string]Entry),
	}
}

func (l listing) len() int {
	return len(l.files) + len(l.folders) + len(l.dupes)
}

func listFolder(ctx context.Context, dst Remote, id string) (listing, error) {
	entries, err := dst.List(ctx, id)
	if err != nil {
		return listing{}, errors.Wrapf(err, "list folder %q", id)
	}

	l := newListing()
	for _, e := range entries {
		if e.Folder {
			// Duplicate folders may hold content, so only the first is used
			// and the rest are left alone.
			if _, ok := l.folders[e.Name]; !ok {
				l.folders[e.Name] = e
			}
			continue
		}
		if _, ok := l.files[e.Name]; ok {
			l.dupes = append(l.dupes, e)
			continue
		}
		l.files[e.Name] = e
	}
	return l, nil
}

// ResolveFolder returns the identifier of the folder called name directly
// inside parentID, creating it when no such folder exists. Names are
// matched exactly.
func ResolveFolder(ctx context.Context, dst Remote, parentID, name string) (string, error) {
	l, err := listFolder(ctx, dst, parentID)
	if err != nil {
		return "", err
	}
	if e, ok := l.folders[name]; ok {
		return e.ID, nil
	}

	e, err := createFolder(ctx, dst, parentID, name)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func createFolder(ctx context.Context, dst Remote, parentID, name string) (*Entry, error) {
	e, err := dst.CreateFolder(ctx, parentID, name)
	if err != nil {
		return nil, errors.Wrapf(err, "create folder %s", name)
	}
	return e, nil
}
