package sync

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a remote identifier does not name an entry.
	ErrNotFound = errors.New("remote entry not found")
	// ErrNotFolder is returned when a remote identifier names a file where a
	// folder was expected.
	ErrNotFolder = errors.New("remote entry is not a folder")
)

// Entry describes a file or folder held by a Remote.
type Entry struct {
	ID      string
	Name    string
	Folder  bool
	Size    int64
	ModTime time.Time
}

// Object is the content and metadata of a file being written to a Remote.
// Body is rewound before every attempt, so a Remote may retry a write.
type Object struct {
	Name     string
	Body     io.ReadSeeker
	Size     int64
	ModTime  time.Time
	MimeType string
}

// Remote is a hierarchical file store addressed by opaque identifiers.
type Remote interface {
	// Folder returns metadata for the folder id. It fails with ErrNotFound
	// or ErrNotFolder when id does not name a usable folder.
	Folder(ctx context.Context, id string) (*Entry, error)
	// List returns the direct children of the folder parentID.
	List(ctx context.Context, parentID string) ([]Entry, error)
	// CreateFolder creates a child folder called name.
	CreateFolder(ctx context.Context, parentID, name string) (*Entry, error)
	// Create uploads a new file into parentID.
	Create(ctx context.Context, parentID string, obj Object) (*Entry, error)
	// Update replaces the content of the existing file id.
	Update(ctx context.Context, id string, obj Object) (*Entry, error)
	// Delete removes a file, or a folder along with everything below it.
	Delete(ctx context.Context, id string) error
}

// sameModTime compares modification times at second precision, which is
// the precision every supported remote preserves.
func sameModTime(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}
