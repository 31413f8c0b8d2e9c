package sync

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

const s3FolderType = "application/x-directory"

// S3Remote stores files in an S3 bucket using the specified storage class.
//
// Folder identifiers are key prefixes ending in "/", and "" is the bucket
// root. CreateFolder writes an empty marker object under the prefix so an
// empty folder still lists back.
type S3Remote struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	storageClass types.StorageClass
}

// NewS3Remote creates a new S3Remote.
func NewS3Remote(client *s3.Client, bucket string, storageClass types.StorageClass) *S3Remote {
	return &S3Remote{
		client:       client,
		uploader:     manager.NewUploader(client),
		bucket:       bucket,
		storageClass: storageClass,
	}
}

// S3FolderID returns the folder identifier for a key prefix.
func S3FolderID(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// s3BaseName returns the last path element of a key or folder identifier.
func s3BaseName(key string) string {
	key = strings.TrimSuffix(key, "/")
	return key[strings.LastIndex(key, "/")+1:]
}

func (d *S3Remote) Folder(ctx context.Context, id string) (*Entry, error) {
	if id != S3FolderID(id) {
		return nil, errors.Wrapf(ErrNotFolder, "%q is not a key prefix", id)
	}
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "bucket %s", d.bucket)
		}
		return nil, err
	}
	return &Entry{ID: id, Name: s3BaseName(id), Folder: true}, nil
}

func (d *S3Remote) List(ctx context.Context, parentID string) ([]Entry, error) {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(parentID),
		Delimiter: aws.String("/"),
	})

	var entries []Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list objects")
		}
		for _, p := range page.CommonPrefixes {
			id := aws.ToString(p.Prefix)
			entries = append(entries, Entry{ID: id, Name: s3BaseName(id), Folder: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == parentID {
				continue // folder marker
			}
			e := Entry{
				ID:      key,
				Name:    s3BaseName(key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			}
			if err := d.stat(ctx, &e); err != nil {
				return nil, errors.Wrapf(err, "stat %s", key)
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// stat replaces e.ModTime with the local modification time recorded at
// upload, when there is one.
func (d *S3Remote) stat(ctx context.Context, e *Entry) error {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(e.ID),
	})
	if err != nil {
		return err
	}
	if v, ok := out.Metadata["mtime"]; ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.ModTime = time.Unix(ts, 0)
		}
	}
	return nil
}

func (d *S3Remote) CreateFolder(ctx context.Context, parentID, name string) (*Entry, error) {
	id := parentID + name + "/"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(d.bucket),
		Key:          aws.String(id),
		Body:         bytes.NewReader(nil),
		ContentType:  aws.String(s3FolderType),
		StorageClass: d.storageClass,
	})
	if err != nil {
		return nil, err
	}
	return &Entry{ID: id, Name: name, Folder: true}, nil
}

func (d *S3Remote) Create(ctx context.Context, parentID string, obj Object) (*Entry, error) {
	return d.put(ctx, parentID+obj.Name, obj)
}

func (d *S3Remote) Update(ctx context.Context, id string, obj Object) (*Entry, error) {
	return d.put(ctx, id, obj)
}

func (d *S3Remote) put(ctx context.Context, key string, obj Object) (*Entry, error) {
	if _, err := obj.Body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	in := &s3.PutObjectInput{
		Bucket:       aws.String(d.bucket),
		Key:          aws.String(key),
		Body:         obj.Body,
		StorageClass: d.storageClass,
		Metadata: map[string]string{
			"mtime": strconv.FormatInt(obj.ModTime.Unix(), 10),
			"size":  strconv.FormatInt(obj.Size, 10),
		},
	}
	if obj.MimeType != "" {
		in.ContentType = aws.String(obj.MimeType)
	}
	if _, err := d.uploader.Upload(ctx, in); err != nil {
		return nil, err
	}
	return &Entry{ID: key, Name: s3BaseName(key), Size: obj.Size, ModTime: obj.ModTime}, nil
}

// Delete removes one object, or every object below a folder identifier.
func (d *S3Remote) Delete(ctx context.Context, id string) error {
	if !strings.HasSuffix(id, "/") {
		return d.deleteKey(ctx, id)
	}

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(id),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "list objects")
		}
		for _, obj := range page.Contents {
			if err := d.deleteKey(ctx, aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *S3Remote) deleteKey(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return err
}

func isS3NotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
