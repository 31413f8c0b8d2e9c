// Package auth obtains Google credentials for the Drive API.
package auth

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Source names where credentials were found.
type Source string

const (
	SourceInline  Source = "inline"  // JSON payload passed directly
	SourceFile    Source = "file"    // JSON read from a credential file
	SourceAmbient Source = "ambient" // application default credentials
)

// Scopes requested for every credential.
var Scopes = []string{drive.DriveScope}

// Credentials selects a credential source. The first non-empty of JSON and
// File wins; with neither, the ambient application default credentials are
// used.
type Credentials struct {
	JSON        string // inline credential payload
	File        string // path to a credential file
	Impersonate string // user a service account acts as, if any
}

// Resolved is a credential ready to authorize requests.
type Resolved struct {
	Source Source
	Option option.ClientOption
}

// Resolve loads the credential and builds a client option from it.
func (c Credentials) Resolve(ctx context.Context) (*Resolved, error) {
	data, source, err := c.load()
	if err != nil {
		return nil, err
	}

	if source == SourceAmbient {
		if c.Impersonate != "" {
			return nil, errors.New("impersonation needs a service account key, not ambient credentials")
		}
		creds, err := google.FindDefaultCredentials(ctx, Scopes...)
		if err != nil {
			return nil, errors.Wrap(err, "find default credentials")
		}
		return &Resolved{Source: source, Option: option.WithCredentials(creds)}, nil
	}

	if c.Impersonate != "" {
		conf, err := google.JWTConfigFromJSON(data, Scopes...)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s service account credentials", source)
		}
		conf.Subject = c.Impersonate
		return &Resolved{Source: source, Option: option.WithTokenSource(conf.TokenSource(ctx))}, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s credentials", source)
	}
	return &Resolved{Source: source, Option: option.WithCredentials(creds)}, nil
}

func (c Credentials) load() ([]byte, Source, error) {
	switch {
	case c.JSON != "":
		return []byte(c.JSON), SourceInline, nil
	case c.File != "":
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, SourceFile, errors.Wrap(err, "read credentials file")
		}
		return data, SourceFile, nil
	}
	return nil, SourceAmbient, nil
}

// NewDriveService authenticates and returns a Drive client handle. Extra
// options are appended after the credential option.
func NewDriveService(ctx context.Context, c Credentials, opts ...option.ClientOption) (*drive.Service, Source, error) {
	r, err := c.Resolve(ctx)
	if err != nil {
		return nil, "", err
	}
	svc, err := drive.NewService(ctx, append([]option.ClientOption{r.Option}, opts...)...)
	if err != nil {
		return nil, "", errors.Wrap(err, "create drive service")
	}
	return svc, r.Source, nil
}
