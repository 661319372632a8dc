package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/logger"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

const csvContentType = "text/csv; charset=utf-8"

// ResultArchive keeps the raw CSV payload of job results in object storage
// under {prefix}/{kind}/{jobID}/{category}.csv.
type ResultArchive struct {
	store  ObjectStorage
	prefix string
}

// NewResultArchive creates an archive writing below prefix.
func NewResultArchive(store ObjectStorage, prefix string) *ResultArchive {
	return &ResultArchive{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for one result category of a job.
func (a *ResultArchive) Key(desc domain.JobDescriptor, category domain.ResultCategory) string {
	return path.Join(a.prefix, string(desc.Kind), desc.ID, string(category)+".csv")
}

// Put stores payload and returns its key.
func (a *ResultArchive) Put(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory, payload string) (string, error) {
	key := a.Key(desc, category)
	if err := a.store.Upload(ctx, key, strings.NewReader(payload), int64(len(payload)), csvContentType); err != nil {
		return "", err
	}

	logger.With(logger.Fields{
		logger.FieldJobID:     desc.ID,
		logger.FieldComponent: "archive",
		"key":                 key,
	}).WithSize(len(payload)).Debug(ctx, "Archived job results")
	return key, nil
}

// Get reads back an archived payload.
func (a *ResultArchive) Get(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory) (string, error) {
	key := a.Key(desc, category)
	rc, err := a.store.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read archived object %s: %w", key, err)
	}
	return string(data), nil
}

// Has reports whether results for the category were archived.
func (a *ResultArchive) Has(ctx context.Context, desc domain.JobDescriptor, category domain.ResultCategory) (bool, error) {
	return a.store.Exists(ctx, a.Key(desc, category))
}

// URL returns the public URL of an archived payload, if any.
func (a *ResultArchive) URL(desc domain.JobDescriptor, category domain.ResultCategory) string {
	return a.store.GetURL(a.Key(desc, category))
}
