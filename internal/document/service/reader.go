package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/internal/document"
	"github.com/prompt-request/go-services/internal/document/repository"
	"github.com/prompt-request/go-services/internal/storage"
)

// Content is a revision body ready to be served.
type Content struct {
	Data        []byte
	ContentType string
}

// Reader serves revision bodies to anyone who knows the document id.
type Reader struct {
	store repository.Store
	blobs storage.ObjectStore
}

func NewReader(store repository.Store, blobs storage.ObjectStore) *Reader {
	return &Reader{store: store, blobs: blobs}
}

// Read returns the pinned revision when rev is set, else the latest one.
func (r *Reader) Read(ctx context.Context, id uuid.UUID, rev *int) (*Content, error) {
	var (
		obj *document.Object
		err error
	)
	if rev != nil {
		if *rev < 1 {
			return nil, apierror.BadRequest("rev must be >= 1")
		}
		obj, err = r.store.RevisionObject(ctx, id, *rev)
	} else {
		obj, err = r.store.LatestObject(ctx, id)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if obj == nil {
		return nil, apierror.NotFound()
	}

	data, err := r.blobs.Get(ctx, obj.Key)
	if err != nil {
		return nil, storageErr(err)
	}
	return &Content{Data: data, ContentType: document.ResponseTypeFor(obj.ContentType)}, nil
}
