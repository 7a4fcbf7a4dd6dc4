package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/internal/document"
	"github.com/prompt-request/go-services/internal/document/service"
	"github.com/prompt-request/go-services/pkg/middleware"
)

// ContentReader serves public reads.
type ContentReader interface {
	Read(ctx context.Context, id uuid.UUID, rev *int) (*service.Content, error)
}

// RegisterDocumentRoutes mounts the owner API on r. r must already run
// middleware.AuthMiddleware.
func RegisterDocumentRoutes(r gin.IRoutes, svc service.Service) {
	r.POST("/requests", func(c *gin.Context) {
		accountID, body, ok := uploadArgs(c)
		if !ok {
			return
		}
		res, err := svc.Create(detach(c), accountID, c.GetHeader("Content-Type"), body)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	})

	r.PUT("/requests/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		accountID, body, ok := uploadArgs(c)
		if !ok {
			return
		}
		res, err := svc.Update(detach(c), accountID, id, c.GetHeader("Content-Type"), body)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	})

	r.GET("/requests", func(c *gin.Context) {
		accountID, ok := account(c)
		if !ok {
			return
		}
		limit, ok := optionalInt(c, "limit")
		if !ok {
			return
		}
		offset, ok := optionalInt(c, "offset")
		if !ok {
			return
		}
		l, o := service.NormalizePage(limit, offset)
		items, err := svc.List(detach(c), accountID, l, o)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	r.GET("/requests/:id/revisions", func(c *gin.Context) {
		accountID, ok := account(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		revs, err := svc.ListRevisions(detach(c), accountID, id)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, revs)
	})

	r.GET("/requests/:id/revisions/:rev", func(c *gin.Context) {
		accountID, ok := account(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		rev, err := strconv.Atoi(c.Param("rev"))
		if err != nil {
			apierror.Respond(c, apierror.BadRequest("invalid revision number"))
			return
		}
		info, err := svc.GetRevision(detach(c), accountID, id, rev)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.DELETE("/requests/:id", func(c *gin.Context) {
		accountID, ok := account(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		rev, ok := optionalInt(c, "rev")
		if !ok {
			return
		}
		var err error
		if rev != nil {
			err = svc.DeleteRevision(detach(c), accountID, id, *rev)
		} else {
			err = svc.DeleteAll(detach(c), accountID, id)
		}
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// RegisterPublicRoutes mounts the unauthenticated read GET /:id[?rev=N].
func RegisterPublicRoutes(r gin.IRoutes, reader ContentReader) {
	r.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		rev, ok := optionalInt(c, "rev")
		if !ok {
			return
		}
		content, err := reader.Read(detach(c), id, rev)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Data(http.StatusOK, content.ContentType, content.Data)
	})
}

// detach keeps request values but drops cancellation, so a client hanging
// up cannot abort a dual write halfway.
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func account(c *gin.Context) (int64, bool) {
	id, ok := middleware.AccountID(c)
	if !ok {
		apierror.Respond(c, apierror.Unauthorized())
	}
	return id, ok
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid request id"))
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(c *gin.Context, name string) (*int, bool) {
	raw, present := c.GetQuery(name)
	if !present {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		apierror.Respond(c, apierror.BadRequest("invalid "+name))
		return nil, false
	}
	return &v, true
}

// uploadArgs resolves the caller and reads the body, rejecting anything over
// the upload cap before it reaches a store.
func uploadArgs(c *gin.Context) (int64, []byte, bool) {
	accountID, ok := account(c)
	if !ok {
		return 0, nil, false
	}
	if c.Request.ContentLength > document.MaxUploadBytes {
		apierror.Respond(c, apierror.PayloadTooLarge())
		return 0, nil, false
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, document.MaxUploadBytes+1))
	if err != nil {
		apierror.Respond(c, apierror.BadRequest("failed to read body"))
		return 0, nil, false
	}
	if len(body) > document.MaxUploadBytes {
		apierror.Respond(c, apierror.PayloadTooLarge())
		return 0, nil, false
	}
	return accountID, body, true
}
