package handlers

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

//go:embed frontpage.md
var defaultFrontPage string

// LoadFrontPage returns the landing page markdown: the file at path when set,
// else ./frontpage.md when present, else the built-in page.
func LoadFrontPage(path string) (string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read front page: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile("frontpage.md")
	switch {
	case err == nil:
		return string(b), nil
	case errors.Is(err, fs.ErrNotExist):
		return defaultFrontPage, nil
	}
	return "", fmt.Errorf("read front page: %w", err)
}

// RegisterFrontPage serves page as markdown on GET /.
func RegisterFrontPage(r gin.IRoutes, page string) {
	body := []byte(page)
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", body)
	})
}
