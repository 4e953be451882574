package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seyyidi/ravenchat/web"
)

// SetupStaticRoutes serves the embedded chat page
func SetupStaticRoutes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		serveEmbedded(c, "index.html")
	})
}

func serveEmbedded(c *gin.Context, filename string) {
	file, err := web.FS.Open(filename)
	if err != nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to read file")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", content)
}
