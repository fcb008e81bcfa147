package core

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type confirmPage struct {
	SiteURL     string
	ConfirmPath string
}

type listingPage struct {
	Listing     Listing
	Price       string
	Available   bool
	Remaining   int
	IsCreator   bool
	CheckoutURL string
}

func renderPage(c *gin.Context, name string, data any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := pages.ExecuteTemplate(c.Writer, name, data); err != nil {
		_ = c.Error(err)
	}
}
