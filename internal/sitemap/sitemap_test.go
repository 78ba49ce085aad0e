package sitemap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/store"
)

type fakeCatalog struct {
	slugs      []string
	categories []store.Category
	err        error
}

func (f fakeCatalog) ActiveSlugs(context.Context) ([]string, error) {
	return f.slugs, f.err
}

func (f fakeCatalog) Categories(context.Context) ([]store.Category, error) {
	return f.categories, nil
}

func TestSitemap(t *testing.T) {
	h := &Handler{
		Products: fakeCatalog{
			slugs:      []string{"dtf-a3", "dtf-a4"},
			categories: []store.Category{{Slug: "transfers"}},
		},
		BaseURL: "https://shop.example/",
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "<loc>https://shop.example/</loc>")
	require.Contains(t, body, "<loc>https://shop.example/produkte/dtf-a3</loc>")
	require.Contains(t, body, "<loc>https://shop.example/produkte/dtf-a4</loc>")
	require.Contains(t, body, "<loc>https://shop.example/kategorien/transfers</loc>")
	require.Contains(t, body, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)
}

func TestSitemapCatalogError(t *testing.T) {
	h := &Handler{Products: fakeCatalog{err: errors.New("db down")}, BaseURL: "https://shop.example"}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
