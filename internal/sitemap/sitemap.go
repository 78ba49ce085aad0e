package sitemap

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/store"
)

// Catalog is the slice of the product repository the sitemap needs.
type Catalog interface {
	ActiveSlugs(ctx context.Context) ([]string, error)
	Categories(ctx context.Context) ([]store.Category, error)
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNS   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

// Handler renders the storefront sitemap from the active catalog.
type Handler struct {
	Products Catalog
	BaseURL  string
	Logger   zerolog.Logger
}

// ServeHTTP writes the sitemap XML.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSuffix(h.BaseURL, "/")
	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []urlEntry{
			{Loc: base + "/", ChangeFreq: "daily", Priority: "1.0"},
			{Loc: base + "/produkte", ChangeFreq: "daily", Priority: "0.9"},
		},
	}

	slugs, err := h.Products.ActiveSlugs(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("sitemap product slugs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, slug := range slugs {
		set.URLs = append(set.URLs, urlEntry{
			Loc:        base + "/produkte/" + slug,
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}
	categories, err := h.Products.Categories(r.Context())
	if err == nil {
		for _, c := range categories {
			set.URLs = append(set.URLs, urlEntry{
				Loc:        base + "/kategorien/" + c.Slug,
				ChangeFreq: "weekly",
				Priority:   "0.7",
			})
		}
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		h.Logger.Error().Err(err).Msg("encode sitemap")
	}
}
