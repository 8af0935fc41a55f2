package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/altamarfin/marketd/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		link  string
		want  string
	}{
		{"tax by url", "Nuevos plazos", "https://www.sii.cl/noticias/2026/101.htm", models.CategoryTributaria},
		{"labor by title", "Reforma laboral avanza en el congreso", "https://example.cl/n/1", models.CategoryLaboral},
		{"markets by title", "La bolsa de Santiago cierra al alza", "https://example.cl/n/2", models.CategoryMercados},
		{"economy by url", "Resultados del trimestre", "https://www.df.cl/economia/resultados", models.CategoryEconomia},
		{"tech", "Startup chilena levanta capital", "https://example.cl/n/3", models.CategoryTecnologia},
		{"unclassified", "Horóscopo de hoy", "https://example.cl/n/4", models.CategoryGeneral},
		{"tax beats economy", "Impuesto a las empresas", "https://example.cl/n/5", models.CategoryTributaria},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.title, tt.link))
		})
	}
}

func TestFetchFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Economía</title>
    <item>
      <title>Banco Central mantiene la tasa</title>
      <link>https://example.cl/noticias/tasa</link>
      <description>&lt;p&gt;El consejo acordó mantener la &lt;b&gt;TPM&lt;/b&gt;.&lt;/p&gt;</description>
      <pubDate>Fri, 28 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>La bolsa cierra mixta</title>
      <link>https://example.cl/noticias/bolsa</link>
      <pubDate>Thu, 27 Aug 2026 18:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`))
	}))
	defer srv.Close()

	c := NewCollector([]Source{{Name: "Test Feed", RSSURL: srv.URL}}, 20, zap.NewNop())
	c.Refresh(context.Background())

	got := c.List("", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Banco Central mantiene la tasa", got[0].Title)
	assert.Equal(t, "El consejo acordó mantener la TPM.", got[0].Summary, "summaries are stripped of HTML")
	assert.Equal(t, models.CategoryEconomia, got[0].Category)
	assert.Equal(t, "Test Feed", got[0].Source)
	assert.Equal(t, models.CategoryMercados, got[1].Category)
}

func TestScrapeFixedCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body>
			<div class="recuadro"><h3><a href="/novedades/1234.html">Dictamen sobre jornada parcial</a></h3></div>
			<div class="recuadro"><p class="abstract"><a href="/novedades/5678.html">Fiscalización de horas extra</a></p></div>
			<a href="/nav/home">Inicio</a>
		</body></html>`))
	}))
	defer srv.Close()

	src := Source{
		Name:         "Dirección del Trabajo",
		ScrapeURL:    srv.URL,
		BaseURL:      srv.URL,
		LinkSelector: ".recuadro h3 a, .recuadro p.abstract a",
		Category:     models.CategoryLaboral,
	}
	c := NewCollector([]Source{src}, 20, zap.NewNop())
	c.Refresh(context.Background())

	got := c.List(models.CategoryLaboral, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Dictamen sobre jornada parcial", got[0].Title)
	assert.Equal(t, srv.URL+"/novedades/1234.html", got[0].URL)
}

func TestScrapeKeywordSourceDropsUnclassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="https://example.cl/mercados/ipsa-al-alza">IPSA al alza tras datos de inflación</a>
			<a href="https://example.cl/vida/recetas">Recetas de invierno</a>
		</body></html>`))
	}))
	defer srv.Close()

	src := Source{
		Name:         "Home",
		ScrapeURL:    srv.URL,
		BaseURL:      srv.URL,
		LinkSelector: "a[href]",
	}
	c := NewCollector([]Source{src}, 20, zap.NewNop())
	c.Refresh(context.Background())

	got := c.List("", 0)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryMercados, got[0].Category)
}

func TestMergeDeduplicatesByTitle(t *testing.T) {
	c := NewCollector([]Source{}, 20, zap.NewNop())
	now := time.Now()

	c.merge([]models.NewsArticle{
		{Title: "La Bolsa cierra al alza", URL: "https://a.cl/1", Category: models.CategoryMercados, PublishedAt: now},
		{Title: "la  bolsa cierra al alza", URL: "https://b.cl/1", Category: models.CategoryMercados, PublishedAt: now},
	})
	assert.Len(t, c.List("", 0), 1)

	// Same title seen on a later refresh is still a duplicate.
	c.merge([]models.NewsArticle{
		{Title: "LA BOLSA CIERRA AL ALZA", URL: "https://c.cl/1", Category: models.CategoryMercados, PublishedAt: now},
	})
	assert.Len(t, c.List("", 0), 1)
}

func TestListFilterAndLimit(t *testing.T) {
	c := NewCollector([]Source{}, 20, zap.NewNop())
	base := time.Now()
	c.merge([]models.NewsArticle{
		{Title: "a", URL: "u1", Category: models.CategoryMercados, PublishedAt: base.Add(-3 * time.Hour)},
		{Title: "b", URL: "u2", Category: models.CategoryLaboral, PublishedAt: base.Add(-1 * time.Hour)},
		{Title: "c", URL: "u3", Category: models.CategoryMercados, PublishedAt: base},
	})

	all := c.List("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Title, "newest first")

	mercados := c.List("MERCADOS", 0)
	require.Len(t, mercados, 2)

	limited := c.List("", 2)
	assert.Len(t, limited, 2)
}
