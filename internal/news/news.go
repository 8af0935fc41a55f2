// Package news collects financial news from Chilean sources, RSS-first
// with an HTML scraping fallback, classifies articles by keyword and
// serves them filtered by category.
package news

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/altamarfin/marketd/pkg/models"
)

// maxArticles bounds the in-memory article buffer across refreshes.
const maxArticles = 200

// Source describes one news origin. Sources with an RSSURL are fetched
// as feeds; the scrape fields are the fallback for sources without one
// (or whose feed fails).
type Source struct {
	Name          string
	RSSURL        string
	ScrapeURL     string
	BaseURL       string // resolves relative article links
	LinkSelector  string // anchor elements holding articles
	TitleSelector string // optional title element inside the anchor
	Category      string // fixed category; empty means classify by keywords
}

// DefaultSources lists the configured Chilean financial news origins.
var DefaultSources = []Source{
	{
		Name:   "Emol Economía",
		RSSURL: "https://www.emol.com/rss/rss.asp?canal=economia",
	},
	{
		Name:   "El Mostrador Mercados",
		RSSURL: "https://www.elmostrador.cl/categoria/mercados/feed/",
	},
	{
		Name:         "Diario Financiero",
		ScrapeURL:    "https://www.df.cl/",
		BaseURL:      "https://www.df.cl",
		LinkSelector: "a[href]",
	},
	{
		Name:          "CNN en Español",
		ScrapeURL:     "https://cnnespanol.cnn.com/mundo",
		BaseURL:       "https://cnnespanol.cnn.com",
		LinkSelector:  "a.container__link--type-article",
		TitleSelector: ".container__headline-text",
	},
	{
		Name:         "Dirección del Trabajo",
		ScrapeURL:    "https://www.dt.gob.cl/portal/1627/w3-channel.html",
		BaseURL:      "https://www.dt.gob.cl",
		LinkSelector: ".recuadro h3 a, .recuadro p.abstract a",
		Category:     models.CategoryLaboral,
	},
	{
		Name:         "SII",
		ScrapeURL:    "https://www.sii.cl/noticias/2026/index.html",
		BaseURL:      "https://www.sii.cl/noticias/2026/",
		LinkSelector: "a[href$='.htm']",
		Category:     models.CategoryTributaria,
	},
}

// Collector aggregates articles from every source into a bounded,
// deduplicated, newest-first buffer.
type Collector struct {
	sources    []Source
	parser     *gofeed.Parser
	http       *http.Client
	log        *zap.Logger
	maxPerFeed int

	mu       sync.RWMutex
	articles []models.NewsArticle
	seen     map[string]bool // normalized titles
}

// NewCollector creates a collector. A nil source list uses DefaultSources.
func NewCollector(sources []Source, maxPerFeed int, log *zap.Logger) *Collector {
	if sources == nil {
		sources = DefaultSources
	}
	if maxPerFeed <= 0 {
		maxPerFeed = 20
	}
	return &Collector{
		sources:    sources,
		parser:     gofeed.NewParser(),
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log.With(zap.String("component", "news")),
		maxPerFeed: maxPerFeed,
	}
}

// Run refreshes immediately and then on the given interval until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	c.log.Info("news collection started", zap.Duration("interval", interval))
	for {
		c.Refresh(ctx)
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.log.Info("news collection stopped")
			return
		case <-t.C:
		}
	}
}

// Refresh collects every source once. A failed source is skipped, never
// fatal; its previously collected articles stay in the buffer.
func (c *Collector) Refresh(ctx context.Context) {
	var collected []models.NewsArticle
	for _, src := range c.sources {
		if ctx.Err() != nil {
			return
		}
		articles, err := c.collect(ctx, src)
		if err != nil {
			c.log.Warn("source failed", zap.String("source", src.Name), zap.Error(err))
			continue
		}
		collected = append(collected, articles...)
	}
	c.merge(collected)
}

// List returns up to limit articles, newest first, optionally filtered
// by category (case-insensitive). Zero limit means no limit.
func (c *Collector) List(category string, limit int) []models.NewsArticle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	category = strings.ToLower(strings.TrimSpace(category))
	out := make([]models.NewsArticle, 0, len(c.articles))
	for _, a := range c.articles {
		if category != "" && a.Category != category {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Add injects articles directly into the buffer, subject to the same
// deduplication and ordering as a refresh.
func (c *Collector) Add(articles ...models.NewsArticle) {
	c.merge(articles)
}

// collect fetches one source, preferring RSS and falling back to the
// scraper when the feed is missing or broken.
func (c *Collector) collect(ctx context.Context, src Source) ([]models.NewsArticle, error) {
	if src.RSSURL != "" {
		articles, err := c.fetchFeed(ctx, src)
		if err == nil {
			return articles, nil
		}
		if src.ScrapeURL == "" {
			return nil, err
		}
		c.log.Warn("feed failed, falling back to scraper",
			zap.String("source", src.Name), zap.Error(err))
	}
	return c.scrape(ctx, src)
}

func (c *Collector) fetchFeed(ctx context.Context, src Source) ([]models.NewsArticle, error) {
	feed, err := c.parser.ParseURLWithContext(src.RSSURL, ctx)
	if err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(articles) == c.maxPerFeed {
			break
		}
		a := models.NewsArticle{
			Title:    strings.TrimSpace(item.Title),
			Summary:  stripHTML(item.Description),
			URL:      item.Link,
			Source:   src.Name,
			Category: c.categorize(src, item.Title, item.Link),
		}
		if item.Image != nil {
			a.ImageURL = item.Image.URL
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		} else {
			a.PublishedAt = time.Now()
		}
		if a.Title == "" || a.URL == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// scrape pulls article anchors out of a source's HTML listing page.
// Publication dates are rarely exposed on listings; collection time is
// used instead.
func (c *Collector) scrape(ctx context.Context, src Source) ([]models.NewsArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.ScrapeURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; marketd/1.0)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var articles []models.NewsArticle
	doc.Find(src.LinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}

		title := sel.Text()
		if src.TitleSelector != "" {
			title = sel.Find(src.TitleSelector).Text()
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return true
		}

		link := resolveURL(src.BaseURL, href)
		cat := c.categorize(src, title, link)
		if src.Category == "" && cat == models.CategoryGeneral {
			// Keyword sources keep only classifiable articles; listing
			// pages are full of navigation links.
			return true
		}

		articles = append(articles, models.NewsArticle{
			Title:       title,
			URL:         link,
			Source:      src.Name,
			Category:    cat,
			PublishedAt: now,
		})
		return len(articles) < c.maxPerFeed
	})
	return articles, nil
}

// merge folds newly collected articles into the buffer, dropping
// duplicate titles and keeping the newest maxArticles.
func (c *Collector) merge(collected []models.NewsArticle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	added := 0
	for _, a := range collected {
		key := normalizeTitle(a.Title)
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		c.articles = append(c.articles, a)
		added++
	}

	sort.SliceStable(c.articles, func(i, j int) bool {
		return c.articles[i].PublishedAt.After(c.articles[j].PublishedAt)
	})
	if len(c.articles) > maxArticles {
		for _, a := range c.articles[maxArticles:] {
			delete(c.seen, normalizeTitle(a.Title))
		}
		c.articles = c.articles[:maxArticles]
	}

	c.log.Info("refresh complete",
		zap.Int("collected", len(collected)),
		zap.Int("added", added),
		zap.Int("total", len(c.articles)))
}

// categorize picks the source's fixed category when set, else classifies
// by keywords.
func (c *Collector) categorize(src Source, title, link string) string {
	if src.Category != "" {
		return src.Category
	}
	return Classify(title, link)
}

// normalizeTitle canonicalizes a title for deduplication.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stripHTML flattens an HTML fragment to plain text.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
