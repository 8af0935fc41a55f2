package models

import "time"

// News categories assigned by keyword classification.
const (
	CategoryEconomia   = "economia"
	CategoryMercados   = "mercados"
	CategoryTecnologia = "tecnologia"
	CategoryLaboral    = "laboral"
	CategoryTributaria = "tributaria"
	CategoryGeneral    = "general"
)

// NewsArticle is a collected news item.
type NewsArticle struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}
