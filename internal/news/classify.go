package news

import (
	"strings"

	"github.com/altamarfin/marketd/pkg/models"
)

// categoryKeywords maps each category to the markers looked for in an
// article's title and URL. First match wins, in table order, so the
// more specific categories come first.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{models.CategoryTributaria, []string{"tributar", "impuesto", "sii", "renta", "iva", "fiscal"}},
	{models.CategoryLaboral, []string{"laboral", "trabajo", "empleo", "sueldo", "remuneracion", "sindicato"}},
	{models.CategoryMercados, []string{"mercado", "bolsa", "accion", "dolar", "divisa", "ipsa", "wall street"}},
	{models.CategoryTecnologia, []string{"tecnolog", "startup", "digital", "innovacion", "inteligencia artificial"}},
	{models.CategoryEconomia, []string{"economia", "economic", "negocio", "financier", "empresa", "pib", "inflacion", "banco central"}},
}

// Classify assigns a category from the article's title and URL, falling
// back to the general category when no keyword matches.
func Classify(title, link string) string {
	text := strings.ToLower(title + " " + link)
	for _, entry := range categoryKeywords {
		for _, w := range entry.words {
			if strings.Contains(text, w) {
				return entry.category
			}
		}
	}
	return models.CategoryGeneral
}
