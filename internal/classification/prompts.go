package classification

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"MedArticles/internal/domain"
)

// DefaultAudience is the reader group both prompts are written for.
const DefaultAudience = "internal medicine doctors in Israel"

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type promptInput struct {
	Audience        string
	Title           string
	Abstract        string
	MeshTerms       string
	PublicationType string
	Journal         string
	Categories      string
}

func newPromptInput(audience string, a domain.Article) promptInput {
	if strings.TrimSpace(audience) == "" {
		audience = DefaultAudience
	}
	journal := strings.TrimSpace(a.Journal)
	if journal == "" {
		journal = "Not specified"
	}

	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}

	return promptInput{
		Audience:        audience,
		Title:           a.Title,
		Abstract:        a.Abstract,
		MeshTerms:       a.MeshTerms,
		PublicationType: a.PublicationType,
		Journal:         journal,
		Categories:      strings.Join(names, ", "),
	}
}

// FilterPrompt renders the relevance policy for one article.
func FilterPrompt(audience string, a domain.Article) (string, error) {
	return render("filter.tmpl", newPromptInput(audience, a))
}

// ClassifyPrompt renders the categorization and scoring rubric for one article.
func ClassifyPrompt(audience string, a domain.Article) (string, error) {
	return render("classify.tmpl", newPromptInput(audience, a))
}

func render(name string, in promptInput) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, in); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}
