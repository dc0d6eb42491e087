package domain

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a lookup matches no stored article.
var ErrNotFound = errors.New("article not found")

// Article is the normalized bibliographic record produced by the source.
type Article struct {
	PMID               string
	Title              string
	Abstract           string
	Journal            string
	Authors            string
	AuthorAffiliations string
	PublicationDate    string
	DOI                string
	URL                string
	Keywords           string
	MeshTerms          string
	PublicationType    string
	PublicationStatus  string
}

// HasAbstract reports whether the abstract carries any text.
func (a Article) HasAbstract() bool {
	return strings.TrimSpace(a.Abstract) != ""
}

// HasTitle reports whether the title carries any text.
func (a Article) HasTitle() bool {
	return strings.TrimSpace(a.Title) != ""
}

// IsCaseReport checks the joined publication types for case report variants.
func (a Article) IsCaseReport() bool {
	pt := strings.ToLower(a.PublicationType)
	for _, kind := range []string{"case report", "case study", "case series"} {
		if strings.Contains(pt, kind) {
			return true
		}
	}
	return false
}

// ScoredArticle couples an article with its evaluation, when one exists.
type ScoredArticle struct {
	Article Article
	Record  *ClassificationRecord
}
