package pubmed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"MedArticles/internal/domain"
)

const articleURLFormat = "https://pubmed.ncbi.nlm.nih.gov/%s/"

type articleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
	Data     pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID     string      `xml:"PMID"`
	Article  articleBody `xml:"Article"`
	Keywords []markup    `xml:"KeywordList>Keyword"`
	Mesh     []markup    `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
}

type articleBody struct {
	Journal          journal        `xml:"Journal"`
	Title            markup         `xml:"ArticleTitle"`
	Abstract         []abstractPart `xml:"Abstract>AbstractText"`
	Authors          []author       `xml:"AuthorList>Author"`
	ELocations       []eLocation    `xml:"ELocationID"`
	PublicationTypes []markup       `xml:"PublicationTypeList>PublicationType"`
}

type journal struct {
	Title   string  `xml:"Title"`
	PubDate pubDate `xml:"JournalIssue>PubDate"`
}

type pubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type abstractPart struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

type author struct {
	LastName     string   `xml:"LastName"`
	ForeName     string   `xml:"ForeName"`
	Affiliations []string `xml:"AffiliationInfo>Affiliation"`
}

type eLocation struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}

type markup struct {
	Inner string `xml:",innerxml"`
}

type pubmedData struct {
	PublicationStatus string `xml:"PublicationStatus"`
}

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

func decodeArticleSet(body []byte) ([]pubmedArticle, error) {
	var set articleSet
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("decode article set: %w", err)
	}
	return set.Articles, nil
}

// extractArticle normalizes one record; ok is false when the record has no PMID.
func extractArticle(rec pubmedArticle) (domain.Article, bool) {
	pmid := strings.TrimSpace(rec.Citation.PMID)
	if pmid == "" {
		return domain.Article{}, false
	}
	body := rec.Citation.Article

	authors, affiliations := joinAuthors(body.Authors)

	return domain.Article{
		PMID:               pmid,
		Title:              flatten(body.Title.Inner),
		Abstract:           joinAbstract(body.Abstract),
		Journal:            strings.TrimSpace(body.Journal.Title),
		Authors:            authors,
		AuthorAffiliations: affiliations,
		PublicationDate:    formatPubDate(body.Journal.PubDate),
		DOI:                findDOI(body.ELocations),
		URL:                fmt.Sprintf(articleURLFormat, pmid),
		Keywords:           joinMarkup(rec.Citation.Keywords),
		MeshTerms:          joinMarkup(rec.Citation.Mesh),
		PublicationType:    joinMarkup(body.PublicationTypes),
		PublicationStatus:  strings.TrimSpace(rec.Data.PublicationStatus),
	}, true
}

// flatten strips inline markup such as <i> or <sup> and collapses whitespace.
func flatten(inner string) string {
	if !strings.Contains(inner, "<") && !strings.Contains(inner, "&") {
		return strings.Join(strings.Fields(inner), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
	if err != nil {
		return strings.Join(strings.Fields(inner), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func joinAbstract(parts []abstractPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		text := flatten(p.Inner)
		if p.Label != "" {
			texts = append(texts, p.Label+": "+text)
			continue
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "  ")
}

func joinAuthors(list []author) (string, string) {
	var names, affiliations []string
	for _, a := range list {
		first := strings.TrimSpace(a.ForeName)
		last := strings.TrimSpace(a.LastName)
		if first == "" || last == "" {
			continue
		}
		full := first + " " + last
		names = append(names, full)
		if len(a.Affiliations) > 0 {
			affiliations = append(affiliations, full+": "+strings.TrimSpace(a.Affiliations[0]))
		}
	}
	return strings.Join(names, "; "), strings.Join(affiliations, "; ")
}

func joinMarkup(items []markup) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text := flatten(item.Inner); text != "" {
			out = append(out, text)
		}
	}
	return strings.Join(out, "; ")
}

func findDOI(locations []eLocation) string {
	for _, loc := range locations {
		if strings.EqualFold(loc.Type, "doi") {
			return strings.TrimSpace(loc.Value)
		}
	}
	return ""
}

// formatPubDate renders YYYY, YYYY-MM or YYYY-MM-DD.
func formatPubDate(d pubDate) string {
	year := strings.TrimSpace(d.Year)
	if year == "" {
		if md := strings.TrimSpace(d.MedlineDate); len(md) >= 4 {
			return md[:4]
		}
		return ""
	}

	month := strings.TrimSpace(d.Month)
	if month == "" {
		return year
	}
	out := year + "-" + monthNumber(month)
	if day := strings.TrimSpace(d.Day); day != "" {
		out += "-" + zeroPad(day)
	}
	return out
}

func monthNumber(month string) string {
	if isDigits(month) {
		return zeroPad(month)
	}
	if len(month) >= 3 {
		if n, ok := monthNumbers[strings.ToLower(month[:3])]; ok {
			return n
		}
	}
	return "01"
}

func zeroPad(v string) string {
	if len(v) == 1 {
		return "0" + v
	}
	return v
}

func isDigits(v string) bool {
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return v != ""
}
