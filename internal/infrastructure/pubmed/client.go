package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"MedArticles/internal/config"
	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

const (
	defaultBaseURL   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultBatchSize = 100
	defaultSearchMax = 1000
	defaultTimeout   = 30 * time.Second
)

// Client queries NCBI E-utilities for PubMed records.
type Client struct {
	http      *http.Client
	baseURL   string
	tool      string
	email     string
	batchSize int
	searchMax int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ ports.BibliographicSource = (*Client)(nil)

// NewClient builds a client from configuration. A nil httpClient gets the configured timeout.
func NewClient(cfg config.PubMedConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		http:      httpClient,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		tool:      cfg.Tool,
		email:     cfg.Email,
		batchSize: cfg.BatchSize,
		searchMax: cfg.SearchMax,
		limiter:   rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		logger:    logging.OrDiscard(logger),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.batchSize <= 0 {
		c.batchSize = defaultBatchSize
	}
	if c.searchMax <= 0 {
		c.searchMax = defaultSearchMax
	}
	return c
}

// BatchSize is the maximum number of ids per fetch request.
func (c *Client) BatchSize() int {
	return c.batchSize
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
	Error string `json:"error,omitempty"`
}

// Search returns the ordered PMIDs published in the journals within the window.
func (c *Client) Search(ctx context.Context, journals []string, window domain.DateRange) ([]string, error) {
	if len(journals) == 0 {
		return nil, fmt.Errorf("no journals configured")
	}

	term := BuildSearchTerm(journals, window)
	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(c.searchMax))
	params.Set("retmode", "json")

	c.logger.Info("searching pubmed", "term", term)

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("esearch error: %s", resp.Error)
	}

	c.logger.Info("pubmed search finished", "found", len(resp.Result.IDList), "window", window.String())
	return resp.Result.IDList, nil
}

// FetchBatch downloads and extracts one batch of records. Failures are reported
// in the outcome rather than returned.
func (c *Client) FetchBatch(ctx context.Context, ids []string) domain.BatchOutcome {
	outcome := domain.BatchOutcome{Requested: len(ids)}
	if len(ids) == 0 {
		return outcome
	}

	if err := c.limiter.Wait(ctx); err != nil {
		outcome.Err = fmt.Errorf("courtesy wait: %w", err)
		return outcome
	}

	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		c.logger.Error("fetch batch failed", "size", len(ids), "error", err)
		outcome.Err = fmt.Errorf("efetch: %w", err)
		return outcome
	}

	records, err := decodeArticleSet(body)
	if err != nil {
		c.logger.Error("parse batch failed", "size", len(ids), "error", err)
		outcome.Err = fmt.Errorf("parse efetch: %w", err)
		return outcome
	}

	for _, rec := range records {
		article, ok := extractArticle(rec)
		if !ok {
			outcome.Skipped++
			c.logger.Warn("skipping malformed record")
			continue
		}
		if rule, rejected := Screen(article); rejected {
			outcome.Stats = rule.Count(outcome.Stats)
			c.logger.Debug("pre-filter rejected article", "pmid", article.PMID, "rule", rule.Name)
			continue
		}
		outcome.Articles = append(outcome.Articles, article)
	}

	return outcome
}

// FetchDetails walks all ids batch by batch, continuing past failed batches.
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]domain.Article, domain.FilteringStats) {
	var (
		articles []domain.Article
		stats    domain.FilteringStats
	)
	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		outcome := c.FetchBatch(ctx, ids[start:end])
		stats = stats.Merge(outcome.Stats)
		articles = append(articles, outcome.Articles...)
	}
	return articles, stats
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	if c.email != "" {
		params.Set("tool", c.tool)
		params.Set("email", c.email)
	}
	return params
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "MedArticles/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// BuildSearchTerm renders the quoted journal OR-group and the inclusive date term.
func BuildSearchTerm(journals []string, window domain.DateRange) string {
	quoted := make([]string, len(journals))
	for i, j := range journals {
		quoted[i] = fmt.Sprintf("%q[journal]", j)
	}
	return fmt.Sprintf("(%s) AND %s:%s[pdat]",
		strings.Join(quoted, " OR "), window.StartString(), window.EndString())
}
