package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"MedArticles/internal/config"
	"MedArticles/internal/domain"
	"MedArticles/internal/infrastructure/storage/migrations"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a lookup matches no article.
var ErrNotFound = domain.ErrNotFound

type dialect struct {
	placeholder     sq.PlaceholderFormat
	migrationsDir   string
	migrationsTable string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		placeholder:   sq.Question,
		migrationsDir: "sqlite",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	DriverPostgres: {
		placeholder:   sq.Dollar,
		migrationsDir: "postgres",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	},
}

// Repository persists articles and classifications in SQLite or Postgres.
type Repository struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var (
	_ ports.ArticleRepository = (*Repository)(nil)
	_ ports.ArticleCatalog    = (*Repository)(nil)
)

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Repository, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	if driver == DriverSQLite {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	repo, err := New(ctx, db, driver, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an open handle. The schema is migrated before returning.
func New(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) (*Repository, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	r := &Repository{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		logger:  logging.OrDiscard(logger).With("component", "storage", "driver", driver),
	}
	if err := r.migrate(ctx, d); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return r, nil
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context, d dialect) error {
	if _, err := r.db.ExecContext(ctx, d.migrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, d.migrationsDir)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}

		content, err := fs.ReadFile(migrations.FS, d.migrationsDir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		query, args, err := r.builder.Insert("schema_migrations").Columns("version").Values(version).ToSql()
		if err != nil {
			return fmt.Errorf("build version insert: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		r.logger.Info("applied migration", "name", name)
	}
	return nil
}

// UpsertArticle inserts the article when its PMID is new and returns the row id.
// Existing rows are left untouched.
func (r *Repository) UpsertArticle(ctx context.Context, a domain.Article) (int64, error) {
	id, err := r.articleID(ctx, a.PMID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	query, args, err := r.builder.
		Insert("articles").
		Columns("pmid", "title", "abstract", "journal", "authors", "author_affiliations",
			"publication_date", "doi", "url", "keywords", "mesh_terms", "publication_type").
		Values(a.PMID, a.Title, a.Abstract, a.Journal, a.Authors, a.AuthorAffiliations,
			a.PublicationDate, a.DOI, a.URL, a.Keywords, a.MeshTerms, a.PublicationType).
		Suffix("ON CONFLICT (pmid) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build article insert: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		// A concurrent run inserted the same PMID first.
		return r.articleID(ctx, a.PMID)
	default:
		return 0, fmt.Errorf("insert article %s: %w", a.PMID, err)
	}
}

func (r *Repository) articleID(ctx context.Context, pmid string) (int64, error) {
	query, args, err := r.builder.Select("id").From("articles").Where(sq.Eq{"pmid": pmid}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build article lookup: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lookup article %s: %w", pmid, err)
	}
	return id, nil
}

var classificationColumns = []string{
	"article_id", "participants", "is_relevant", "reason", "medical_category",
	"clinical_bottom_line", "tags", "ranking_score",
	"focus_points", "type_points", "prevalence_points", "hospitalization_points",
	"clinical_outcome_points", "impact_factor_points", "temporality_points",
	"prevention_penalty_points", "biologic_penalty_points", "screening_penalty_points",
	"scores_penalty_points", "subanalysis_penalty_points", "neurology_penalty_points",
	"classifier_version",
}

// UpsertClassification inserts or replaces the record keyed by article id and
// mirrors the category onto the article row, atomically.
func (r *Repository) UpsertClassification(ctx context.Context, articleID int64, rec domain.ClassificationRecord) error {
	c := rec.Classification
	b := c.Breakdown

	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}

	var participants sql.NullInt64
	if c.Participants != nil {
		participants = sql.NullInt64{Int64: *c.Participants, Valid: true}
	}

	sets := make([]string, 0, len(classificationColumns))
	for _, col := range classificationColumns[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	upsert, upsertArgs, err := r.builder.
		Insert("classifications").
		Columns(append(classificationColumns, "hidden_from_dashboard")...).
		Values(articleID, participants, rec.Decision.IsRelevant, rec.Decision.Reason, string(c.Category),
			c.ClinicalBottomLine, tags, rec.RankingScore(),
			b.Focus, b.StudyType, b.Prevalence, b.Hospitalization,
			b.ClinicalOutcome, b.ImpactFactor, b.Temporality,
			b.PreventionPenalty, b.BiologicPenalty, b.ScreeningPenalty,
			b.ScoresPenalty, b.SubanalysisPenalty, b.NeurologyPenalty,
			rec.ClassifierVersion, rec.Hidden).
		Suffix("ON CONFLICT (article_id) DO UPDATE SET " + strings.Join(sets, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build classification upsert: %w", err)
	}

	touch, touchArgs, err := r.builder.
		Update("articles").
		Set("medical_category", string(c.Category)).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": articleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build article touch: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsert, upsertArgs...); err != nil {
		return fmt.Errorf("upsert classification %d: %w", articleID, err)
	}
	if _, err := tx.ExecContext(ctx, touch, touchArgs...); err != nil {
		return fmt.Errorf("update article category %d: %w", articleID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit classification %d: %w", articleID, err)
	}
	return nil
}

// StoreBatch saves every item independently and returns how many succeeded.
// Only an unusable store produces an error.
func (r *Repository) StoreBatch(ctx context.Context, items []domain.ScoredArticle) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := r.db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("store unavailable: %w", err)
	}

	stored := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stored, fmt.Errorf("store batch: %w", err)
		}

		id, err := r.UpsertArticle(ctx, item.Article)
		if err != nil {
			r.logger.Error("store article failed", "pmid", item.Article.PMID, "error", err)
			continue
		}
		if item.Record != nil {
			if err := r.UpsertClassification(ctx, id, *item.Record); err != nil {
				r.logger.Error("store classification failed", "pmid", item.Article.PMID, "error", err)
				continue
			}
		}
		stored++
	}

	r.logger.Info("batch stored", "requested", len(items), "stored", stored)
	return stored, nil
}

// LatestCreatedAt returns the newest article creation time; ok is false on an empty store.
func (r *Repository) LatestCreatedAt(ctx context.Context) (time.Time, bool, error) {
	query, args, err := r.builder.Select("MAX(created_at)").From("articles").ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build latest query: %w", err)
	}

	var ts timestamp
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("read latest created_at: %w", err)
	}
	return ts.Time, ts.Valid, nil
}

func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
