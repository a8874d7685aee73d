package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovacevic/toolpulse/internal/domain"
)

var ErrNotFound = errors.New("news item not found")

// NewsStore is the dedup and persistence gateway for collected items.
type NewsStore struct {
	db *pgxpool.Pool
}

func NewNewsStore(pool *ConnectionPool) *NewsStore {
	return &NewsStore{db: pool.conn}
}

const newsColumns = `id, title, description, content, url, published_on, created_at,
	category, image_url, source_type, ai_generated, tool_id, tags,
	engagement_score, featured, slug, translations`

// Exists checks for an exact title match or an exact source-url match.
// Deliberately strict: a reworded headline about the same event is not
// caught.
func (s *NewsStore) Exists(ctx context.Context, title, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM news_items
			WHERE title = $1 OR ($2 <> '' AND url = $2)
		)`, title, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check news existence: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent stores the item unless a row already matches on title or
// source url. Returns true only when a new row was created; duplicates and
// write failures both count as "not saved" for the cycle summary, but are
// logged apart.
func (s *NewsStore) InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error) {
	exists, err := s.Exists(ctx, item.Title, item.URL)
	if err != nil {
		return false, err
	}
	if exists {
		slog.Debug("skipping duplicate news item", "title", item.Title)
		return false, nil
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.PublishedOn.IsZero() {
		item.PublishedOn = time.Now()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	translations, err := marshalTranslations(item.Translations)
	if err != nil {
		return false, err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO news_items (`+newsColumns+`)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7,
			NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17)`,
		item.ID, item.Title, item.Description, item.Content, item.URL,
		item.PublishedOn, item.CreatedAt, item.Category, item.ImageURL,
		string(item.SourceType), item.AIGenerated, item.ToolID, item.Tags,
		item.EngagementScore, item.Featured, item.Slug, translations,
	)
	if err != nil {
		return false, fmt.Errorf("insert news item %q: %w", item.Title, err)
	}
	return true, nil
}

func (s *NewsStore) GetByID(ctx context.Context, id uuid.UUID) (domain.NewsItem, error) {
	row := s.db.QueryRow(ctx, `SELECT `+newsColumns+` FROM news_items WHERE id = $1`, id)
	item, err := scanNewsItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewsItem{}, ErrNotFound
	}
	if err != nil {
		return domain.NewsItem{}, fmt.Errorf("get news item %s: %w", id, err)
	}
	return item, nil
}

// List returns recent items newest-first for the read API.
func (s *NewsStore) List(ctx context.Context, page, size int) ([]domain.NewsItem, error) {
	offset := (page - 1) * size
	rows, err := s.db.Query(ctx, `
		SELECT `+newsColumns+` FROM news_items
		ORDER BY published_on DESC, created_at DESC
		LIMIT $1 OFFSET $2`, size, offset)
	if err != nil {
		return nil, fmt.Errorf("list news items: %w", err)
	}
	defer rows.Close()

	return collectNewsItems(rows)
}

// ListRecentWithoutContent returns items still missing a full article
// body, oldest eligible first, for the article-generation batch job.
func (s *NewsStore) ListRecentWithoutContent(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+newsColumns+` FROM news_items
		WHERE content IS NULL OR content = ''
		ORDER BY published_on DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list news items without content: %w", err)
	}
	defer rows.Close()

	return collectNewsItems(rows)
}

// FillContent writes the generated body and translations, but only into an
// empty content column. A non-empty body is never overwritten here; that
// takes an explicit admin update.
func (s *NewsStore) FillContent(ctx context.Context, id uuid.UUID, content string, translations map[string]*domain.Translation) error {
	payload, err := marshalTranslations(translations)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE news_items
		SET content = $2, translations = COALESCE($3, translations)
		WHERE id = $1 AND (content IS NULL OR content = '')`,
		id, content, payload)
	if err != nil {
		return fmt.Errorf("fill content for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug("content already present, leaving item untouched", "id", id)
	}
	return nil
}

// ListTools loads the tool catalog slice the collection cycle maps
// headline keywords against.
func (s *NewsStore) ListTools(ctx context.Context) ([]domain.Tool, error) {
	rows, err := s.db.Query(ctx, `SELECT id, slug, name FROM tools`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

func marshalTranslations(translations map[string]*domain.Translation) ([]byte, error) {
	if len(translations) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(translations)
	if err != nil {
		return nil, fmt.Errorf("marshal translations: %w", err)
	}
	return payload, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNewsItem(row rowScanner) (domain.NewsItem, error) {
	var (
		item         domain.NewsItem
		content      *string
		url          *string
		category     *string
		imageURL     *string
		slug         *string
		sourceType   string
		translations []byte
	)
	err := row.Scan(
		&item.ID, &item.Title, &item.Description, &content, &url,
		&item.PublishedOn, &item.CreatedAt, &category, &imageURL,
		&sourceType, &item.AIGenerated, &item.ToolID, &item.Tags,
		&item.EngagementScore, &item.Featured, &slug, &translations,
	)
	if err != nil {
		return domain.NewsItem{}, err
	}

	item.SourceType = domain.SourceType(sourceType)
	if content != nil {
		item.Content = *content
	}
	if url != nil {
		item.URL = *url
	}
	if category != nil {
		item.Category = *category
	}
	if imageURL != nil {
		item.ImageURL = *imageURL
	}
	if slug != nil {
		item.Slug = *slug
	}
	if len(translations) > 0 {
		if err := json.Unmarshal(translations, &item.Translations); err != nil {
			return domain.NewsItem{}, fmt.Errorf("unmarshal translations: %w", err)
		}
	}
	return item, nil
}

func collectNewsItems(rows pgx.Rows) ([]domain.NewsItem, error) {
	var items []domain.NewsItem
	for rows.Next() {
		item, err := scanNewsItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
