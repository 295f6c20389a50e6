// Package reportstore keeps dashboard reports in Postgres for deployments
// that run without the SDK callback server.
package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lakedash/pkg/db"
	"lakedash/services/lakedash/internal/dashboard"
)

// ErrNotFound is returned when no report matches a lookup.
var ErrNotFound = errors.New("report not found")

type reportModel struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name                string         `gorm:"type:text;not null"`
	Ref                 string         `gorm:"type:text;not null"`
	WorkspaceName       string         `gorm:"type:text;not null"`
	Message             string         `gorm:"type:text;not null"`
	HTMLLinks           datatypes.JSON `gorm:"column:html_links;type:jsonb"`
	DirectHTMLLinkIndex int            `gorm:"column:direct_html_link_index"`
	HTMLWindowHeight    int            `gorm:"column:html_window_height"`
	CreatedAt           time.Time      `gorm:"type:timestamptz;not null;autoCreateTime"`
}

func (reportModel) TableName() string { return "reports" }

// Record is a stored report as read back from the database.
type Record struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Ref                 string    `db:"ref" json:"ref"`
	WorkspaceName       string    `db:"workspace_name" json:"workspace_name"`
	Message             string    `db:"message" json:"message"`
	HTMLLinks           []byte    `db:"html_links" json:"-"`
	DirectHTMLLinkIndex int       `db:"direct_html_link_index" json:"direct_html_link_index"`
	HTMLWindowHeight    int       `db:"html_window_height" json:"html_window_height"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Links decodes the stored HTML links.
func (r Record) Links() ([]dashboard.HTMLLink, error) {
	var links []dashboard.HTMLLink
	if len(r.HTMLLinks) == 0 {
		return links, nil
	}
	if err := json.Unmarshal(r.HTMLLinks, &links); err != nil {
		return nil, fmt.Errorf("decode html links of %s: %w", r.Ref, err)
	}
	return links, nil
}

// Store registers and looks up reports.
type Store struct {
	pool *pgxpool.Pool
	orm  *gorm.DB
	now  func() time.Time
}

// Open wraps pool with a gorm handle for writes.
func Open(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("reportstore: nil pool")
	}

	orm, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 stdlib.OpenDBFromPool(pool),
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("reportstore: open gorm: %w", err)
	}

	return &Store{pool: pool, orm: orm, now: time.Now}, nil
}

// CreateReport stores params and returns the generated name and ref.
func (s *Store) CreateReport(ctx context.Context, params dashboard.ReportParams) (dashboard.ReportInfo, error) {
	model, err := newModel(params, uuid.New(), s.now().UTC())
	if err != nil {
		return dashboard.ReportInfo{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	if err := s.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return dashboard.ReportInfo{}, fmt.Errorf("insert report: %w", err)
	}
	return dashboard.ReportInfo{Name: model.Name, Ref: model.Ref}, nil
}

func newModel(params dashboard.ReportParams, id uuid.UUID, now time.Time) (reportModel, error) {
	if params.WorkspaceName == "" {
		return reportModel{}, errors.New("workspace name is required")
	}
	links, err := json.Marshal(params.HTMLLinks)
	if err != nil {
		return reportModel{}, fmt.Errorf("encode html links: %w", err)
	}

	return reportModel{
		ID:                  id,
		Name:                "report_" + id.String(),
		Ref:                 params.WorkspaceName + "/" + id.String(),
		WorkspaceName:       params.WorkspaceName,
		Message:             params.Message,
		HTMLLinks:           datatypes.JSON(links),
		DirectHTMLLinkIndex: params.DirectHTMLLinkIndex,
		HTMLWindowHeight:    params.HTMLWindowHeight,
		CreatedAt:           now,
	}, nil
}

const selectColumns = `id, name, ref, workspace_name, message, html_links, direct_html_link_index, html_window_height, created_at`

// Get returns the report whose ref or name equals key.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := db.Get(ctx, s.pool, &rec, `SELECT `+selectColumns+` FROM reports WHERE ref = $1 OR name = $1 LIMIT 1`, key)
	if err != nil {
		if db.NotFound(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get report %s: %w", key, err)
	}
	return rec, nil
}

// List returns the newest reports of a workspace, or of all workspaces when
// workspace is empty.
func (s *Store) List(ctx context.Context, workspace string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []Record
	err := db.Select(ctx, s.pool, &recs,
		`SELECT `+selectColumns+` FROM reports WHERE ($1 = '' OR workspace_name = $1) ORDER BY created_at DESC LIMIT $2`,
		workspace, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return recs, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
