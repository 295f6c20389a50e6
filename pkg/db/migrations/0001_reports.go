package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upReports, downReports)
}

type Report struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name                string         `gorm:"type:text;uniqueIndex;not null"`
	Ref                 string         `gorm:"type:text;uniqueIndex;not null"`
	WorkspaceName       string         `gorm:"type:text;not null;index"`
	Message             string         `gorm:"type:text;not null;default:''"`
	HTMLLinks           datatypes.JSON `gorm:"column:html_links;type:jsonb;not null"`
	DirectHTMLLinkIndex int            `gorm:"column:direct_html_link_index;not null;default:0"`
	HTMLWindowHeight    int            `gorm:"column:html_window_height;not null;default:800"`
	CreatedAt           time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func openGorm(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upReports(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(&Report{})
}

func downReports(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&Report{})
}
