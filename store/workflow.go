package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/crewflow/types"
)

// Workflow is one stored workflow definition. The document source is kept
// verbatim; parsing and validation happen on load, so a schema change in
// the engine never requires a data migration.
type Workflow struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	// Kind is "crew" or "flow", derived from the document on save.
	Kind string `gorm:"size:32" json:"kind"`
	// Document is the raw YAML or JSON source.
	Document  string    `gorm:"type:text" json:"document"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config selects the database backend.
type Config struct {
	// Driver is sqlite, mysql, or postgres.
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Open connects to the configured database.
func Open(cfg Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch cfg.Driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (use sqlite, mysql, or postgres)", cfg.Driver)
	}
}

// Repository stores and loads workflow definitions.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRepository creates a Repository and migrates its schema.
func NewRepository(db *gorm.DB, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Workflow{}); err != nil {
		return nil, types.NewError(types.ErrInternal, "migrate workflow schema").
			WithComponent("workflow_store").WithCause(err)
	}
	return &Repository{
		db:     db,
		logger: logger.With(zap.String("component", "workflow_store")),
	}, nil
}

// Save inserts the workflow or replaces the stored document under the
// same name.
func (r *Repository) Save(ctx context.Context, w *Workflow) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "document", "updated_at"}),
	}).Create(w).Error
	if err != nil {
		r.logger.Error("workflow save failed", zap.String("name", w.Name), zap.Error(err))
		return types.Errorf(types.ErrInternal, "save workflow %q", w.Name).
			WithComponent("workflow_store").WithCause(err)
	}
	r.logger.Debug("workflow saved", zap.String("name", w.Name), zap.String("kind", w.Kind))
	return nil
}

// Get loads a workflow by name.
func (r *Repository) Get(ctx context.Context, name string) (*Workflow, error) {
	var w Workflow
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrNotFound, "workflow %q not found", name).
			WithComponent("workflow_store")
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "load workflow %q", name).
			WithComponent("workflow_store").WithCause(err)
	}
	return &w, nil
}

// List returns all stored workflows ordered by name.
func (r *Repository) List(ctx context.Context) ([]Workflow, error) {
	var workflows []Workflow
	if err := r.db.WithContext(ctx).Order("name").Find(&workflows).Error; err != nil {
		return nil, types.NewError(types.ErrInternal, "list workflows").
			WithComponent("workflow_store").WithCause(err)
	}
	return workflows, nil
}

// Delete removes a workflow by name. Deleting an unknown name is not an
// error.
func (r *Repository) Delete(ctx context.Context, name string) error {
	if err := r.db.WithContext(ctx).Where("name = ?", name).Delete(&Workflow{}).Error; err != nil {
		return types.Errorf(types.ErrInternal, "delete workflow %q", name).
			WithComponent("workflow_store").WithCause(err)
	}
	return nil
}
