package flowrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/infrastructure/database/entities"
)

// PostgresRepository persists flow documents via PostgreSQL using GORM.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a repository backed by the provided DB.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Load returns the stored document of a flow.
func (r *PostgresRepository) Load(ctx context.Context, id string) (*flow.Flow, error) {
	var record entities.Flow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, flow.ErrNotFound
		}
		return nil, fmt.Errorf("load flow %s: %w", id, err)
	}
	return toDomain(record)
}

// Save upserts the flow document.
func (r *PostgresRepository) Save(ctx context.Context, f *flow.Flow) error {
	record, err := toEntity(f)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "language", "category", "version", "step_count", "section_titles", "content", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save flow %s: %w", f.ID, err)
	}
	return nil
}

func toEntity(f *flow.Flow) (entities.Flow, error) {
	content, err := json.Marshal(f)
	if err != nil {
		return entities.Flow{}, fmt.Errorf("encode flow %s: %w", f.ID, err)
	}
	sections := f.OrderedSections()
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	return entities.Flow{
		ID:            f.ID,
		Title:         f.Title,
		Language:      f.Language,
		Category:      f.Category,
		Version:       f.Version,
		StepCount:     len(f.Steps),
		SectionTitles: titles,
		Content:       datatypes.JSON(content),
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}, nil
}

func toDomain(record entities.Flow) (*flow.Flow, error) {
	var f flow.Flow
	if err := json.Unmarshal(record.Content, &f); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", record.ID, err)
	}
	f.ID = record.ID
	return &f, nil
}
