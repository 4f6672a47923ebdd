package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/camden-git/framesys/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FrameRepository handles database operations for Frame entities
type FrameRepository struct {
	DB *gorm.DB
}

// NewFrameRepository creates a new instance of FrameRepository
func NewFrameRepository(db *gorm.DB) *FrameRepository {
	return &FrameRepository{DB: db}
}

func upsertAll() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}
}

// Save inserts or fully replaces a single frame
func (r *FrameRepository) Save(ctx context.Context, frame *models.Frame) error {
	if err := r.DB.WithContext(ctx).Clauses(upsertAll()).Create(frame).Error; err != nil {
		return fmt.Errorf("failed to save frame %s: %w", frame.ID, err)
	}
	return nil
}

// SaveFrames upserts a batch of frames in a single transaction
func (r *FrameRepository) SaveFrames(ctx context.Context, frames []models.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range frames {
			if err := tx.Clauses(upsertAll()).Create(&frames[i]).Error; err != nil {
				return fmt.Errorf("failed to save frame %s in batch: %w", frames[i].ID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a frame by its ID
func (r *FrameRepository) GetByID(ctx context.Context, id string) (*models.Frame, error) {
	var frame models.Frame
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&frame).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get frame by ID %s: %w", id, err)
	}
	return &frame, nil
}

// ListByProject retrieves a project's frames in timestamp order
func (r *FrameRepository) ListByProject(ctx context.Context, projectID string) ([]models.Frame, error) {
	var frames []models.Frame
	err := r.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp ASC").Order("created_at ASC").
		Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list frames for project %s: %w", projectID, err)
	}
	return frames, nil
}

// ListKeepers retrieves keeper frames. An empty projectID spans all projects.
func (r *FrameRepository) ListKeepers(ctx context.Context, projectID string) ([]models.Frame, error) {
	var frames []models.Frame
	query := r.DB.WithContext(ctx).Where("is_keeper = ?", true)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	err := query.Order("project_id ASC").Order("timestamp ASC").Order("created_at ASC").Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keeper frames: %w", err)
	}
	return frames, nil
}

// Delete removes a frame by ID. Deleting a missing frame is not an error.
func (r *FrameRepository) Delete(ctx context.Context, id string) error {
	if err := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Frame{}).Error; err != nil {
		return fmt.Errorf("failed to delete frame %s: %w", id, err)
	}
	return nil
}

// DeleteByProject removes every frame of a project
func (r *FrameRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	result := r.DB.WithContext(ctx).Where("project_id = ?", projectID).Delete(&models.Frame{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete frames for project %s: %w", projectID, result.Error)
	}
	return result.RowsAffected, nil
}
