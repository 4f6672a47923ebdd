package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camden-git/framesys/database"
	"github.com/camden-git/framesys/models"
	"github.com/facette/natsort"
	"gorm.io/gorm"
)

// ProjectRepository handles database operations for Project entities
type ProjectRepository struct {
	DB *gorm.DB
}

// NewProjectRepository creates a new instance of ProjectRepository
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

// Create inserts a new project record
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UnixMilli()
	if project.CreatedAt == 0 {
		project.CreatedAt = now
	}
	if project.UpdatedAt == 0 {
		project.UpdatedAt = now
	}
	if project.ScanRange == "" {
		project.ScanRange = models.ScanRangeFull
	}

	if err := r.DB.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project %s: %w", project.Name, err)
	}
	return nil
}

// GetByID retrieves a project by its ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project by ID %s: %w", id, err)
	}
	return &project, nil
}

// ListAll retrieves every project in the requested order
func (r *ProjectRepository) ListAll(ctx context.Context, sortOrder string) ([]models.Project, error) {
	var projects []models.Project

	query := r.DB.WithContext(ctx)
	switch sortOrder {
	case database.SortCreatedAsc:
		query = query.Order("created_at ASC")
	default:
		query = query.Order("updated_at DESC")
	}
	if err := query.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	if sortOrder == database.SortNameNatural {
		sort.SliceStable(projects, func(i, j int) bool {
			return natsort.Compare(projects[i].Name, projects[j].Name)
		})
	}
	return projects, nil
}

// Update writes every column of the project and bumps its modification time
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UnixMilli()
	result := r.DB.WithContext(ctx).Save(project)
	if result.Error != nil {
		return fmt.Errorf("failed to update project %s: %w", project.ID, result.Error)
	}
	return nil
}

// Touch bumps a project's modification time
func (r *ProjectRepository) Touch(ctx context.Context, id string) error {
	result := r.DB.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UnixMilli())
	if result.Error != nil {
		return fmt.Errorf("failed to touch project %s: %w", id, result.Error)
	}
	return nil
}

// Delete removes a project and all of its frames in one transaction
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Frame{}).Error; err != nil {
			return fmt.Errorf("failed to delete frames of project %s: %w", id, err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Project{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete project %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
