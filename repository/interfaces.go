package repository

import (
	"context"
	"errors"

	"github.com/camden-git/framesys/models"
)

// ErrNotFound is returned when a project or frame does not exist
var ErrNotFound = errors.New("record not found")

// ProjectRepositoryInterface defines the methods for project data operations
type ProjectRepositoryInterface interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListAll(ctx context.Context, sortOrder string) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// FrameRepositoryInterface defines the methods for frame data operations
type FrameRepositoryInterface interface {
	Save(ctx context.Context, frame *models.Frame) error
	SaveFrames(ctx context.Context, frames []models.Frame) error
	GetByID(ctx context.Context, id string) (*models.Frame, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Frame, error)
	ListKeepers(ctx context.Context, projectID string) ([]models.Frame, error)
	Delete(ctx context.Context, id string) error
	DeleteByProject(ctx context.Context, projectID string) (int64, error)
}

var (
	_ ProjectRepositoryInterface = (*ProjectRepository)(nil)
	_ FrameRepositoryInterface   = (*FrameRepository)(nil)
)
