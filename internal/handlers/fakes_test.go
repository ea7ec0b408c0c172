package handlers

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/repos"
	"github.com/moveatlas/moveatlas-backend/internal/services"
	"github.com/moveatlas/moveatlas-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New returned error: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

type fakeIngestService struct {
	enqueueFn func(ctx context.Context, rawURL string) (*types.IngestJob, error)
	cancelFn  func(ctx context.Context, jobID uuid.UUID) (bool, error)
	getFn     func(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error)
	listFn    func(ctx context.Context, limit int) ([]*types.IngestJob, error)
}

func (f *fakeIngestService) EnqueueURL(ctx context.Context, rawURL string) (*types.IngestJob, error) {
	return f.enqueueFn(ctx, rawURL)
}
func (f *fakeIngestService) RunJob(context.Context, *types.IngestJob) {}
func (f *fakeIngestService) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return f.cancelFn(ctx, jobID)
}
func (f *fakeIngestService) GetJob(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error) {
	return f.getFn(ctx, jobID)
}
func (f *fakeIngestService) ListJobs(ctx context.Context, limit int) ([]*types.IngestJob, error) {
	return f.listFn(ctx, limit)
}

type fakeExerciseService struct {
	listFn    func(ctx context.Context, filter repos.ExerciseFilter) ([]*types.Exercise, error)
	searchFn  func(ctx context.Context, query string, limit int) ([]*types.Exercise, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*types.Exercise, error)
	bulkGetFn func(ctx context.Context, ids []uuid.UUID) ([]*types.Exercise, error)
	deleteFn  func(ctx context.Context, id uuid.UUID) (*types.Exercise, error)
}

func (f *fakeExerciseService) List(ctx context.Context, filter repos.ExerciseFilter) ([]*types.Exercise, error) {
	return f.listFn(ctx, filter)
}
func (f *fakeExerciseService) Search(ctx context.Context, query string, limit int) ([]*types.Exercise, error) {
	return f.searchFn(ctx, query, limit)
}
func (f *fakeExerciseService) Get(ctx context.Context, id uuid.UUID) (*types.Exercise, error) {
	return f.getFn(ctx, id)
}
func (f *fakeExerciseService) BulkGet(ctx context.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
	return f.bulkGetFn(ctx, ids)
}
func (f *fakeExerciseService) Delete(ctx context.Context, id uuid.UUID) (*types.Exercise, error) {
	return f.deleteFn(ctx, id)
}

type fakeRoutineService struct {
	createFn  func(ctx context.Context, name string, description *string, exerciseIDs []uuid.UUID) (*types.WorkoutRoutine, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*services.RoutineDetail, error)
	listFn    func(ctx context.Context, limit, offset int) ([]*types.WorkoutRoutine, error)
	deleteFn  func(ctx context.Context, id uuid.UUID) error
	previewFn func(ctx context.Context, prompt string, count int) ([]services.PreviewPick, error)
}

func (f *fakeRoutineService) Create(ctx context.Context, name string, description *string, exerciseIDs []uuid.UUID) (*types.WorkoutRoutine, error) {
	return f.createFn(ctx, name, description, exerciseIDs)
}
func (f *fakeRoutineService) Get(ctx context.Context, id uuid.UUID) (*services.RoutineDetail, error) {
	return f.getFn(ctx, id)
}
func (f *fakeRoutineService) List(ctx context.Context, limit, offset int) ([]*types.WorkoutRoutine, error) {
	return f.listFn(ctx, limit, offset)
}
func (f *fakeRoutineService) Delete(ctx context.Context, id uuid.UUID) error {
	return f.deleteFn(ctx, id)
}
func (f *fakeRoutineService) Preview(ctx context.Context, prompt string, count int) ([]services.PreviewPick, error) {
	return f.previewFn(ctx, prompt, count)
}

type fakeStoryService struct {
	generateFn func(ctx context.Context, prompt string, n int) ([]string, error)
}

func (f *fakeStoryService) GenerateStories(ctx context.Context, prompt string, n int) ([]string, error) {
	return f.generateFn(ctx, prompt, n)
}

type fakeRetrievalService struct {
	diverseFn func(ctx context.Context, params services.DiverseSearchParams) ([]services.RetrievedExercise, error)
}

func (f *fakeRetrievalService) DiverseSearch(ctx context.Context, params services.DiverseSearchParams) ([]services.RetrievedExercise, error) {
	return f.diverseFn(ctx, params)
}
func (f *fakeRetrievalService) SearchIDsForStory(context.Context, string, int) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeReconcileService struct {
	sweepFn func(ctx context.Context, dryRun bool) (*services.ReconcileReport, error)
}

func (f *fakeReconcileService) Sweep(ctx context.Context, dryRun bool) (*services.ReconcileReport, error) {
	return f.sweepFn(ctx, dryRun)
}
