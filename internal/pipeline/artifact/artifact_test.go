package artifact

import (
	"context"
	"io"
	"testing"

	"pipelineengine/internal/adapters/storage"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
)

type fakeStorage struct {
	uploaded map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string]string{}}
}

func (f *fakeStorage) GenerateUploadURL(ctx context.Context, bucket, folder, fileName, contentType string, sizeBytes int64) (*storage.PresignedURL, error) {
	return nil, nil
}
func (f *fakeStorage) GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error) {
	return nil, nil
}
func (f *fakeStorage) DownloadFile(ctx context.Context, bucket, fileKey string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeStorage) DeleteObject(ctx context.Context, bucket, fileKey string) error { return nil }
func (f *fakeStorage) UploadFile(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	key := bucket + "/" + folder + "/" + fileName
	f.uploaded[key] = string(b)
	return key, nil
}
func (f *fakeStorage) EnsureBucketExists(ctx context.Context, bucket string) error { return nil }
func (f *fakeStorage) ValidateContentType(contentType string) error                { return nil }
func (f *fakeStorage) ValidateFileSize(sizeBytes int64) error                       { return nil }
func (f *fakeStorage) GetMaxFileSize() int64                                        { return 0 }

type fakeArtifactRepo struct {
	byGroup map[string][]*domain.Artifact
	created []*domain.Artifact
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{byGroup: map[string][]*domain.Artifact{}}
}

func groupKey(taskID string, artifactType domain.ArtifactType) string {
	return taskID + "|" + string(artifactType)
}

func (f *fakeArtifactRepo) Create(ctx context.Context, a *domain.Artifact) error {
	key := groupKey(a.TaskID, a.ArtifactType)
	f.byGroup[key] = append(f.byGroup[key], a)
	f.created = append(f.created, a)
	return nil
}
func (f *fakeArtifactRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Artifact, error) {
	return nil, nil
}
func (f *fakeArtifactRepo) Update(ctx context.Context, a *domain.Artifact) error { return nil }
func (f *fakeArtifactRepo) MaxVersion(ctx context.Context, taskID string, artifactType domain.ArtifactType) (int, error) {
	versions := f.byGroup[groupKey(taskID, artifactType)]
	max := 0
	for _, a := range versions {
		if a.Version > max {
			max = a.Version
		}
	}
	return max, nil
}
func (f *fakeArtifactRepo) GetLatest(ctx context.Context, taskID string, artifactType domain.ArtifactType) (*domain.Artifact, error) {
	return nil, nil
}
func (f *fakeArtifactRepo) ListByTask(ctx context.Context, tenantID, taskID string) ([]*domain.Artifact, error) {
	return nil, nil
}

func newTestRepos(ar *fakeArtifactRepo) *repository.Repositories {
	return &repository.Repositories{Artifacts: ar}
}

func TestCreateArtifactAllocatesSequentialVersions(t *testing.T) {
	st := newFakeStorage()
	repos := newTestRepos(newFakeArtifactRepo())
	svc := &Service{storage: st, bucket: "artifacts"}

	params := CreateArtifactParams{
		TenantID:      "tenant-1",
		TaskID:        "task-1",
		PipelineRunID: "run-1",
		StepRunID:     "step-1",
		ArtifactType:  domain.ArtifactTypeAnalysisReport,
		ContentText:   "analysis report text",
	}

	first, err := svc.CreateArtifact(context.Background(), repos, params)
	if err != nil {
		t.Fatalf("first CreateArtifact: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first version = %d, want 1", first.Version)
	}

	second, err := svc.CreateArtifact(context.Background(), repos, params)
	if err != nil {
		t.Fatalf("second CreateArtifact: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second version = %d, want 2", second.Version)
	}

	wantKey := "artifacts/task-1/ANALYSIS_REPORT_v2"
	if got := st.uploaded[wantKey]; got != "analysis report text" {
		t.Fatalf("uploaded content at %q = %q, want %q", wantKey, got, "analysis report text")
	}
	if second.Content.URL != wantKey {
		t.Fatalf("artifact URL = %q, want %q", second.Content.URL, wantKey)
	}
	if second.Status != domain.ArtifactStatusDraft {
		t.Fatalf("status = %s, want draft", second.Status)
	}
}

func TestCreateArtifactVersionsIndependentlyPerArtifactType(t *testing.T) {
	st := newFakeStorage()
	repos := newTestRepos(newFakeArtifactRepo())
	svc := &Service{storage: st, bucket: "artifacts"}

	base := CreateArtifactParams{
		TenantID: "tenant-1",
		TaskID:   "task-1",
	}

	analysis := base
	analysis.ArtifactType = domain.ArtifactTypeAnalysisReport
	analysis.ContentText = "analysis"
	a1, err := svc.CreateArtifact(context.Background(), repos, analysis)
	if err != nil {
		t.Fatalf("analysis artifact: %v", err)
	}

	stories := base
	stories.ArtifactType = domain.ArtifactTypeUserStories
	stories.ContentText = "stories"
	s1, err := svc.CreateArtifact(context.Background(), repos, stories)
	if err != nil {
		t.Fatalf("stories artifact: %v", err)
	}

	if a1.Version != 1 || s1.Version != 1 {
		t.Fatalf("expected both groups to start at version 1, got %d and %d", a1.Version, s1.Version)
	}
}
