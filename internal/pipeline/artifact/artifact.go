// Package artifact implements Artifact versioning and content-sink writes
// (§4.9): allocate the next version for a (task_id, artifact_type) group
// inside the caller's transaction, write the content to object storage at a
// deterministic key, then persist the Artifact row alongside it.
package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pipelineengine/internal/adapters/storage"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/config"
	"pipelineengine/platform/sanitize"
)

// Service versions and persists step output artifacts. It depends on the
// generic object-storage adapter rather than talking to MinIO directly —
// nothing about writing an object is specific to this domain. Content goes
// through the adapter's UploadFile, which does not validate content type or
// size.
type Service struct {
	storage storage.StorageService
	bucket  string
}

func NewService(storageSvc storage.StorageService, cfg config.MinIOConfig) *Service {
	return &Service{
		storage: storageSvc,
		bucket:  cfg.GetMinioBucketArtifacts(),
	}
}

// CreateArtifactParams is the input to CreateArtifact.
type CreateArtifactParams struct {
	TenantID      string
	TaskID        string
	PipelineRunID string
	StepRunID     string
	ArtifactType  domain.ArtifactType
	ContentText   string
	Metadata      map[string]any
}

// CreateArtifact runs the §4.9 sequence: compute the next version under the
// advisory lock MaxVersion already takes, write the content to the sink at
// {task_id}/{artifact_type}_v{version}, then persist the Artifact row. repos
// MUST be the transaction-scoped bundle from a UnitOfWork.WithinTx call, since
// MaxVersion's serialization guarantee depends on running inside that
// transaction.
func (s *Service) CreateArtifact(ctx context.Context, repos *repository.Repositories, p CreateArtifactParams) (*domain.Artifact, error) {
	maxVersion, err := repos.Artifacts.MaxVersion(ctx, p.TaskID, p.ArtifactType)
	if err != nil {
		return nil, fmt.Errorf("artifact: allocate version: %w", err)
	}
	version := maxVersion + 1

	contentText := sanitize.Text(p.ContentText)
	key := fmt.Sprintf("%s_v%d", p.ArtifactType, version)

	if err := s.storage.EnsureBucketExists(ctx, s.bucket); err != nil {
		return nil, fmt.Errorf("artifact: ensure bucket: %w", err)
	}
	storagePath, err := s.storage.UploadFile(ctx, s.bucket, p.TaskID, key, "text/plain; charset=utf-8", strings.NewReader(contentText), int64(len(contentText)))
	if err != nil {
		return nil, fmt.Errorf("artifact: write content sink: %w", err)
	}

	a := &domain.Artifact{
		ID:            uuid.New().String(),
		TenantID:      p.TenantID,
		TaskID:        p.TaskID,
		PipelineRunID: p.PipelineRunID,
		StepRunID:     p.StepRunID,
		ArtifactType:  p.ArtifactType,
		Status:        domain.ArtifactStatusDraft,
		Version:       version,
		Content: domain.ArtifactContent{
			Text:     contentText,
			URL:      storagePath,
			Metadata: p.Metadata,
		},
	}

	if err := repos.Artifacts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("artifact: persist: %w", err)
	}

	return a, nil
}
