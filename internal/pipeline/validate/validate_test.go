package validate

import (
	"context"
	"errors"
	"testing"

	"pipelineengine/internal/pipeline/billing"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
)

type fakeTaskRepo struct {
	tasks map[string]*domain.Task // keyed by tenantID+"|"+taskID
}

func newFakeTaskRepo() *fakeTaskRepo { return &fakeTaskRepo{tasks: map[string]*domain.Task{}} }

func (f *fakeTaskRepo) put(tenantID string, t *domain.Task) {
	f.tasks[tenantID+"|"+t.ID] = t
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *domain.Task) error { return nil }
func (f *fakeTaskRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	t, ok := f.tasks[tenantID+"|"+id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}
func (f *fakeTaskRepo) Update(ctx context.Context, t *domain.Task) error { return nil }
func (f *fakeTaskRepo) ListByProject(ctx context.Context, tenantID, projectID string, limit, offset int) ([]*domain.Task, error) {
	return nil, nil
}

type fakeBillingClient struct {
	balance float64
	err     error
}

func (f *fakeBillingClient) Consume(ctx context.Context, req billing.CreditRequest) (*billing.Transaction, error) {
	return nil, nil
}
func (f *fakeBillingClient) Refund(ctx context.Context, req billing.CreditRequest) (*billing.Transaction, error) {
	return nil, nil
}
func (f *fakeBillingClient) Balance(ctx context.Context, tenantID string) (*billing.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &billing.Balance{TenantID: tenantID, Balance: f.balance}, nil
}

func TestValidateEligibleWhenBalanceCoversCost(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.put("tenant-1", &domain.Task{ID: "task-1", TenantID: "tenant-1"})
	repos := &repository.Repositories{Tasks: taskRepo}

	v := New(repos, &fakeBillingClient{balance: 1000})

	result, err := v.Validate(context.Background(), "task-1", "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Eligible {
		t.Fatalf("expected eligible=true")
	}
	if result.EstimatedCost != 150 {
		t.Fatalf("estimated cost = %v, want 150", result.EstimatedCost)
	}
}

func TestValidateEligibleWhenBalanceExactlyEqualsCost(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.put("tenant-1", &domain.Task{ID: "task-1", TenantID: "tenant-1"})
	repos := &repository.Repositories{Tasks: taskRepo}

	v := New(repos, &fakeBillingClient{balance: 150})

	result, err := v.Validate(context.Background(), "task-1", "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Eligible {
		t.Fatalf("expected eligible=true when balance exactly equals cost")
	}
}

func TestValidateIneligibleWhenBalanceInsufficient(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.put("tenant-1", &domain.Task{ID: "task-1", TenantID: "tenant-1"})
	repos := &repository.Repositories{Tasks: taskRepo}

	v := New(repos, &fakeBillingClient{balance: 80})

	result, err := v.Validate(context.Background(), "task-1", "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Eligible {
		t.Fatalf("expected eligible=false")
	}
	if result.Reason == "" {
		t.Fatalf("expected a reason message")
	}
}

func TestValidateReturnsErrorForUnknownTask(t *testing.T) {
	repos := &repository.Repositories{Tasks: newFakeTaskRepo()}
	v := New(repos, &fakeBillingClient{balance: 1000})

	if _, err := v.Validate(context.Background(), "missing", "tenant-1"); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestValidatePropagatesBillingUnavailable(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.put("tenant-1", &domain.Task{ID: "task-1", TenantID: "tenant-1"})
	repos := &repository.Repositories{Tasks: taskRepo}

	v := New(repos, &fakeBillingClient{err: billing.ErrServiceUnavailable})

	if _, err := v.Validate(context.Background(), "task-1", "tenant-1"); err == nil {
		t.Fatalf("expected error when billing is unavailable")
	}
}
