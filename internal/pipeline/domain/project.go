package domain

import "time"

// Project groups tasks under a tenant. Tasks cannot be created in an
// archived project (§3).
type Project struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Status      ProjectStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether new tasks may be created in this project.
func (p *Project) IsActive() bool {
	return p.Status == ProjectStatusActive
}

// Archive transitions the project to archived.
func (p *Project) Archive() {
	p.Status = ProjectStatusArchived
	p.UpdatedAt = time.Now().UTC()
}
