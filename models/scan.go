package models

import "time"

// ScanStatus is the backend-reported state of a submitted scan.
type ScanStatus string

const (
	ScanNotStarted ScanStatus = "not-started"
	ScanRunning    ScanStatus = "running"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// Terminal reports whether the backend will not move the scan further.
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// ProjectType distinguishes uploaded projects from connected repositories.
type ProjectType string

const (
	ProjectLocal  ProjectType = "local"
	ProjectGitHub ProjectType = "github"
)

// Project is what a scan is requested for.
type Project struct {
	ID             string      `json:"id"                        yaml:"id"`
	Name           string      `json:"name,omitempty"            yaml:"name,omitempty"`
	Type           ProjectType `json:"type"                      yaml:"type"`
	InstallationID string      `json:"installation_id,omitempty" yaml:"installation_id,omitempty"`
	Owner          string      `json:"owner,omitempty"           yaml:"owner,omitempty"`
	Repo           string      `json:"repo,omitempty"            yaml:"repo,omitempty"`
}

// DisplayName is the name sent to the backend: local projects use their
// name, GitHub projects their repository name.
func (p Project) DisplayName() string {
	name := p.Name
	if p.Type == ProjectGitHub && p.Repo != "" {
		name = p.Repo
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

// ScanSession is the gateway's record of a scan it submitted on behalf of a user.
type ScanSession struct {
	ScanID        string     `json:"scan_id"`
	UserID        string     `json:"user_id"`
	ProjectID     string     `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	ProjectType   string     `json:"project_type"`
	DASTEnabled   bool       `json:"dast_enabled"`
	DeploymentURL string     `json:"deployment_url,omitempty"`
	Status        ScanStatus `json:"status"`
	Phase         string     `json:"current_phase,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ScanRequest is the body of POST /api/scan/validate on the gateway.
// GitHub projects carry installation identifiers only; the gateway turns
// them into a short-lived token.
type ScanRequest struct {
	ProjectID      FlexString `json:"project_id"`
	ProjectName    string     `json:"project_name"`
	ProjectType    string     `json:"project_type"`
	DeploymentURL  string     `json:"deployment_url,omitempty"`
	InstallationID FlexString `json:"installation_id,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Repo           string     `json:"repo,omitempty"`
}

// NewScanRequest builds the request the scan flow submits for p.
func NewScanRequest(p Project, deploymentURL string) ScanRequest {
	req := ScanRequest{
		ProjectID:     FlexString(p.ID),
		ProjectName:   p.DisplayName(),
		ProjectType:   string(p.Type),
		DeploymentURL: deploymentURL,
	}
	if p.Type == ProjectGitHub {
		req.InstallationID = FlexString(p.InstallationID)
		req.Owner = p.Owner
		req.Repo = p.Repo
	}
	return req
}
