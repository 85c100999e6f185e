package rollout

import (
	"time"

	"github.com/felixgeelhaar/deckhand/internal/health"
)

// Outcome is the record of one rollout. It is reported, never persisted.
type Outcome struct {
	ID             string               `json:"id" yaml:"id"`
	Host           string               `json:"host" yaml:"host"`
	Image          string               `json:"image" yaml:"image"`
	Tag            string               `json:"tag" yaml:"tag"`
	Dir            string               `json:"dir" yaml:"dir"`
	Service        string               `json:"service" yaml:"service"`
	Port           int                  `json:"port,omitempty" yaml:"port,omitempty"`
	Success        bool                 `json:"success" yaml:"success"`
	FailedStep     string               `json:"failed_step,omitempty" yaml:"failed_step,omitempty"`
	Error          string               `json:"error,omitempty" yaml:"error,omitempty"`
	ManifestDigest string               `json:"manifest_digest,omitempty" yaml:"manifest_digest,omitempty"`
	Supersede      SupersedeReport      `json:"supersede" yaml:"supersede"`
	Health         *health.Verification `json:"health,omitempty" yaml:"health,omitempty"`
	Diagnostics    *Diagnostics         `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Steps          []StepResult         `json:"steps" yaml:"steps"`
	StartedAt      time.Time            `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time            `json:"finished_at" yaml:"finished_at"`
	Duration       time.Duration        `json:"duration" yaml:"duration"`
}

// StepResult records one pipeline step.
type StepResult struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// SupersedeReport lists the prior containers handled before start.
type SupersedeReport struct {
	Removed []Superseded `json:"removed" yaml:"removed"`
	Failed  []Superseded `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Superseded is one prior container.
type Superseded struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Image string `json:"image" yaml:"image"`
	Pass  string `json:"pass" yaml:"pass"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Diagnostics is the state dump captured after a failed health check.
type Diagnostics struct {
	PS   string `json:"ps" yaml:"ps"`
	Logs string `json:"logs" yaml:"logs"`
}
