package port

import (
	"context"
	"time"
)

// Flow описание пайплайна оркестратора
type Flow struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled"`
}

// Execution запуск пайплайна
type Execution struct {
	ID        string        `json:"id"`
	FlowID    string        `json:"flow_id"`
	Namespace string        `json:"namespace"`
	State     string        `json:"state"`
	StartDate *time.Time    `json:"start_date,omitempty"`
	EndDate   *time.Time    `json:"end_date,omitempty"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message"`
}

// WorkflowClient клиент оркестратора пайплайнов (Port)
type WorkflowClient interface {
	ListFlows(ctx context.Context, namespace string) ([]Flow, error)
	ListExecutions(ctx context.Context, namespace, flowID string, size int) ([]Execution, error)
	GetExecution(ctx context.Context, executionID string) (Execution, error)
	TriggerExecution(ctx context.Context, namespace, flowID string, inputs map[string]string) (string, error)
}
