package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// ExecutionsAPI is the part of the Workflows Executions client used here.
type ExecutionsAPI interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowNotifier starts a Cloud Workflows execution for each completed
// job, so downstream filing steps run on the generated artifact. Failed
// jobs are not handed off.
type WorkflowNotifier struct {
	client ExecutionsAPI
	parent string
}

func NewWorkflowNotifier(client ExecutionsAPI, projectID, location, workflowID string) *WorkflowNotifier {
	return &WorkflowNotifier{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}
}

func (n *WorkflowNotifier) Notify(ctx context.Context, rec models.JobStatusRecord) error {
	if rec.Status != models.StatusCompleted {
		return nil
	}
	logCtx := slog.With("jobId", rec.JobID, "workflow", n.parent)

	payloadBytes, err := json.Marshal(NewPayload(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: n.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	logCtx.Info("Workflow execution started.", "execution", exec.GetName())
	return nil
}
