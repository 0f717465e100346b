package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

func completedRecord() models.JobStatusRecord {
	path := "generated/ud105/job-1.pdf"
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.JobStatusRecord{
		JobID:       "job-1",
		Namespace:   models.NamespacePDFGeneration,
		Status:      models.StatusCompleted,
		CompletedAt: &done,
		Result: &models.Result{
			JobID:        "job-1",
			DocumentType: "ud105",
			Uploaded:     true,
			RemotePath:   &path,
			SHA256:       "abc",
		},
	}
}

func TestCloudEventsNotifier_SendsBinaryEvent(t *testing.T) {
	type received struct {
		ceType, subject, source string
		body                    Payload
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &p)
		got <- received{
			ceType:  r.Header.Get("Ce-Type"),
			subject: r.Header.Get("Ce-Subject"),
			source:  r.Header.Get("Ce-Source"),
			body:    p,
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewCloudEventsNotifier(srv.URL, "casedocflow/test")
	if err != nil {
		t.Fatalf("NewCloudEventsNotifier() error = %v", err)
	}
	if err := n.Notify(context.Background(), completedRecord()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	r := <-got
	if r.ceType != EventTypeCompleted || r.subject != "job-1" || r.source != "casedocflow/test" {
		t.Errorf("headers = %+v", r)
	}
	if r.body.JobID != "job-1" || !r.body.Uploaded || r.body.RemotePath == nil {
		t.Errorf("payload = %+v", r.body)
	}
}

func TestCloudEventsNotifier_ReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewCloudEventsNotifier(srv.URL, "casedocflow/test")
	if err != nil {
		t.Fatal(err)
	}
	rec := completedRecord()
	rec.Status = models.StatusFailed
	if err := n.Notify(context.Background(), rec); err == nil {
		t.Error("Notify() expected error for a 500 response")
	}
}

type fakeExecutions struct {
	req *executionspb.CreateExecutionRequest
	err error
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest, _ ...gax.CallOption) (*executionspb.Execution, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &executionspb.Execution{Name: req.Parent + "/executions/1"}, nil
}

func TestWorkflowNotifier(t *testing.T) {
	api := &fakeExecutions{}
	n := NewWorkflowNotifier(api, "proj", "us-central1", "file-documents")

	if err := n.Notify(context.Background(), completedRecord()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if api.req == nil {
		t.Fatal("no execution created")
	}
	if api.req.Parent != "projects/proj/locations/us-central1/workflows/file-documents" {
		t.Errorf("Parent = %q", api.req.Parent)
	}
	if !strings.Contains(api.req.Execution.Argument, `"jobId":"job-1"`) {
		t.Errorf("Argument = %s", api.req.Execution.Argument)
	}
}

func TestWorkflowNotifier_SkipsFailedJobs(t *testing.T) {
	api := &fakeExecutions{}
	rec := completedRecord()
	rec.Status = models.StatusFailed
	if err := NewWorkflowNotifier(api, "p", "l", "w").Notify(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if api.req != nil {
		t.Error("execution created for a failed job")
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, models.JobStatusRecord) error {
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("sink down")
	a, b := &recordingNotifier{err: boom}, &recordingNotifier{}
	err := Multi{a, b}.Notify(context.Background(), completedRecord())
	if !errors.Is(err, boom) {
		t.Errorf("Notify() error = %v, want %v", err, boom)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d; want every notifier called", a.calls, b.calls)
	}
}
