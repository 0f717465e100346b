package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/casedocflow/internal/app"
	"github.com/Lllllllleong/casedocflow/internal/config"
	"github.com/Lllllllleong/casedocflow/internal/gcp"
	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/services"
)

var (
	application *app.App
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDocgenAPI", handleAPI)
	functions.CloudEvent("GenerateFromUpload", generateFromUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func initialize() {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load()
		if initErr != nil {
			return
		}
		application, initErr = app.New(context.Background(), cfg)
	})
}

// handleAPI serves the same HTTP API as the standalone server.
func handleAPI(w http.ResponseWriter, r *http.Request) {
	initialize()
	if initErr != nil {
		slog.Error("Critical: generator initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	application.Server.Router().ServeHTTP(w, r)
}

// generateFromUpload runs one job for a case upload JSON object finalized
// in the intake bucket. The job runs to completion inside the invocation.
func generateFromUpload(ctx context.Context, e cloudevents.Event) error {
	initialize()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)
	if !strings.HasSuffix(gcsEvent.Name, ".json") {
		logCtx.Info("Ignoring non-JSON object.")
		return nil
	}

	client, err := application.Clients.Storage(ctx)
	if err != nil {
		return err
	}
	raw, err := gcp.ReadObject(ctx, client, gcsEvent.Bucket, gcsEvent.Name)
	if err != nil {
		logCtx.Error("Failed to read case upload.", "error", err)
		return err
	}

	var upload models.CaseUpload
	if err := json.Unmarshal(raw, &upload); err != nil {
		// A malformed upload will never succeed; retrying the event is pointless.
		logCtx.Error("Case upload is not valid JSON. Skipping.", "error", err)
		return nil
	}

	req := services.JobRequest{
		JobID:        upload.JobID,
		DocumentType: upload.DocumentType,
		CaseData:     upload.CaseData,
	}
	if upload.Options != nil {
		req.Options = *upload.Options
	}

	res, err := application.Generator.Run(ctx, req)
	if errors.Is(err, services.ErrDuplicateJob) {
		// Redelivered event for a job that is running or already done.
		logCtx.Info("Case upload already processed. Skipping.", "jobId", upload.JobID)
		return nil
	}
	if err != nil {
		// Validation and generation failures are recorded on the job.
		logCtx.Warn("Generation from upload failed.", "error", err, "userMessage", services.UserMessage(err))
		return nil
	}
	logCtx.Info("Generated document from upload.", "jobId", res.JobID, "uploaded", res.Uploaded)
	return nil
}
