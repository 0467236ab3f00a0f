package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/selivandex/crypto-index/pkg/models"
)

type fakeStage struct {
	runs    int
	summary *models.RunSummary
	err     error
}

func (f *fakeStage) Run(ctx context.Context) (*models.RunSummary, error) {
	f.runs++
	return f.summary, f.err
}

func TestStageWorkerRunsStage(t *testing.T) {
	stage := &fakeStage{summary: models.NewRunSummary("test")}
	w := NewStageWorker("test", stage, nil)

	if w.Name() != "test" {
		t.Errorf("Name() = %q, want %q", w.Name(), "test")
	}
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stage.runs != 1 {
		t.Errorf("stage ran %d times, want 1", stage.runs)
	}
}

func TestStageWorkerPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	stage := &fakeStage{summary: models.NewRunSummary("test"), err: wantErr}
	w := NewStageWorker("test", stage, nil)

	if err := w.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}
