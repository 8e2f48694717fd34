package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/worker"
)

type scriptedWebsite struct {
	mu    sync.Mutex
	calls []model.WebsiteTask
	fn    func(model.WebsiteTask) (*model.ExtractionResult, error)
}

func (s *scriptedWebsite) Run(_ context.Context, task model.WebsiteTask) (*model.ExtractionResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, task)
	s.mu.Unlock()
	return s.fn(task)
}

func TestEnrichCompanies_CountsByStatus(t *testing.T) {
	runner := &scriptedWebsite{fn: func(task model.WebsiteTask) (*model.ExtractionResult, error) {
		res := &model.ExtractionResult{CompanyID: task.CompanyID, Website: task.Website}
		switch task.CompanyID {
		case "company-1", "company-2":
			res.Status = model.EnrichmentCompleted
		case "company-3":
			res.Status = model.EnrichmentPartial
		case "company-4":
			res.Status = model.EnrichmentDatabaseError
			return res, errors.New("persist failed")
		default:
			return nil, errors.New("boom")
		}
		return res, nil
	}}

	companies := []model.Company{
		{CompanyID: "company-1", Website: "https://a.com.br"},
		{CompanyID: "company-2", Website: "https://b.com.br"},
		{CompanyID: "company-3", Website: "https://c.com.br"},
		{CompanyID: "company-4", Website: "https://d.com.br"},
		{CompanyID: "company-5", Website: "https://e.com.br"},
	}

	counts := enrichCompanies(context.Background(), runner, companies, 2)

	assert.Equal(t, 2, counts[model.EnrichmentCompleted])
	assert.Equal(t, 1, counts[model.EnrichmentPartial])
	assert.Equal(t, 1, counts[model.EnrichmentDatabaseError])
	assert.Equal(t, 1, counts[model.EnrichmentFailed])
	assert.Len(t, runner.calls, 5)
}

func TestFormatEnrichCounts(t *testing.T) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)

	formatEnrichCounts(c, map[model.EnrichmentStatus]int{model.EnrichmentCompleted: 3, model.EnrichmentFailed: 1}, 4)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Regexp(t, `completed\s+3`, out)
	assert.Regexp(t, `failed\s+1`, out)
	assert.Regexp(t, `total\s+4`, out)
}

func TestFormatQuota(t *testing.T) {
	var buf bytes.Buffer
	formatQuota(&buf, "google_places", model.QuotaState{Day: "2025-05-10", UnitsConsumed: 16000, DailyLimit: 20000})
	assert.Equal(t, "google_places 2025-05-10: 16000/20000 units used (80.0%), 4000 remaining\n", buf.String())
}

func TestDrainTopic(t *testing.T) {
	q := queue.NewMemory(time.Minute)
	ctx := context.Background()
	for _, id := range []string{"company-1", "company-2", "company-3"} {
		_, err := q.Publish(ctx, queue.TopicWebsite, model.WebsiteTask{CompanyID: id, Website: "https://" + id + ".com.br"})
		require.NoError(t, err)
	}

	runner := &scriptedWebsite{fn: func(task model.WebsiteTask) (*model.ExtractionResult, error) {
		return &model.ExtractionResult{CompanyID: task.CompanyID, Status: model.EnrichmentCompleted}, nil
	}}
	w := worker.New(nil, runner, q, worker.Options{BatchSize: 2, Concurrency: 2, MaxAttempts: 3})

	n, err := drainTopic(ctx, w, q, queue.TopicWebsite, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, q.Len(queue.TopicWebsite))
	assert.Len(t, runner.calls, 3)
}
