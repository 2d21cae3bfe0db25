// Package metrics queries aggregated token and cost data back out of
// Prometheus. The recorder middleware writes the series; this package
// reads them to report what a run spent.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// IssueMetrics represents aggregated LLM usage for one issue.
type IssueMetrics struct {
	Issue            string  `json:"issue"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// sum runs an instant query and returns the first sample value, or zero
// when the series does not exist yet.
func (q *QueryService) sum(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetIssueMetrics retrieves aggregated token and cost metrics for one
// issue, summed across every run and every agent turn recorded for it.
func (q *QueryService) GetIssueMetrics(ctx context.Context, issueNumber int) (*IssueMetrics, error) {
	issue := fmt.Sprintf("%d", issueNumber)
	metrics := &IssueMetrics{Issue: issue}

	prompt, err := q.sum(ctx, fmt.Sprintf(`sum(llm_tokens_total{issue=%q, type="prompt"})`, issue))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(prompt)

	completion, err := q.sum(ctx, fmt.Sprintf(`sum(llm_tokens_total{issue=%q, type="completion"})`, issue))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completion)
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	cost, err := q.sum(ctx, fmt.Sprintf(`sum(llm_costs_total{issue=%q})`, issue))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	metrics.TotalCost = cost

	return metrics, nil
}

// GetIssueMetricsByModel retrieves metrics for one issue broken down by
// model, showing which models were used and what each one cost.
func (q *QueryService) GetIssueMetricsByModel(ctx context.Context, issueNumber int) (map[string]*IssueMetrics, error) {
	issue := fmt.Sprintf("%d", issueNumber)
	result := make(map[string]*IssueMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{issue=%q})`, issue)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		metrics := &IssueMetrics{Issue: issue}

		prompt, err := q.sum(ctx, fmt.Sprintf(
			`sum(llm_tokens_total{issue=%q, model=%q, type="prompt"})`, issue, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		metrics.PromptTokens = int64(prompt)

		completion, err := q.sum(ctx, fmt.Sprintf(
			`sum(llm_tokens_total{issue=%q, model=%q, type="completion"})`, issue, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		metrics.CompletionTokens = int64(completion)
		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

		cost, err := q.sum(ctx, fmt.Sprintf(
			`sum(llm_costs_total{issue=%q, model=%q})`, issue, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		metrics.TotalCost = cost

		result[modelName] = metrics
	}

	return result, nil
}
