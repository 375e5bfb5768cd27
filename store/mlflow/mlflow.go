package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/kbagents/store"
)

// MLflowTracker implements store.Tracker against an MLflow tracking server's
// REST API (version 2.0).
type MLflowTracker struct {
	BaseURL string
	Token   string
	client  *http.Client
}

var _ store.Tracker = (*MLflowTracker)(nil)

// Option configures an MLflowTracker.
type Option func(*MLflowTracker)

// WithToken sets a bearer token sent with every request.
func WithToken(token string) Option {
	return func(t *MLflowTracker) {
		t.Token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *MLflowTracker) {
		t.client = client
	}
}

// NewMLflowTracker creates a tracker for the server at trackingURI,
// e.g. "http://localhost:5000".
func NewMLflowTracker(trackingURI string, opts ...Option) (*MLflowTracker, error) {
	u, err := url.Parse(trackingURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid mlflow tracking uri %q", trackingURI)
	}

	t := &MLflowTracker{
		BaseURL: strings.TrimRight(trackingURI, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// APIError is an error response from the tracking server.
type APIError struct {
	StatusCode int
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow api returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

const resourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"

type runInfo struct {
	RunID        string     `json:"run_id"`
	ExperimentID string     `json:"experiment_id"`
	RunName      string     `json:"run_name"`
	Status       string     `json:"status"`
	StartTime    int64Value `json:"start_time"`
	EndTime      int64Value `json:"end_time,omitempty"`
}

// int64Value decodes int64 fields that the server may render as strings.
type int64Value int64

func (v *int64Value) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*v = int64Value(n)
	return nil
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string     `json:"key"`
	Value     float64    `json:"value"`
	Timestamp int64Value `json:"timestamp"`
	Step      int64Value `json:"step"`
}

type runData struct {
	Metrics []metric   `json:"metrics"`
	Params  []keyValue `json:"params"`
	Tags    []keyValue `json:"tags"`
}

type runPayload struct {
	Info runInfo `json:"info"`
	Data runData `json:"data"`
}

func (t *MLflowTracker) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := t.BaseURL + "/api/2.0/mlflow/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (t *MLflowTracker) experimentID(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := t.do(ctx, http.MethodGet, "experiments/get-by-name", url.Values{"experiment_name": {name}}, nil, &got)
	if err == nil {
		return got.Experiment.ExperimentID, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != resourceDoesNotExist {
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := t.do(ctx, http.MethodPost, "experiments/create", nil, map[string]string{"name": name}, &created); err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

// StartRun implements store.Tracker.
func (t *MLflowTracker) StartRun(ctx context.Context, experiment, runName string) (*store.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	expID, err := t.experimentID(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve experiment %s: %w", experiment, err)
	}

	start := time.Now()
	req := map[string]any{
		"experiment_id": expID,
		"run_name":      runName,
		"start_time":    start.UnixMilli(),
		"tags":          []keyValue{{Key: "mlflow.runName", Value: runName}},
	}
	var resp struct {
		Run runPayload `json:"run"`
	}
	if err := t.do(ctx, http.MethodPost, "runs/create", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return &store.Run{
		ID:           resp.Run.Info.RunID,
		ExperimentID: expID,
		Experiment:   experiment,
		Name:         runName,
		Status:       store.RunStatusRunning,
		StartTime:    time.UnixMilli(start.UnixMilli()),
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
	}, nil
}

// LogParams implements store.Tracker.
func (t *MLflowTracker) LogParams(ctx context.Context, runID string, params map[string]string) error {
	batch := make([]keyValue, 0, len(params))
	for k, v := range params {
		batch = append(batch, keyValue{Key: k, Value: v})
	}
	return t.logBatch(ctx, runID, map[string]any{"run_id": runID, "params": batch})
}

// LogMetrics implements store.Tracker.
func (t *MLflowTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	now := time.Now().UnixMilli()
	batch := make([]metric, 0, len(metrics))
	for k, v := range metrics {
		batch = append(batch, metric{Key: k, Value: v, Timestamp: int64Value(now)})
	}
	return t.logBatch(ctx, runID, map[string]any{"run_id": runID, "metrics": batch})
}

func (t *MLflowTracker) logBatch(ctx context.Context, runID string, body map[string]any) error {
	if err := t.do(ctx, http.MethodPost, "runs/log-batch", nil, body, nil); err != nil {
		return wrapRunError(runID, "failed to log batch", err)
	}
	return nil
}

// EndRun implements store.Tracker.
func (t *MLflowTracker) EndRun(ctx context.Context, runID string, status store.RunStatus) error {
	body := map[string]any{
		"run_id":   runID,
		"status":   string(status),
		"end_time": time.Now().UnixMilli(),
	}
	if err := t.do(ctx, http.MethodPost, "runs/update", nil, body, nil); err != nil {
		return wrapRunError(runID, "failed to end run", err)
	}
	return nil
}

// GetRun implements store.Tracker.
func (t *MLflowTracker) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	var resp struct {
		Run runPayload `json:"run"`
	}
	if err := t.do(ctx, http.MethodGet, "runs/get", url.Values{"run_id": {runID}}, nil, &resp); err != nil {
		return nil, wrapRunError(runID, "failed to get run", err)
	}

	info := resp.Run.Info
	run := &store.Run{
		ID:           info.RunID,
		ExperimentID: info.ExperimentID,
		Name:         info.RunName,
		Status:       store.RunStatus(info.Status),
		StartTime:    time.UnixMilli(int64(info.StartTime)),
		Params:       make(map[string]string, len(resp.Run.Data.Params)),
		Metrics:      make(map[string]float64, len(resp.Run.Data.Metrics)),
	}
	if info.EndTime > 0 {
		run.EndTime = time.UnixMilli(int64(info.EndTime))
	}
	for _, p := range resp.Run.Data.Params {
		run.Params[p.Key] = p.Value
	}
	for _, m := range resp.Run.Data.Metrics {
		run.Metrics[m.Key] = m.Value
	}

	var exp struct {
		Experiment struct {
			Name string `json:"name"`
		} `json:"experiment"`
	}
	if err := t.do(ctx, http.MethodGet, "experiments/get", url.Values{"experiment_id": {info.ExperimentID}}, nil, &exp); err != nil {
		return nil, fmt.Errorf("failed to get experiment %s: %w", info.ExperimentID, err)
	}
	run.Experiment = exp.Experiment.Name
	return run, nil
}

// Close implements store.Tracker.
func (t *MLflowTracker) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func wrapRunError(runID, msg string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == resourceDoesNotExist {
		return fmt.Errorf("%w: %s: %w", store.ErrRunNotFound, runID, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
