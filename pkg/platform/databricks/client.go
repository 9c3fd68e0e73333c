// Package databricks implements platform.Adapter against the Databricks
// REST API (jobs 2.1, clusters 2.0, libraries 2.0).
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/platform"
	sharedhttp "github.com/pipelineguard/remediator/pkg/shared/http"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Client is a reference Databricks adapter. Host must include scheme, e.g.
// "https://my-workspace.cloud.databricks.com".
type Client struct {
	Host       string
	Token      string
	HTTPClient *http.Client
	log        *logrus.Entry
}

// NewClient builds a Databricks adapter client with the shared default
// transport, tuned with requestTimeout.
func NewClient(host, token string, requestTimeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		Host:       host,
		Token:      token,
		HTTPClient: sharedhttp.NewClientWithTimeout(requestTimeout),
		log:        log,
	}
}

var _ platform.Adapter = (*Client)(nil)

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return platform.NewAdapterError(platform.Permanent, operation, "failed to encode request", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Host+path, reqBody)
	if err != nil {
		return platform.NewAdapterError(platform.Permanent, operation, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	c.log.WithFields(logging.PlatformFields("databricks", operation, path).ToLogrus()).Debug("calling databricks api")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return platform.NewAdapterError(platform.Transient, operation, err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return platform.NewAdapterError(platform.Permanent, operation, "failed to decode response", err)
			}
		}
		return nil
	}

	return classifyStatus(operation, resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
}

func classifyStatus(operation string, status int, retryAfter, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		err := platform.NewAdapterError(platform.Throttled, operation, body, nil)
		if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
			err.RetryAfter = time.Duration(seconds) * time.Second
		}
		return err
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return platform.NewAdapterError(platform.AuthFailure, operation, body, nil)
	case status == http.StatusNotFound:
		return platform.NewAdapterError(platform.NotFound, operation, body, nil)
	case status >= 500:
		return platform.NewAdapterError(platform.Transient, operation, body, nil)
	default:
		return platform.NewAdapterError(platform.Permanent, operation, body, nil)
	}
}

func (c *Client) RetryJob(ctx context.Context, jobID, runID string) (string, error) {
	var out struct {
		RunID int64 `json:"run_id"`
	}
	err := c.do(ctx, "RetryJob", http.MethodPost, "/api/2.1/jobs/run-now", map[string]any{
		"job_id": jobID,
	}, &out)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(out.RunID, 10), nil
}

func (c *Client) RestartCluster(ctx context.Context, clusterID string) error {
	return c.do(ctx, "RestartCluster", http.MethodPost, "/api/2.0/clusters/restart", map[string]any{
		"cluster_id": clusterID,
	}, nil)
}

func (c *Client) ScaleCluster(ctx context.Context, clusterID string, deltaPercent, cap int) (int, error) {
	state, err := c.GetClusterState(ctx, clusterID)
	if err != nil {
		return 0, err
	}
	newCount := int(math.Ceil(float64(state.WorkerCount) * (1 + float64(deltaPercent)/100)))
	if newCount > cap {
		newCount = cap
	}
	if newCount == state.WorkerCount {
		return newCount, nil
	}
	err = c.do(ctx, "ScaleCluster", http.MethodPost, "/api/2.0/clusters/edit", map[string]any{
		"cluster_id":  clusterID,
		"num_workers": newCount,
	}, nil)
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (c *Client) LibraryFallback(ctx context.Context, clusterID, libraryName string, candidateVersions []string) (string, error) {
	var lastErr error
	for _, version := range candidateVersions {
		err := c.do(ctx, "LibraryFallback", http.MethodPost, "/api/2.0/libraries/install", map[string]any{
			"cluster_id": clusterID,
			"libraries": []map[string]any{
				{"pypi": map[string]string{"package": fmt.Sprintf("%s==%s", libraryName, version)}},
			},
		}, nil)
		if err == nil {
			return version, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) RerunPipeline(ctx context.Context, pipelineName, factoryName, resourceGroup string) (string, error) {
	return "", platform.NewAdapterError(platform.Permanent, "RerunPipeline", "not supported by the databricks adapter", nil)
}

func (c *Client) GetClusterState(ctx context.Context, clusterID string) (platform.ClusterState, error) {
	var out struct {
		State             string `json:"state"`
		TerminationReason struct {
			Code string `json:"code"`
		} `json:"termination_reason"`
		NumWorkers int `json:"num_workers"`
	}
	err := c.do(ctx, "GetClusterState", http.MethodGet, "/api/2.0/clusters/get?cluster_id="+clusterID, nil, &out)
	if err != nil {
		return platform.ClusterState{}, err
	}
	return platform.ClusterState{
		State:             out.State,
		TerminationReason: out.TerminationReason.Code,
		WorkerCount:       out.NumWorkers,
	}, nil
}

func (c *Client) GetRunState(ctx context.Context, runID string) (platform.RunState, error) {
	var out struct {
		State struct {
			LifeCycleState string `json:"life_cycle_state"`
			ResultState    string `json:"result_state"`
			StateMessage   string `json:"state_message"`
		} `json:"state"`
	}
	err := c.do(ctx, "GetRunState", http.MethodGet, "/api/2.1/jobs/runs/get?run_id="+runID, nil, &out)
	if err != nil {
		return platform.RunState{}, err
	}
	return platform.RunState{
		LifeCycleState: out.State.LifeCycleState,
		ResultState:    out.State.ResultState,
		Error:          out.State.StateMessage,
	}, nil
}

func (c *Client) GetPipelineRunState(ctx context.Context, runID string) (platform.PipelineRunState, error) {
	return platform.PipelineRunState{}, platform.NewAdapterError(platform.Permanent, "GetPipelineRunState", "not supported by the databricks adapter", nil)
}
