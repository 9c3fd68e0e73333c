// Package adf implements platform.Adapter against the Azure Data Factory
// management REST API. The job/cluster-shaped operations it does not
// support (retry_job, restart_cluster, scale_cluster, library_fallback)
// return a Permanent error; this adapter is selected for ADF-sourced
// failures, which only ever resolve to rerun_pipeline or noop.
package adf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/platform"
	sharedhttp "github.com/pipelineguard/remediator/pkg/shared/http"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

const apiVersion = "2018-06-01"

// Client is a reference ADF adapter. BaseURL is the Azure Resource Manager
// endpoint, typically "https://management.azure.com".
type Client struct {
	BaseURL        string
	SubscriptionID string
	Token          string
	HTTPClient     *http.Client
	log            *logrus.Entry
}

// NewClient builds an ADF adapter client.
func NewClient(baseURL, subscriptionID, token string, requestTimeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		BaseURL:        baseURL,
		SubscriptionID: subscriptionID,
		Token:          token,
		HTTPClient:     sharedhttp.NewClientWithTimeout(requestTimeout),
		log:            log,
	}
}

var _ platform.Adapter = (*Client)(nil)

func (c *Client) factoryPath(factoryName, resourceGroup string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.DataFactory/factories/%s",
		c.SubscriptionID, resourceGroup, factoryName)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return platform.NewAdapterError(platform.Permanent, operation, "failed to encode request", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return platform.NewAdapterError(platform.Permanent, operation, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	c.log.WithFields(logging.PlatformFields("adf", operation, path).ToLogrus()).Debug("calling adf api")

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

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := platform.NewAdapterError(platform.Throttled, operation, string(respBody), nil)
		if seconds, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil {
			err.RetryAfter = time.Duration(seconds) * time.Second
		}
		return err
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return platform.NewAdapterError(platform.AuthFailure, operation, string(respBody), nil)
	case resp.StatusCode == http.StatusNotFound:
		return platform.NewAdapterError(platform.NotFound, operation, string(respBody), nil)
	case resp.StatusCode >= 500:
		return platform.NewAdapterError(platform.Transient, operation, string(respBody), nil)
	default:
		return platform.NewAdapterError(platform.Permanent, operation, string(respBody), nil)
	}
}

func notSupported(operation string) error {
	return platform.NewAdapterError(platform.Permanent, operation, "not supported by the adf adapter", nil)
}

func (c *Client) RetryJob(ctx context.Context, jobID, runID string) (string, error) {
	return "", notSupported("RetryJob")
}

func (c *Client) RestartCluster(ctx context.Context, clusterID string) error {
	return notSupported("RestartCluster")
}

func (c *Client) ScaleCluster(ctx context.Context, clusterID string, deltaPercent, cap int) (int, error) {
	return 0, notSupported("ScaleCluster")
}

func (c *Client) LibraryFallback(ctx context.Context, clusterID, libraryName string, candidateVersions []string) (string, error) {
	return "", notSupported("LibraryFallback")
}

func (c *Client) RerunPipeline(ctx context.Context, pipelineName, factoryName, resourceGroup string) (string, error) {
	runID := uuid.NewString()
	path := c.factoryPath(factoryName, resourceGroup) + fmt.Sprintf("/pipelines/%s/createRun?api-version=%s&referencePipelineRunId=%s",
		pipelineName, apiVersion, runID)
	var out struct {
		RunID string `json:"runId"`
	}
	if err := c.do(ctx, "RerunPipeline", http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

func (c *Client) GetClusterState(ctx context.Context, clusterID string) (platform.ClusterState, error) {
	return platform.ClusterState{}, notSupported("GetClusterState")
}

func (c *Client) GetRunState(ctx context.Context, runID string) (platform.RunState, error) {
	return platform.RunState{}, notSupported("GetRunState")
}

func (c *Client) GetPipelineRunState(ctx context.Context, runID string) (platform.PipelineRunState, error) {
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/subscriptions/%s/providers/Microsoft.DataFactory/pipelineruns/%s?api-version=%s",
		c.SubscriptionID, runID, apiVersion)
	if err := c.do(ctx, "GetPipelineRunState", http.MethodGet, path, nil, &out); err != nil {
		return platform.PipelineRunState{}, err
	}
	return platform.PipelineRunState{Status: out.Status, Error: out.Message}, nil
}
