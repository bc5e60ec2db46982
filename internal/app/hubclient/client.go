// Package hubclient is the Agent-side REST client for the Hub's HTTP
// surface: fetching target configs at execution time and reporting Run
// outcomes back.
package hubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/httputil"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/agent"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
)

// Client is a thin REST client over the Hub's HTTP surface, used by an
// Agent's worker loop to resolve targets and report run outcomes.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a Client against baseURL, authenticating with apiKey when
// non-empty. A 10s timeout is applied unless httpClient already carries one.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httputil.CopyHTTPClientWithTimeout(httpClient, 10*time.Second, false),
	}
}

// ResolveTarget resolves a single $variable marker's key (spliced into
// template, when non-empty) against the Hub's target map for
// (organization, environment), satisfying engine.TargetResolver.
func (c *Client) ResolveTarget(ctx context.Context, organization, environment, key, template string) (string, error) {
	reqURL := fmt.Sprintf("%s/config/%s/%s/targets/%s", c.baseURL, organization, environment, url.PathEscape(key))
	if template != "" {
		reqURL += "?template=" + url.QueryEscape(template)
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, reqURL, nil, &out); err != nil {
		return "", err
	}
	return out.Data, nil
}

// RunUpdate is the partial Run record the Hub's PATCH /runs/:id accepts.
type RunUpdate struct {
	Status  run.Status       `json:"status"`
	Errors  []string         `json:"errors,omitempty"`
	Results []run.NodeResult `json:"results,omitempty"`
}

// PatchRun reports a run status transition (and, for terminal transitions,
// the node results and errors) back to the Hub.
func (c *Client) PatchRun(ctx context.Context, runID string, update RunUpdate) error {
	url := fmt.Sprintf("%s/runs/%s", c.baseURL, runID)
	return c.doJSON(ctx, http.MethodPatch, url, update, nil)
}

// RegisterAgent registers this Agent process with the Hub's agent directory,
// returning the registered agent record, including its Hub-assigned ID.
func (c *Client) RegisterAgent(ctx context.Context, location string, metadata map[string]string) (*agent.Agent, error) {
	reqURL := fmt.Sprintf("%s/agents/register", c.baseURL)
	body := struct {
		Location string            `json:"location"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{Location: location, Metadata: metadata}
	var out struct {
		Data agent.Agent `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, reqURL, body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Heartbeat reports liveness for the agent identified by agentID.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	reqURL := fmt.Sprintf("%s/agents/%s/heartbeat", c.baseURL, url.PathEscape(agentID))
	return c.doJSON(ctx, http.MethodPost, reqURL, nil, nil)
}

// Deregister removes this agent from the Hub's directory on shutdown.
func (c *Client) Deregister(ctx context.Context, agentID string) error {
	reqURL := fmt.Sprintf("%s/agents/%s", c.baseURL, url.PathEscape(agentID))
	return c.doJSON(ctx, http.MethodDelete, reqURL, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	_, err := c.doJSONOptional(ctx, method, url, body, out)
	return err
}

// doJSONOptional is doJSON's variant for endpoints that may reply 204 No
// Content, reporting whether a body was present via the found return.
func (c *Client) doJSONOptional(ctx context.Context, method, url string, body interface{}, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return false, apperrors.InvalidFormat("body", "JSON-serializable value")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, apperrors.TransportRefused(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperrors.TransportRefused(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperrors.TransportRefused(err)
	}

	if resp.StatusCode >= 400 {
		return false, apperrors.TransportStatus(resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, apperrors.InvalidFormat("response body", "JSON")
		}
	}
	return true, nil
}
