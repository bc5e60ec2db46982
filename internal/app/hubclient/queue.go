package hubclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
)

// RemoteQueue adapts the Hub's /jobs HTTP surface to queue.Queue, letting an
// Agent process poll for work without a direct connection to the durable
// queue's storage backend. Enqueue, GetStatus, GetJob, and Depth are not
// needed by an Agent and are left unimplemented.
type RemoteQueue struct {
	client *Client
}

// NewRemoteQueue wraps client as a queue.Queue limited to the dequeue/ack/fail
// operations an Agent's worker loop performs.
func NewRemoteQueue(client *Client) *RemoteQueue {
	return &RemoteQueue{client: client}
}

func (q *RemoteQueue) Enqueue(context.Context, domainqueue.ExecutePlanPayload, domainqueue.EnqueueOptions) (string, error) {
	return "", errors.New("hubclient: RemoteQueue does not support Enqueue")
}

// Dequeue polls the Hub for the next eligible job at location, returning nil
// (no error) when none is available.
func (q *RemoteQueue) Dequeue(ctx context.Context, location string) (*domainqueue.Job, error) {
	reqURL := fmt.Sprintf("%s/jobs/dequeue?location=%s", q.client.baseURL, url.QueryEscape(location))
	var out struct {
		Data *domainqueue.Job `json:"data"`
	}
	found, err := q.client.doJSONOptional(ctx, http.MethodGet, reqURL, nil, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return out.Data, nil
}

func (q *RemoteQueue) Acknowledge(ctx context.Context, jobID string) error {
	reqURL := fmt.Sprintf("%s/jobs/%s/ack", q.client.baseURL, url.PathEscape(jobID))
	return q.client.doJSON(ctx, http.MethodPost, reqURL, nil, nil)
}

func (q *RemoteQueue) Fail(ctx context.Context, jobID string, cause error, retry bool) error {
	reqURL := fmt.Sprintf("%s/jobs/%s/fail", q.client.baseURL, url.PathEscape(jobID))
	body := struct {
		Error string `json:"error"`
		Retry bool   `json:"retry"`
	}{Retry: retry}
	if cause != nil {
		body.Error = cause.Error()
	}
	return q.client.doJSON(ctx, http.MethodPost, reqURL, body, nil)
}

func (q *RemoteQueue) GetStatus(context.Context, string) (domainqueue.Status, error) {
	return "", errors.New("hubclient: RemoteQueue does not support GetStatus")
}

func (q *RemoteQueue) GetJob(context.Context, string) (*domainqueue.Job, error) {
	return nil, errors.New("hubclient: RemoteQueue does not support GetJob")
}

func (q *RemoteQueue) Depth(context.Context, string, domainqueue.Status) (int, error) {
	return 0, errors.New("hubclient: RemoteQueue does not support Depth")
}
