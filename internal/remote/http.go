package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/domain"
	"tasksync/internal/models"

	"golang.org/x/time/rate"
)

// HTTP talks to a REST remote: GET, PUT and DELETE on {base}/tasks/{id}.
// GET answers with a models.RemoteVersion document.
type HTTP struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTP(cfg config.RemoteHTTPConfig, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (h *HTTP) taskURL(taskID int64) string {
	return h.baseURL + "/tasks/" + strconv.FormatInt(taskID, 10)
}

func (h *HTTP) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set("X-API-Key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return resp, nil
}

// statusError maps a non-success status to the remote error kinds.
func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := domain.ErrRemoteRejected
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		cause = domain.ErrRemoteUnavailable
	}
	return fmt.Errorf("%w: status %d: %s", cause, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (h *HTTP) FetchVersion(ctx context.Context, taskID int64) (*models.RemoteVersion, error) {
	resp, err := h.do(ctx, http.MethodGet, h.taskURL(taskID), nil)
	if err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewRemoteError(OpFetch, taskID, statusError(resp))
	}

	var version models.RemoteVersion
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, domain.NewRemoteError(OpFetch, taskID, fmt.Errorf("decode response: %w", err))
	}
	return &version, nil
}

// Push expects the stored version back. When the server answers without
// one, the stamp is read with a follow-up GET.
func (h *HTTP) Push(ctx context.Context, task *models.Task) (time.Time, error) {
	if task == nil {
		return time.Time{}, domain.NewRemoteError(OpPush, 0, domain.ErrRemoteRejected)
	}
	body, err := json.Marshal(task)
	if err != nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, err)
	}
	resp, err := h.do(ctx, http.MethodPut, h.taskURL(task.ID), body)
	if err != nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, statusError(resp))
	}

	var version models.RemoteVersion
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil && !errors.Is(err, io.EOF) {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, fmt.Errorf("decode response: %w", err))
	}
	if !version.ServerModifiedAt.IsZero() {
		return version.ServerModifiedAt.UTC(), nil
	}

	stored, err := h.FetchVersion(ctx, task.ID)
	if err != nil {
		return time.Time{}, err
	}
	if stored == nil {
		return time.Time{}, domain.NewRemoteError(OpPush, task.ID, fmt.Errorf("%w: pushed task not found", domain.ErrRemoteRejected))
	}
	return stored.ServerModifiedAt.UTC(), nil
}

// PushDelete treats 404 as success: the remote copy is already gone.
func (h *HTTP) PushDelete(ctx context.Context, taskID int64) error {
	resp, err := h.do(ctx, http.MethodDelete, h.taskURL(taskID), nil)
	if err != nil {
		return domain.NewRemoteError(OpDelete, taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
		return nil
	}
	return domain.NewRemoteError(OpDelete, taskID, statusError(resp))
}
