package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dukerupert/remindd/internal/model"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0/me/todo/lists"

// TokenSource supplies a bearer token for Graph requests. Tokens live in
// the platform secret store and are refreshed by the account manager, not
// by this client.
type TokenSource func(ctx context.Context) (string, error)

// MSToDoConfig holds settings for one Microsoft To Do account.
type MSToDoConfig struct {
	BaseURL string // override for tests; defaults to the Graph endpoint
	Token   TokenSource
}

// MSToDoClient mirrors reminders to Microsoft To Do via the Graph task API.
type MSToDoClient struct {
	cfg        MSToDoConfig
	httpClient *http.Client
}

func NewMSToDoClient(cfg MSToDoConfig) *MSToDoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = graphBaseURL
	}
	return &MSToDoClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphTask struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Body        *graphBody     `json:"body,omitempty"`
	Importance  string         `json:"importance,omitempty"`
	Status      string         `json:"status,omitempty"`
	DueDateTime *graphDateTime `json:"dueDateTime,omitempty"`
}

type graphBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type graphList struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
}

func taskPayload(r model.Reminder) graphTask {
	t := graphTask{
		Title:  r.Title,
		Status: "notStarted",
	}
	if r.Completed {
		t.Status = "completed"
	}
	if r.Description != "" {
		t.Body = &graphBody{Content: r.Description, ContentType: "text"}
	}
	if r.Important {
		t.Importance = "high"
	}
	due := r.Timestamp
	if due == 0 {
		due = r.DueDate
	}
	if due != 0 {
		t.DueDateTime = &graphDateTime{
			DateTime: time.Unix(due, 0).UTC().Format("2006-01-02T15:04:05"),
			TimeZone: "UTC",
		}
	}
	return t
}

func (c *MSToDoClient) CreateReminder(ctx context.Context, r model.Reminder) (string, error) {
	var created graphTask
	url := fmt.Sprintf("%s/%s/tasks", c.cfg.BaseURL, r.ListID)
	if err := c.call(ctx, "mstodo create", http.MethodPost, url, taskPayload(r), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", wrap("mstodo create", KindRemoteLogical, fmt.Errorf("response missing task id"))
	}
	return created.ID, nil
}

func (c *MSToDoClient) UpdateReminder(ctx context.Context, r model.Reminder, prev model.QueueEntry) (string, error) {
	// Graph cannot move a task between lists in place.
	if prev.OldListID != "" && prev.OldListID != r.ListID && prev.OldRemoteUID != "" {
		old := model.QueueEntry{ListID: prev.OldListID, RemoteUID: prev.OldRemoteUID}
		if err := c.DeleteReminder(ctx, old); err != nil {
			return "", err
		}
		return c.CreateReminder(ctx, r)
	}

	url := fmt.Sprintf("%s/%s/tasks/%s", c.cfg.BaseURL, r.ListID, r.RemoteUID)
	if err := c.call(ctx, "mstodo update", http.MethodPatch, url, taskPayload(r), nil); err != nil {
		return "", err
	}
	return r.RemoteUID, nil
}

func (c *MSToDoClient) CompleteReminder(ctx context.Context, r model.Reminder) error {
	status := "notStarted"
	if r.Completed {
		status = "completed"
	}
	url := fmt.Sprintf("%s/%s/tasks/%s", c.cfg.BaseURL, r.ListID, r.RemoteUID)
	return c.call(ctx, "mstodo complete", http.MethodPatch, url, graphTask{Title: r.Title, Status: status}, nil)
}

func (c *MSToDoClient) DeleteReminder(ctx context.Context, e model.QueueEntry) error {
	url := fmt.Sprintf("%s/%s/tasks/%s", c.cfg.BaseURL, e.ListID, e.RemoteUID)
	return c.call(ctx, "mstodo delete", http.MethodDelete, url, nil, nil)
}

func (c *MSToDoClient) CreateList(ctx context.Context, l model.TaskList) error {
	return c.call(ctx, "mstodo create list", http.MethodPost, c.cfg.BaseURL, graphList{DisplayName: l.Name}, nil)
}

func (c *MSToDoClient) RenameList(ctx context.Context, l model.TaskList) error {
	url := fmt.Sprintf("%s/%s", c.cfg.BaseURL, l.ID)
	return c.call(ctx, "mstodo rename list", http.MethodPatch, url, graphList{DisplayName: l.Name}, nil)
}

func (c *MSToDoClient) DeleteList(ctx context.Context, e model.QueueEntry) error {
	url := fmt.Sprintf("%s/%s", c.cfg.BaseURL, e.TargetID)
	return c.call(ctx, "mstodo delete list", http.MethodDelete, url, nil, nil)
}

// call performs one authenticated Graph request, encoding payload as JSON
// and decoding the response into out when non-nil.
func (c *MSToDoClient) call(ctx context.Context, op, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return wrap(op, KindRemoteLogical, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return wrap(op, KindRemoteLogical, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.cfg.Token(ctx)
	if err != nil {
		return wrap(op, KindAuth, fmt.Errorf("token: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrap(op, KindConnectivity, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return wrap(op, KindAuth, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return wrap(op, KindRemoteLogical, fmt.Errorf("decode response: %w", err))
			}
		} else {
			io.Copy(io.Discard, resp.Body)
		}
		return nil
	default:
		io.Copy(io.Discard, resp.Body)
		return wrap(op, KindRemoteLogical, fmt.Errorf("status %d", resp.StatusCode))
	}
}
