package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/remindd/internal/model"
)

const icalTimeFormat = "20060102T150405Z"

// Property constants the library does not name.
const (
	propDue       = ics.ComponentProperty("DUE")
	propDtStamp   = ics.ComponentProperty("DTSTAMP")
	propCompleted = ics.ComponentProperty("COMPLETED")
	propPriority  = ics.ComponentProperty("PRIORITY")
)

// CalDAVConfig holds connection settings for one CalDAV account.
// Credentials come from the platform secret store, never from the database.
type CalDAVConfig struct {
	BaseURL  string // collection root, e.g. https://dav.example.com/tasks
	Username string
	Password string
}

// CalDAVClient mirrors reminders to a CalDAV server as VTODO objects.
// Each task list maps to a calendar collection under the base URL.
type CalDAVClient struct {
	cfg        CalDAVConfig
	httpClient *http.Client
}

func NewCalDAVClient(cfg CalDAVConfig) *CalDAVClient {
	return &CalDAVClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *CalDAVClient) CreateReminder(ctx context.Context, r model.Reminder) (string, error) {
	// The client picks the object UID; the local ID serves.
	uid := r.ID
	body := todoICS(r, uid)

	req, err := c.request(ctx, http.MethodPut, c.objectURL(r.ListID, uid), strings.NewReader(body))
	if err != nil {
		return "", wrap("caldav create", KindRemoteLogical, err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.Header.Set("If-None-Match", "*")

	if err := c.do("caldav create", req); err != nil {
		return "", err
	}
	return uid, nil
}

func (c *CalDAVClient) UpdateReminder(ctx context.Context, r model.Reminder, prev model.QueueEntry) (string, error) {
	// A reminder moved between lists needs its old object removed first;
	// the object UID itself is stable.
	if prev.OldListID != "" && prev.OldListID != r.ListID && prev.OldRemoteUID != "" {
		old := model.QueueEntry{ListID: prev.OldListID, RemoteUID: prev.OldRemoteUID}
		if err := c.DeleteReminder(ctx, old); err != nil {
			return "", err
		}
	}

	body := todoICS(r, r.RemoteUID)
	req, err := c.request(ctx, http.MethodPut, c.objectURL(r.ListID, r.RemoteUID), strings.NewReader(body))
	if err != nil {
		return "", wrap("caldav update", KindRemoteLogical, err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if err := c.do("caldav update", req); err != nil {
		return "", err
	}
	return r.RemoteUID, nil
}

func (c *CalDAVClient) CompleteReminder(ctx context.Context, r model.Reminder) error {
	body := todoICS(r, r.RemoteUID)
	req, err := c.request(ctx, http.MethodPut, c.objectURL(r.ListID, r.RemoteUID), strings.NewReader(body))
	if err != nil {
		return wrap("caldav complete", KindRemoteLogical, err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	return c.do("caldav complete", req)
}

func (c *CalDAVClient) DeleteReminder(ctx context.Context, e model.QueueEntry) error {
	req, err := c.request(ctx, http.MethodDelete, c.objectURL(e.ListID, e.RemoteUID), nil)
	if err != nil {
		return wrap("caldav delete", KindRemoteLogical, err)
	}
	return c.do("caldav delete", req)
}

func (c *CalDAVClient) CreateList(ctx context.Context, l model.TaskList) error {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<C:mkcalendar xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:set><D:prop>
    <D:displayname>%s</D:displayname>
    <C:supported-calendar-component-set><C:comp name="VTODO"/></C:supported-calendar-component-set>
  </D:prop></D:set>
</C:mkcalendar>`, xmlEscape(l.Name))

	req, err := c.request(ctx, "MKCALENDAR", c.collectionURL(l.ID), strings.NewReader(body))
	if err != nil {
		return wrap("caldav mkcalendar", KindRemoteLogical, err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	return c.do("caldav mkcalendar", req)
}

func (c *CalDAVClient) RenameList(ctx context.Context, l model.TaskList) error {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<D:propertyupdate xmlns:D="DAV:">
  <D:set><D:prop><D:displayname>%s</D:displayname></D:prop></D:set>
</D:propertyupdate>`, xmlEscape(l.Name))

	req, err := c.request(ctx, "PROPPATCH", c.collectionURL(l.ID), strings.NewReader(body))
	if err != nil {
		return wrap("caldav proppatch", KindRemoteLogical, err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	return c.do("caldav proppatch", req)
}

func (c *CalDAVClient) DeleteList(ctx context.Context, e model.QueueEntry) error {
	req, err := c.request(ctx, http.MethodDelete, c.collectionURL(e.TargetID), nil)
	if err != nil {
		return wrap("caldav delete list", KindRemoteLogical, err)
	}
	return c.do("caldav delete list", req)
}

func (c *CalDAVClient) request(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	return req, nil
}

func (c *CalDAVClient) do(op string, req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrap(op, KindConnectivity, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return wrap(op, KindAuth, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return wrap(op, KindRemoteLogical, fmt.Errorf("status %d", resp.StatusCode))
	}
}

func (c *CalDAVClient) collectionURL(listID string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + url.PathEscape(listID) + "/"
}

func (c *CalDAVClient) objectURL(listID, uid string) string {
	return c.collectionURL(listID) + url.PathEscape(uid) + ".ics"
}

// todoICS serializes a reminder as a single-VTODO iCalendar document.
func todoICS(r model.Reminder, uid string) string {
	cal := ics.NewCalendar()
	cal.SetProductId("-//remindd//remindd//EN")

	todo := cal.AddTodo(uid)
	todo.SetProperty(propDtStamp, time.Now().UTC().Format(icalTimeFormat))
	todo.SetProperty(ics.ComponentPropertySummary, r.Title)
	if r.Description != "" {
		todo.SetProperty(ics.ComponentPropertyDescription, r.Description)
	}
	if r.Timestamp != 0 {
		todo.SetProperty(propDue, time.Unix(r.Timestamp, 0).UTC().Format(icalTimeFormat))
	} else if r.DueDate != 0 {
		todo.SetProperty(propDue, time.Unix(r.DueDate, 0).UTC().Format("20060102"))
	}
	if r.Important {
		todo.SetProperty(propPriority, "1")
	}
	if r.Completed {
		todo.SetProperty(ics.ComponentPropertyStatus, "COMPLETED")
		if r.CompletedAt != nil {
			todo.SetProperty(propCompleted, r.CompletedAt.UTC().Format(icalTimeFormat))
		}
	} else {
		todo.SetProperty(ics.ComponentPropertyStatus, "NEEDS-ACTION")
	}

	return cal.Serialize()
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;",
	)
	return replacer.Replace(s)
}
