package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout/internal/collector"
	"scout/internal/linkcheck"
	"scout/internal/logging"

	"github.com/sirupsen/logrus"
)

// DefaultClientTimeout bounds a single task round trip. It must exceed the
// host's own link-check timeouts.
const DefaultClientTimeout = 30 * time.Second

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

func WithClientLogger(l logrus.FieldLogger) ClientOption {
	return func(cl *Client) { cl.log = logging.OrDiscard(l) }
}

// Client is a Channel for execution contexts outside the host process. It
// talks to the HTTP task endpoint and maps transport failures to the same
// neutral values the host uses.
type Client struct {
	base string
	http *http.Client
	log  logrus.FieldLogger
}

var _ Channel = (*Client)(nil)

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultClientTimeout},
		log:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Log(ctx context.Context, payload []byte) {
	if err := c.call(ctx, TaskLog, payload, nil); err != nil {
		c.log.WithError(err).WithField("task", TaskLog).Warn("log call failed")
	}
}

func (c *Client) Get(ctx context.Context) collector.Snapshot {
	var snap collector.Snapshot
	if err := c.call(ctx, TaskGet, nil, &snap); err != nil {
		c.log.WithError(err).WithField("task", TaskGet).Warn("get call failed")
		return collector.Snapshot{}
	}
	return snap
}

func (c *Client) Save(ctx context.Context) SaveResult {
	var res SaveResult
	if err := c.call(ctx, TaskSave, nil, &res); err != nil {
		return SaveResult{Error: err.Error()}
	}
	return res
}

func (c *Client) CheckLink(ctx context.Context, url string) linkcheck.Result {
	arg, _ := json.Marshal(url)
	var res linkcheck.Result
	if err := c.call(ctx, TaskCheckLink, arg, &res); err != nil {
		return linkcheck.Result{Href: url, Error: err.Error()}
	}
	return res
}

func (c *Client) CheckLinks(ctx context.Context, urls []string) []linkcheck.Result {
	if urls == nil {
		urls = []string{}
	}
	arg, _ := json.Marshal(urls)
	var res []linkcheck.Result
	err := c.call(ctx, TaskCheckLinks, arg, &res)
	if err == nil && len(res) == len(urls) {
		return res
	}
	if err == nil {
		err = fmt.Errorf("expected %d results, got %d", len(urls), len(res))
	}
	out := make([]linkcheck.Result, len(urls))
	for i, u := range urls {
		out[i] = linkcheck.Result{Href: u, Error: err.Error()}
	}
	return out
}

func (c *Client) call(ctx context.Context, task string, arg []byte, out any) error {
	if arg == nil {
		arg = []byte("null")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/tasks/"+task, bytes.NewReader(arg))
	if err != nil {
		return fmt.Errorf("building %s request: %w", task, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", task, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", task, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", task, e.Error)
		}
		return fmt.Errorf("%s: unexpected status %s", task, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", task, err)
	}
	return nil
}
