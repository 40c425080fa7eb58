package mylar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bchapman/wednesday/internal/config"
)

const defaultTimeout = 30 * time.Second

type UpcomingIssue struct {
	IssueID     string
	ComicID     string
	ComicName   string
	IssueNumber string
	ReleaseDate string
	Status      string
}

// Client wraps the Mylar3 API. A client without a URL and key is a valid
// no-op: GetUpcoming returns an empty slice so the generator can ignore the
// upcoming feed without special-casing missing configuration.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.MylarConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func NewClientWithHTTP(cfg config.MylarConfig, httpClient *http.Client) *Client {
	client := NewClient(cfg)
	if httpClient != nil {
		client.httpClient = httpClient
	}
	return client
}

// Configured is nil-receiver safe; a nil client behaves like an
// unconfigured one.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return nil
	}
	_, err := c.request(ctx, "getVersion", nil)
	return err
}

// GetUpcoming returns this week's upcoming issues, including ones Mylar has
// already downloaded.
func (c *Client) GetUpcoming(ctx context.Context) ([]UpcomingIssue, error) {
	if !c.Configured() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("include_downloaded_issues", "Y")

	body, err := c.request(ctx, "getUpcoming", params)
	if err != nil {
		return nil, err
	}

	var payload []upcomingResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		// Mylar answers with an error object instead of a list when the
		// command fails; treat that as a rejection.
		return nil, fmt.Errorf("decode upcoming response: %w", err)
	}

	issues := make([]UpcomingIssue, 0, len(payload))
	for _, item := range payload {
		issues = append(issues, UpcomingIssue{
			IssueID:     item.IssueID,
			ComicID:     item.ComicID,
			ComicName:   item.ComicName,
			IssueNumber: item.IssueNumber,
			ReleaseDate: item.IssueDate,
			Status:      item.Status,
		})
	}
	return issues, nil
}

type upcomingResponse struct {
	IssueID     string `json:"IssueID"`
	ComicID     string `json:"ComicID"`
	ComicName   string `json:"ComicName"`
	IssueNumber string `json:"IssueNumber"`
	IssueDate   string `json:"IssueDate"`
	Status      string `json:"Status"`
}

func (c *Client) request(ctx context.Context, cmd string, params url.Values) ([]byte, error) {
	values := url.Values{}
	values.Set("apikey", c.apiKey)
	values.Set("cmd", cmd)
	for key, list := range params {
		for _, value := range list {
			values.Add(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", cmd, err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mylar %s: %w", cmd, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("mylar %s returned status %d", cmd, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", cmd, err)
	}
	return body, nil
}
