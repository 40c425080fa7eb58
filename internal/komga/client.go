package komga

import (
	"bytes"
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

// Client wraps the Komga REST API. Credentials are either basic auth or an
// X-API-Key header; the API key wins when both are set.
type Client struct {
	baseURL    string
	username   string
	password   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.KomgaConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func NewClientWithHTTP(cfg config.KomgaConfig, httpClient *http.Client) *Client {
	client := NewClient(cfg)
	if httpClient != nil {
		client.httpClient = httpClient
	}
	return client
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", "/api/v1/libraries", nil)
	return err
}

func (c *Client) ListSeries(ctx context.Context, search string) ([]Series, error) {
	params := url.Values{}
	params.Set("page", "0")
	params.Set("size", "500")
	if strings.TrimSpace(search) != "" {
		params.Set("search", strings.TrimSpace(search))
	}

	body, err := c.get(ctx, "list series", "/api/v1/series", params)
	if err != nil {
		return nil, err
	}

	var payload pageResponse[seriesResponse]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode series page: %w", err)
	}

	items := make([]Series, 0, len(payload.Content))
	for _, item := range payload.Content {
		items = append(items, item.toSeries())
	}
	return items, nil
}

func (c *Client) GetSeries(ctx context.Context, seriesID string) (*Series, error) {
	body, err := c.get(ctx, "get series", "/api/v1/series/"+url.PathEscape(seriesID), nil)
	if err != nil {
		return nil, err
	}

	var payload seriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	series := payload.toSeries()
	return &series, nil
}

func (c *Client) ListSeriesBooks(ctx context.Context, seriesID string) ([]Book, error) {
	params := url.Values{}
	params.Set("page", "0")
	params.Set("size", "500")

	body, err := c.get(ctx, "list series books", "/api/v1/series/"+url.PathEscape(seriesID)+"/books", params)
	if err != nil {
		return nil, err
	}

	var payload pageResponse[bookResponse]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode books page: %w", err)
	}

	items := make([]Book, 0, len(payload.Content))
	for _, item := range payload.Content {
		items = append(items, item.toBook())
	}
	return items, nil
}

// GetBook returns a single book with its current read progress.
func (c *Client) GetBook(ctx context.Context, bookID string) (*Book, error) {
	body, err := c.get(ctx, "get book", "/api/v1/books/"+url.PathEscape(bookID), nil)
	if err != nil {
		return nil, err
	}

	var payload bookResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	book := payload.toBook()
	return &book, nil
}

func (c *Client) LatestBooks(ctx context.Context, size int) ([]Book, error) {
	if size <= 0 {
		size = 50
	}
	params := url.Values{}
	params.Set("page", "0")
	params.Set("size", fmt.Sprintf("%d", size))

	body, err := c.get(ctx, "latest books", "/api/v1/books/latest", params)
	if err != nil {
		return nil, err
	}

	var payload pageResponse[bookResponse]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode latest books: %w", err)
	}

	items := make([]Book, 0, len(payload.Content))
	for _, item := range payload.Content {
		items = append(items, item.toBook())
	}
	return items, nil
}

func (c *Client) CreateReadList(ctx context.Context, name string, bookIDs []string) (*ReadList, error) {
	payload := map[string]any{
		"name":    name,
		"bookIds": bookIDs,
		"ordered": true,
	}

	body, err := c.post(ctx, "create readlist", "/api/v1/readlists", payload)
	if err != nil {
		return nil, err
	}

	var created readListResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode readlist: %w", err)
	}
	return &ReadList{ID: created.ID, Name: created.Name, BookIDs: created.BookIDs}, nil
}

// FindReadListByName scans all readlists for an exact name match. The search
// query parameter is fuzzy on the server side, so matching happens here.
func (c *Client) FindReadListByName(ctx context.Context, name string) (*ReadList, error) {
	params := url.Values{}
	params.Set("page", "0")
	params.Set("size", "500")

	body, err := c.get(ctx, "list readlists", "/api/v1/readlists", params)
	if err != nil {
		return nil, err
	}

	var payload pageResponse[readListResponse]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode readlists page: %w", err)
	}

	for _, item := range payload.Content {
		if item.Name == name {
			return &ReadList{ID: item.ID, Name: item.Name, BookIDs: item.BookIDs}, nil
		}
	}
	return nil, nil
}

func (c *Client) DeleteReadList(ctx context.Context, readListID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/readlists/"+url.PathEscape(readListID), nil)
	if err != nil {
		return fmt.Errorf("create delete readlist request: %w", err)
	}

	_, err = c.do("delete readlist", req)
	return err
}

func (c *Client) MarkRead(ctx context.Context, bookID string) error {
	body := map[string]any{"completed": true}
	_, err := c.patch(ctx, "mark read", "/api/v1/books/"+url.PathEscape(bookID)+"/read-progress", body)
	return err
}

func (c *Client) MarkUnread(ctx context.Context, bookID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/books/"+url.PathEscape(bookID)+"/read-progress", nil)
	if err != nil {
		return fmt.Errorf("create mark unread request: %w", err)
	}

	_, err = c.do("mark unread", req)
	return err
}

// BookThumbnail returns the raw cover image bytes and content type.
func (c *Client) BookThumbnail(ctx context.Context, bookID string) ([]byte, string, error) {
	return c.getRaw(ctx, "book thumbnail", "/api/v1/books/"+url.PathEscape(bookID)+"/thumbnail")
}

// BookFile streams the book's archive bytes.
func (c *Client) BookFile(ctx context.Context, bookID string) ([]byte, string, error) {
	return c.getRaw(ctx, "book file", "/api/v1/books/"+url.PathEscape(bookID)+"/file")
}

// BookReadURL is the Komga web reader URL for a book.
func (c *Client) BookReadURL(bookID string) string {
	return c.baseURL + "/book/" + url.PathEscape(bookID) + "/read"
}

func (c *Client) get(ctx context.Context, op string, path string, params url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}

	return c.do(op, req)
}

func (c *Client) post(ctx context.Context, op string, path string, payload any) ([]byte, error) {
	return c.send(ctx, op, http.MethodPost, path, payload)
}

func (c *Client) patch(ctx context.Context, op string, path string, payload any) ([]byte, error) {
	return c.send(ctx, op, http.MethodPatch, path, payload)
}

func (c *Client) send(ctx context.Context, op string, method string, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(op, req)
}

func (c *Client) getRaw(ctx context.Context, op string, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create %s request: %w", op, err)
	}
	c.authorize(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", unreachable(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, "", rejected(op, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", unreachable(op, err)
	}
	return body, res.Header.Get("Content-Type"), nil
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	c.authorize(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, rejected(op, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, unreachable(op, err)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
		return
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
