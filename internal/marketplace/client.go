// Package marketplace queries the Wallapop search API for candidate listings.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"wallbot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the marketplace search endpoint.
type Client struct {
	client HTTPClient
	apiURL string
}

// New creates a Client with the given HTTP client and search endpoint URL.
func New(client HTTPClient, apiURL string) *Client {
	return &Client{
		client: client,
		apiURL: apiURL,
	}
}

type searchResponse struct {
	SearchObjects []searchObject `json:"search_objects"`
}

type searchObject struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	WebSlug string  `json:"web_slug"`
	User    struct {
		ID string `json:"id"`
	} `json:"user"`
}

// Search runs a marketplace query for the given search parameters and
// returns the candidate listings. The result is finite and may be empty.
// Malformed items are returned as-is; reconciliation skips them per item.
func (c *Client) Search(ctx context.Context, search model.Search) ([]model.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(search), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setBrowserHeaders(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(payload.SearchObjects))
	for _, obj := range payload.SearchObjects {
		candidates = append(candidates, model.Candidate{
			ID:         obj.ID,
			Title:      obj.Title,
			Price:      obj.Price,
			DetailPath: obj.WebSlug,
			SellerID:   obj.User.ID,
		})
	}
	return candidates, nil
}

func (c *Client) buildURL(search model.Search) string {
	q := url.Values{}
	q.Set("keywords", search.Keywords)
	q.Set("time_filter", "today")
	if search.MinPrice != nil {
		q.Set("min_sale_price", strconv.FormatFloat(*search.MinPrice, 'f', -1, 64))
	}
	if search.MaxPrice != nil {
		q.Set("max_sale_price", strconv.FormatFloat(*search.MaxPrice, 'f', -1, 64))
	}
	if search.CategoryIDs != "" {
		q.Set("category_ids", search.CategoryIDs)
	}
	if search.Distance != "" {
		q.Set("dist", search.Distance)
	}
	if search.OrderBy != "" {
		q.Set("order_by", search.OrderBy)
	}
	return c.apiURL + "?" + q.Encode()
}

// The search API rejects obviously non-browser clients.
func setBrowserHeaders(h http.Header) {
	h.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	h.Set("Origin", "https://es.wallapop.com")
	h.Set("Referer", "https://es.wallapop.com/")
	h.Set("X-DeviceOS", "0")
}
