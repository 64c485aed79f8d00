package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound means the catalog answered but knows no item with the given
// reference. Any other lookup error means the source was unavailable and the
// call can be repeated later.
var ErrNotFound = errors.New("catalog: item not found")

const (
	lookupTimeout = 10 * time.Second
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
)

// Item is a successful lookup result. Price is already converted to major
// currency units.
type Item struct {
	Name  string
	Price float64
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: lookupTimeout},
		// courtesy limit towards the upstream source
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

type cardResponse struct {
	Data struct {
		Products []struct {
			Name       string `json:"name"`
			SalePriceU int64  `json:"salePriceU"`
		} `json:"products"`
	} `json:"data"`
}

// Lookup fetches the card for a single external reference. It never retries;
// the caller's cadence is the retry policy.
func (c *Client) Lookup(ctx context.Context, ref string) (Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Item{}, err
	}

	endpoint := fmt.Sprintf("%s/cards/detail?nm=%s", c.baseURL, url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Item{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Item{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Item{}, fmt.Errorf("catalog request: unexpected status %d", resp.StatusCode)
	}

	var body cardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Item{}, fmt.Errorf("catalog response: %w", err)
	}
	if len(body.Data.Products) == 0 {
		return Item{}, ErrNotFound
	}

	p := body.Data.Products[0]
	// the source reports prices in minor units; convert exactly once, here
	return Item{Name: p.Name, Price: float64(p.SalePriceU) / 100}, nil
}
