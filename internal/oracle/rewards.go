package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/vault-yield/internal/model"
)

// RewardsClient talks to the rewards distribution API. Accruals are queried
// per period window; a missing or empty answer is zero rewards, not an error.
type RewardsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewRewardsClient creates a client with retry-capable transport.
func NewRewardsClient(baseURL, apiKey string) *RewardsClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 3 * time.Second
	retryClient.Logger = nil

	return &RewardsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: retryClient.StandardClient(),
		log:        logrus.WithField("component", "rewards-client"),
	}
}

// Accruals returns the reward amounts accrued by user strictly within
// [from, to). HTTP 404 and empty bodies map to no rewards.
func (c *RewardsClient) Accruals(ctx context.Context, user string, from, to time.Time) ([]model.RewardAccrual, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/rewards?from=%d&to=%d",
		c.baseURL, url.PathEscape(user), from.Unix(), to.Unix())

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(body) == 0 {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rewards API: status %d, body: %s", status, string(body))
	}

	var response struct {
		Rewards []struct {
			Asset    string   `json:"asset"`
			Amount   string   `json:"amount"`
			Decimals uint8    `json:"decimals"`
			PriceUSD *float64 `json:"price_usd"`
		} `json:"rewards"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("rewards API: decode response: %w", err)
	}

	accruals := make([]model.RewardAccrual, 0, len(response.Rewards))
	for _, r := range response.Rewards {
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("rewards API: bad amount %q for asset %s", r.Amount, r.Asset)
		}
		accruals = append(accruals, model.RewardAccrual{
			Asset:     r.Asset,
			RawAmount: amount,
			Decimals:  r.Decimals,
			PriceUSD:  r.PriceUSD,
		})
	}

	c.log.WithFields(logrus.Fields{"user": user, "accruals": len(accruals)}).Debug("fetched reward accruals")
	return accruals, nil
}

// TokenPriceUSD returns the current USD price of an asset, used for the
// rewards APR denominator.
func (c *RewardsClient) TokenPriceUSD(ctx context.Context, asset string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/tokens/%s/price", c.baseURL, url.PathEscape(asset))

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("token price API: status %d for asset %s", status, asset)
	}

	var response struct {
		PriceUSD float64 `json:"price_usd"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("token price API: decode response: %w", err)
	}
	return response.PriceUSD, nil
}

// get performs one authorized GET and returns the body and status.
func (c *RewardsClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("rewards API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
