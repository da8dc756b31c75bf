package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccruals_DecodesResponse(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"rewards":[
			{"asset":"RWD","amount":"1500000000000000000","decimals":18,"price_usd":2.5},
			{"asset":"POINTS","amount":"42","decimals":0}
		]}`))
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "test-key")
	from := time.Unix(1700000000, 0)
	to := from.Add(24 * time.Hour)

	accruals, err := client.Accruals(context.Background(), "0xabc", from, to)
	require.NoError(t, err)
	require.Len(t, accruals, 2)

	assert.Equal(t, "/v1/users/0xabc/rewards", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	assert.Equal(t, "RWD", accruals[0].Asset)
	assert.Equal(t, "1500000000000000000", accruals[0].RawAmount.String())
	assert.Equal(t, uint8(18), accruals[0].Decimals)
	require.NotNil(t, accruals[0].PriceUSD)
	assert.Equal(t, 2.5, *accruals[0].PriceUSD)

	assert.Equal(t, "POINTS", accruals[1].Asset)
	assert.Nil(t, accruals[1].PriceUSD)
}

func TestAccruals_NotFoundMeansNoRewards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "")
	accruals, err := client.Accruals(context.Background(), "0xabc", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Nil(t, accruals)
}

func TestAccruals_EmptyBodyMeansNoRewards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "")
	accruals, err := client.Accruals(context.Background(), "0xabc", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Nil(t, accruals)
}

func TestAccruals_BadAmountIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rewards":[{"asset":"RWD","amount":"1.5e18","decimals":18}]}`))
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "")
	_, err := client.Accruals(context.Background(), "0xabc", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad amount")
}

func TestTokenPriceUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens/USDC/price", r.URL.Path)
		w.Write([]byte(`{"price_usd":0.9998}`))
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "")
	price, err := client.TokenPriceUSD(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 0.9998, price)
}

func TestTokenPriceUSD_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewRewardsClient(server.URL, "")
	_, err := client.TokenPriceUSD(context.Background(), "UNKNOWN")
	require.Error(t, err)
}
