// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdsSource(provider *test.FakeAdsProvider, key string) *services.AdsSource {
	return services.NewAdsSource(services.AdsSourceOptions{
		BaseURL:           provider.URL(),
		APIKey:            key,
		TopupURL:          "https://example.com/topup",
		RequestsPerSecond: 1000,
	})
}

func TestAdsSourceResolve(t *testing.T) {
	ctx := traceCtx(t)
	provider := test.NewFakeAdsProvider()
	defer provider.Close()
	provider.AddBrand("Nike Running", "111")
	provider.AddBrand("nike", "222")
	provider.AddBrand("Adidas", "333")
	source := newAdsSource(provider, "k")

	brands, err := source.Resolve(ctx, []string{"Nike", "NIKE", "Adidas", "Unknown Brand"})
	require.NoError(t, err)
	require.Len(t, brands, 3)
	assert.Equal(t, "222", brands[0].PlatformID)
	assert.Equal(t, "333", brands[1].PlatformID)
	assert.False(t, brands[2].Resolved())
	assert.Equal(t, []string{"222", "333"}, model.ResolvedPlatformIDs(brands))

	searches := 0
	for _, r := range provider.Requests() {
		if strings.Contains(r, "search/companies") {
			searches++
		}
	}
	assert.Equal(t, 3, searches)
}

func TestAdsSourceFetchPaginatesAndDedups(t *testing.T) {
	ctx := traceCtx(t)
	provider := test.NewFakeAdsProvider()
	defer provider.Close()
	var nike []map[string]any
	for i := 0; i < 5; i++ {
		nike = append(nike, test.VideoAd(fmt.Sprintf("n%d", i), "1", "Nike", fmt.Sprintf("https://cdn.example.com/n%d.mp4", i), "Just do it"))
	}
	provider.AddBrand("Nike", "1", nike...)
	provider.AddBrand("Adidas", "2",
		test.ImageAd("a1", "2", "Adidas", "https://cdn.example.com/a1.jpg", "Impossible is nothing"),
		test.VideoAd("n0", "2", "Adidas", "https://cdn.example.com/dupe.mp4", "duplicate id"),
		map[string]any{"ad_archive_id": "a-nomedia", "snapshot": map[string]any{"display_format": "IMAGE"}},
	)
	source := newAdsSource(provider, "k")

	ads, err := source.Fetch(ctx, []string{"1", "2"}, 4, "US")
	require.NoError(t, err)
	require.Len(t, ads, 4)
	ids := []string{ads[0].AdID, ads[1].AdID, ads[2].AdID, ads[3].AdID}
	assert.Equal(t, []string{"n0", "n1", "a1", "n2"}, ids)
	assert.Equal(t, model.MediaTypeVideo, ads[0].MediaType)
	assert.Equal(t, "https://cdn.example.com/n0.mp4", ads[0].MediaURL)
	assert.Equal(t, model.MediaTypeImage, ads[2].MediaType)
	assert.NotNil(t, ads[0].FirstSeen)
	assert.Contains(t, provider.Requests()[0], "country=US")

	capped, err := source.Fetch(ctx, []string{"1"}, 3, "")
	require.NoError(t, err)
	assert.Len(t, capped, 3)

	none, err := source.Fetch(ctx, nil, 10, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdsSourceFetchRedistributesQuota(t *testing.T) {
	ctx := traceCtx(t)
	provider := test.NewFakeAdsProvider()
	defer provider.Close()
	provider.AddBrand("Small", "1", test.VideoAd("s0", "1", "Small", "https://cdn.example.com/s0.mp4", "only one"))
	var big []map[string]any
	for i := 0; i < 10; i++ {
		big = append(big, test.VideoAd(fmt.Sprintf("b%d", i), "2", "Big", fmt.Sprintf("https://cdn.example.com/b%d.mp4", i), "plenty"))
	}
	provider.AddBrand("Big", "2", big...)
	source := newAdsSource(provider, "k")

	ads, err := source.Fetch(ctx, []string{"1", "2"}, 6, "")
	require.NoError(t, err)
	require.Len(t, ads, 6)
	counts := map[string]int{}
	for _, ad := range ads {
		counts[ad.PageID]++
	}
	assert.Equal(t, 1, counts["1"])
	assert.Equal(t, 5, counts["2"])

	all, err := source.Fetch(ctx, []string{"1", "2"}, 50, "")
	require.NoError(t, err)
	assert.Len(t, all, 11)
}

func TestAdsSourceDCOUsesCards(t *testing.T) {
	ctx := traceCtx(t)
	provider := test.NewFakeAdsProvider()
	defer provider.Close()
	provider.AddBrand("Brand", "9", map[string]any{
		"ad_archive_id": 12345,
		"page_id":       9,
		"page_name":     "Brand",
		"snapshot": map[string]any{
			"display_format": "DCO",
			"cards": []map[string]any{
				{"body": "no media here"},
				{"body": "Card copy", "video_hd_url": "https://cdn.example.com/card.mp4", "cta_text": "Buy"},
			},
		},
	})
	source := newAdsSource(provider, "k")

	ads, err := source.Fetch(ctx, []string{"9"}, 10, "")
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, "12345", ads[0].AdID)
	assert.Equal(t, "9", ads[0].PageID)
	assert.Equal(t, model.MediaTypeVideo, ads[0].MediaType)
	assert.Equal(t, "https://cdn.example.com/card.mp4", ads[0].MediaURL)
	assert.Equal(t, "Card copy", ads[0].Body)
	assert.Equal(t, "Buy", ads[0].CTAText)
}

func TestAdsSourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "credit exhausted",
			status: http.StatusPaymentRequired,
			body:   `{"error":"credits","message":"out of credits","credits_remaining":0}`,
			check: func(t *testing.T, err error) {
				var credit *model.CreditExhaustedError
				require.True(t, errors.As(err, &credit))
				assert.Equal(t, 0, credit.CreditsRemaining)
				assert.Equal(t, "https://example.com/topup", credit.TopupURL)
				resp := model.NewErrorResponse(err)
				assert.Equal(t, http.StatusPaymentRequired, resp.Status)
				assert.Equal(t, model.ErrorTypeCreditExhausted, resp.Type)
			},
		},
		{
			name:   "rate limited with header",
			status: http.StatusTooManyRequests,
			body:   `{"error":"slow down"}`,
			header: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				var limited *model.RateLimitedError
				require.True(t, errors.As(err, &limited))
				assert.Equal(t, 30, limited.RetryAfter)
			},
		},
		{
			name:   "rate limited with body",
			status: http.StatusTooManyRequests,
			body:   `{"error":"slow down","retry_after":45}`,
			check: func(t *testing.T, err error) {
				var limited *model.RateLimitedError
				require.True(t, errors.As(err, &limited))
				assert.Equal(t, 45, limited.RetryAfter)
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":"bad key"}`,
			check: func(t *testing.T, err error) {
				var auth *model.ProviderAuthError
				assert.True(t, errors.As(err, &auth))
			},
		},
		{
			name:   "unknown page",
			status: http.StatusNotFound,
			body:   `{"error":"page not found"}`,
			check: func(t *testing.T, err error) {
				var notFound *model.NotFoundError
				require.True(t, errors.As(err, &notFound))
				assert.Equal(t, "page not found", notFound.Detail)
				assert.False(t, model.IsRetryable(err))
				resp := model.NewErrorResponse(err)
				assert.Equal(t, http.StatusNotFound, resp.Status)
				assert.Equal(t, model.ErrorTypeNotFound, resp.Type)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `upstream broke`,
			check: func(t *testing.T, err error) {
				var provErr *model.ProviderError
				require.True(t, errors.As(err, &provErr))
				assert.Equal(t, http.StatusBadGateway, provErr.StatusCode)
				assert.True(t, model.IsRetryable(err))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := traceCtx(t)
			provider := test.NewFakeAdsProvider()
			defer provider.Close()
			provider.FailWith(tc.status, tc.body, tc.header)
			source := newAdsSource(provider, "k")

			_, err := source.Resolve(ctx, []string{"Nike"})
			require.Error(t, err)
			tc.check(t, err)

			_, err = source.Fetch(ctx, []string{"1"}, 5, "")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestAdsSourceMissingKey(t *testing.T) {
	ctx := traceCtx(t)
	provider := test.NewFakeAdsProvider()
	defer provider.Close()
	source := newAdsSource(provider, "")

	_, err := source.Resolve(ctx, []string{"Nike"})
	var auth *model.ProviderAuthError
	assert.True(t, errors.As(err, &auth))
	assert.Empty(t, provider.Requests())
}
