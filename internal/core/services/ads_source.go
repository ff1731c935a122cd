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

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"golang.org/x/time/rate"
)

// ScrapeCreators Facebook Ad Library endpoints.
const (
	searchCompaniesPath = "/v1/facebook/adLibrary/search/companies"
	companyAdsPath      = "/v1/facebook/adLibrary/company/ads"
	apiKeyHeader        = "x-api-key"
	defaultRetryAfter   = 60
	maxProviderBody     = 10 << 20
)

// AdsSourceOptions configures an AdsSource.
type AdsSourceOptions struct {
	BaseURL           string
	APIKey            string
	TopupURL          string
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxPagesPerID     int
	HTTPClient        *http.Client
}

// AdsSource resolves brand names to ad-library page ids and fetches their ads.
type AdsSource struct {
	baseURL    string
	apiKey     string
	topupURL   string
	maxPages   int
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewAdsSource creates a client. Requests are paced at RequestsPerSecond.
func NewAdsSource(opts AdsSourceOptions) *AdsSource {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	if opts.MaxPagesPerID <= 0 {
		opts.MaxPagesPerID = 10
	}
	if opts.HTTPClient == nil {
		if opts.Timeout <= 0 {
			opts.Timeout = 30 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &AdsSource{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		topupURL:   opts.TopupURL,
		maxPages:   opts.MaxPagesPerID,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		httpClient: opts.HTTPClient,
	}
}

// NewAdsSourceFromConfig builds the client from the ads_library section.
func NewAdsSourceFromConfig(config *cloud.Config) *AdsSource {
	return NewAdsSource(AdsSourceOptions{
		BaseURL:           config.AdsLibrary.BaseURL,
		APIKey:            config.Secrets.AdsLibraryAPIKey,
		TopupURL:          config.AdsLibrary.TopupURL,
		RequestsPerSecond: config.AdsLibrary.RequestsPerSecond,
		Timeout:           time.Duration(config.AdsLibrary.TimeoutSeconds) * time.Second,
		MaxPagesPerID:     config.AdsLibrary.MaxPagesPerID,
	})
}

// Resolve looks up each distinct brand name (case-insensitive). An exact name
// match wins, otherwise the first result. Names without results stay unresolved.
func (s *AdsSource) Resolve(ctx context.Context, brandNames []string) ([]model.BrandQuery, error) {
	seen := make(map[string]bool)
	out := make([]model.BrandQuery, 0, len(brandNames))
	for _, name := range brandNames {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		var resp searchCompaniesResponse
		if err := s.get(ctx, searchCompaniesPath, url.Values{"query": {name}}, &resp); err != nil {
			return nil, err
		}
		query := model.BrandQuery{Name: name, Candidates: len(resp.SearchResults)}
		for _, c := range resp.SearchResults {
			if c.PageID == "" {
				continue
			}
			exact := strings.EqualFold(c.Name, name)
			if exact || query.PlatformID == "" {
				query.PlatformID = string(c.PageID)
				query.PageName = c.Name
			}
			if exact {
				break
			}
		}
		slog.InfoContext(ctx, "resolved brand", "brand", name, "platform_id", query.PlatformID, "candidates", query.Candidates)
		out = append(out, query)
	}
	return out, nil
}

// Fetch collects up to limit ads across the page ids. Each round splits the
// remaining quota evenly between ids that still have ads, so a brand that runs
// dry early hands its share to the others. Ads are de-duplicated by id and ads
// without usable media are dropped.
func (s *AdsSource) Fetch(ctx context.Context, platformIDs []string, limit int, country string) ([]*model.Ad, error) {
	out := make([]*model.Ad, 0)
	if len(platformIDs) == 0 || limit <= 0 {
		return out, nil
	}
	feeds := make([]*adFeed, len(platformIDs))
	for i, id := range platformIDs {
		feeds[i] = &adFeed{id: id}
	}
	seen := make(map[string]bool)
	var firstErr error

	for len(out) < limit {
		active := make([]*adFeed, 0, len(feeds))
		for _, f := range feeds {
			if f.live() {
				active = append(active, f)
			}
		}
		if len(active) == 0 {
			break
		}
		remaining := limit - len(out)
		share := (remaining + len(active) - 1) / len(active)
		progressed := false
		for _, f := range active {
			for taken := 0; taken < share && len(out) < limit; taken++ {
				if len(f.buffered) == 0 {
					if err := s.nextPage(ctx, f, country, seen); err != nil {
						if isFatalProviderError(err) {
							return nil, err
						}
						slog.WarnContext(ctx, "stopping pagination for page id", "platform_id", f.id, "error", err)
						if firstErr == nil {
							firstErr = err
						}
					}
					if len(f.buffered) == 0 {
						break
					}
				}
				out = append(out, f.buffered[0])
				f.buffered = f.buffered[1:]
				f.collected++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for _, f := range feeds {
		slog.InfoContext(ctx, "fetched ads", "platform_id", f.id, "count", f.collected, "pages", f.pages)
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// adFeed is the pagination state of one page id during a Fetch.
type adFeed struct {
	id        string
	cursor    string
	pages     int
	buffered  []*model.Ad
	exhausted bool
	collected int
}

func (f *adFeed) live() bool {
	return len(f.buffered) > 0 || !f.exhausted
}

// nextPage buffers the next page of usable, unseen ads for f. It keeps paging
// past pages that contribute nothing new until an ad is buffered or the feed
// is exhausted.
func (s *AdsSource) nextPage(ctx context.Context, f *adFeed, country string, seen map[string]bool) error {
	for !f.exhausted && len(f.buffered) == 0 {
		if f.pages >= s.maxPages {
			f.exhausted = true
			break
		}
		params := url.Values{"pageId": {f.id}}
		if f.cursor != "" {
			params.Set("cursor", f.cursor)
		}
		if country != "" {
			params.Set("country", country)
		}
		var resp companyAdsResponse
		f.pages++
		if err := s.get(ctx, companyAdsPath, params, &resp); err != nil {
			f.exhausted = true
			return err
		}
		if len(resp.Results) == 0 {
			f.exhausted = true
			break
		}
		for _, raw := range resp.Results {
			ad, ok := parseAd(raw)
			if !ok || seen[ad.AdID] {
				continue
			}
			seen[ad.AdID] = true
			f.buffered = append(f.buffered, ad)
		}
		f.cursor = resp.Cursor
		if f.cursor == "" {
			f.exhausted = true
		}
	}
	return nil
}

// isFatalProviderError reports errors that end a fetch regardless of progress.
func isFatalProviderError(err error) bool {
	var (
		auth   *model.ProviderAuthError
		credit *model.CreditExhaustedError
		limit  *model.RateLimitedError
	)
	return errors.As(err, &auth) || errors.As(err, &credit) || errors.As(err, &limit) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (s *AdsSource) get(ctx context.Context, path string, params url.Values, out any) error {
	if s.apiKey == "" {
		return &model.ProviderAuthError{Detail: "API key not configured"}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &model.ProviderError{Detail: "build request", Err: err}
	}
	req.Header.Set(apiKeyHeader, s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &model.ProviderError{Detail: path, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return &model.ProviderError{StatusCode: resp.StatusCode, Detail: "read body", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &model.ProviderAuthError{Detail: providerMessage(body, resp.Status)}
	case resp.StatusCode == http.StatusPaymentRequired:
		var p paymentRequiredBody
		_ = json.Unmarshal(body, &p)
		topup := p.TopupURL
		if topup == "" {
			topup = s.topupURL
		}
		return &model.CreditExhaustedError{CreditsRemaining: p.CreditsRemaining, TopupURL: topup, Detail: providerMessage(body, resp.Status)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &model.RateLimitedError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"), body), Detail: providerMessage(body, resp.Status)}
	case resp.StatusCode == http.StatusNotFound:
		return &model.NotFoundError{Detail: providerMessage(body, resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &model.ProviderError{StatusCode: resp.StatusCode, Detail: providerMessage(body, resp.Status)}
	}

	if err = json.Unmarshal(body, out); err != nil {
		return &model.ProviderError{StatusCode: resp.StatusCode, Detail: "decode response", Err: err}
	}
	return nil
}

// retryAfter prefers the Retry-After header, then a retry_after body field.
func retryAfter(header string, body []byte) int {
	if v, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && v >= 0 {
		return v
	}
	var b struct {
		RetryAfter flexInt64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &b) == nil && b.RetryAfter > 0 {
		return int(b.RetryAfter)
	}
	return defaultRetryAfter
}

func providerMessage(body []byte, fallback string) string {
	var b struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &b) == nil {
		if b.Message != "" {
			return b.Message
		}
		if b.Error != "" {
			return b.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return fallback
	}
	return text
}

type paymentRequiredBody struct {
	CreditsRemaining int    `json:"credits_remaining"`
	TopupURL         string `json:"topup_url"`
}

type searchCompaniesResponse struct {
	SearchResults []struct {
		Name   string     `json:"name"`
		PageID flexString `json:"page_id"`
	} `json:"searchResults"`
}

type companyAdsResponse struct {
	Results []json.RawMessage `json:"results"`
	Cursor  string            `json:"cursor"`
}

type providerAd struct {
	AdArchiveID       flexString `json:"ad_archive_id"`
	PageID            flexString `json:"page_id"`
	PageName          string     `json:"page_name"`
	StartDate         flexInt64  `json:"start_date"`
	EndDate           flexInt64  `json:"end_date"`
	PublisherPlatform []string   `json:"publisher_platform"`
	Snapshot          struct {
		DisplayFormat string `json:"display_format"`
		PageName      string `json:"page_name"`
		Body          struct {
			Text string `json:"text"`
		} `json:"body"`
		Title   string `json:"title"`
		CTAText string `json:"cta_text"`
		LinkURL string `json:"link_url"`
		Videos  []struct {
			VideoSDURL string `json:"video_sd_url"`
			VideoHDURL string `json:"video_hd_url"`
		} `json:"videos"`
		Images []struct {
			ResizedImageURL  string `json:"resized_image_url"`
			OriginalImageURL string `json:"original_image_url"`
		} `json:"images"`
		Cards []struct {
			Body             string `json:"body"`
			Title            string `json:"title"`
			CTAText          string `json:"cta_text"`
			LinkURL          string `json:"link_url"`
			VideoSDURL       string `json:"video_sd_url"`
			VideoHDURL       string `json:"video_hd_url"`
			ResizedImageURL  string `json:"resized_image_url"`
			OriginalImageURL string `json:"original_image_url"`
		} `json:"cards"`
	} `json:"snapshot"`
}

// parseAd maps a provider record to an Ad. Records without an id or media are dropped.
func parseAd(raw json.RawMessage) (*model.Ad, bool) {
	var p providerAd
	if err := json.Unmarshal(raw, &p); err != nil || p.AdArchiveID == "" {
		return nil, false
	}
	snap := p.Snapshot
	ad := &model.Ad{
		AdID:               string(p.AdArchiveID),
		PageID:             string(p.PageID),
		PageName:           firstNonEmpty(p.PageName, snap.PageName),
		Body:               strings.TrimSpace(snap.Body.Text),
		Title:              snap.Title,
		CTAText:            snap.CTAText,
		LinkURL:            snap.LinkURL,
		FirstSeen:          epoch(int64(p.StartDate)),
		LastSeen:           epoch(int64(p.EndDate)),
		PublisherPlatforms: p.PublisherPlatform,
		Raw:                raw,
	}

	video := func() string {
		if len(snap.Videos) > 0 {
			return firstNonEmpty(snap.Videos[0].VideoSDURL, snap.Videos[0].VideoHDURL)
		}
		return ""
	}
	image := func() string {
		if len(snap.Images) > 0 {
			return firstNonEmpty(snap.Images[0].ResizedImageURL, snap.Images[0].OriginalImageURL)
		}
		return ""
	}

	switch strings.ToUpper(snap.DisplayFormat) {
	case "VIDEO":
		ad.MediaURL, ad.MediaType = video(), model.MediaTypeVideo
	case "IMAGE":
		ad.MediaURL, ad.MediaType = image(), model.MediaTypeImage
	default:
		// DCO and carousel formats carry their media on the cards.
		for _, card := range snap.Cards {
			if v := firstNonEmpty(card.VideoSDURL, card.VideoHDURL); v != "" {
				ad.MediaURL, ad.MediaType = v, model.MediaTypeVideo
			} else if i := firstNonEmpty(card.ResizedImageURL, card.OriginalImageURL); i != "" {
				ad.MediaURL, ad.MediaType = i, model.MediaTypeImage
			} else {
				continue
			}
			ad.Body = firstNonEmpty(ad.Body, strings.TrimSpace(card.Body))
			ad.Title = firstNonEmpty(ad.Title, card.Title)
			ad.CTAText = firstNonEmpty(ad.CTAText, card.CTAText)
			ad.LinkURL = firstNonEmpty(ad.LinkURL, card.LinkURL)
			break
		}
		if ad.MediaURL == "" {
			if v := video(); v != "" {
				ad.MediaURL, ad.MediaType = v, model.MediaTypeVideo
			} else if i := image(); i != "" {
				ad.MediaURL, ad.MediaType = i, model.MediaTypeImage
			}
		}
	}
	if ad.MediaURL == "" {
		return nil, false
	}
	return ad, true
}

func epoch(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt64 accepts a JSON number or a numeric string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		// Unparseable dates are treated as absent.
		return nil
	}
	*f = flexInt64(v)
	return nil
}
