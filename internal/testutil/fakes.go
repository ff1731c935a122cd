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

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"
)

// FakeModel implements cloud.ContentGenerator. Respond receives the text of
// every part of the prompt joined by newlines.
type FakeModel struct {
	ModelName string
	Respond   func(ctx context.Context, prompt string) (string, error)
	calls     atomic.Int64
}

// NewStaticModel answers every prompt with the same text.
func NewStaticModel(name string, response string) *FakeModel {
	return &FakeModel{
		ModelName: name,
		Respond: func(context.Context, string) (string, error) {
			return response, nil
		},
	}
}

// GenerateContent answers with a single candidate holding the Respond text.
func (f *FakeModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var parts []string
	for _, c := range content {
		for _, p := range c.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	text, err := f.Respond(ctx, strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 20},
	}, nil
}

// Name returns the model name.
func (f *FakeModel) Name() string { return f.ModelName }

// Calls reports how many times the model was invoked.
func (f *FakeModel) Calls() int { return int(f.calls.Load()) }

// FakeAdsProvider emulates the ScrapeCreators Facebook Ad Library endpoints.
type FakeAdsProvider struct {
	Server   *httptest.Server
	PageSize int

	mu        sync.Mutex
	companies map[string][]map[string]string // lowercase query -> search results
	ads       map[string][]map[string]any    // page id -> ads
	status    int
	body      string
	header    map[string]string
	requests  []string
}

// NewFakeAdsProvider starts the fake provider. Call Close when done.
func NewFakeAdsProvider() *FakeAdsProvider {
	f := &FakeAdsProvider{
		PageSize:  2,
		companies: make(map[string][]map[string]string),
		ads:       make(map[string][]map[string]any),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL is the provider base URL.
func (f *FakeAdsProvider) URL() string { return f.Server.URL }

// Close stops the server.
func (f *FakeAdsProvider) Close() { f.Server.Close() }

// AddBrand registers a company search result and the ads it runs.
func (f *FakeAdsProvider) AddBrand(name string, pageID string, ads ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(name)
	f.companies[key] = append(f.companies[key], map[string]string{"name": name, "page_id": pageID})
	f.ads[pageID] = append(f.ads[pageID], ads...)
}

// FailWith makes every request answer with status and body.
func (f *FakeAdsProvider) FailWith(status int, body string, header map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
	f.header = header
}

// Requests returns the request paths with query strings, in arrival order.
func (f *FakeAdsProvider) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeAdsProvider) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.URL.RequestURI())

	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("x-api-key") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"missing api key"}`))
		return
	}
	if f.status != 0 {
		for k, v := range f.header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}

	switch r.URL.Path {
	case "/v1/facebook/adLibrary/search/companies":
		results := f.companies[strings.ToLower(r.URL.Query().Get("query"))]
		if results == nil {
			results = []map[string]string{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"searchResults": results})
	case "/v1/facebook/adLibrary/company/ads":
		all := f.ads[r.URL.Query().Get("pageId")]
		start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
		end := start + f.PageSize
		if end > len(all) {
			end = len(all)
		}
		page := []map[string]any{}
		if start < len(all) {
			page = all[start:end]
		}
		cursor := ""
		if end < len(all) {
			cursor = strconv.Itoa(end)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": page, "cursor": cursor})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

// VideoAd builds a provider ad record with a single video.
func VideoAd(id string, pageID string, pageName string, videoURL string, body string) map[string]any {
	return map[string]any{
		"ad_archive_id":      id,
		"page_id":            pageID,
		"page_name":          pageName,
		"start_date":         1717200000,
		"end_date":           1719792000,
		"publisher_platform": []string{"FACEBOOK", "INSTAGRAM"},
		"snapshot": map[string]any{
			"display_format": "VIDEO",
			"body":           map[string]string{"text": body},
			"title":          "New season, new miles",
			"cta_text":       "Shop Now",
			"link_url":       "https://example.com/shop",
			"videos":         []map[string]string{{"video_sd_url": videoURL, "video_hd_url": videoURL + "?hd=1"}},
		},
	}
}

// ImageAd builds a provider ad record with a single image.
func ImageAd(id string, pageID string, pageName string, imageURL string, body string) map[string]any {
	return map[string]any{
		"ad_archive_id":      id,
		"page_id":            pageID,
		"page_name":          pageName,
		"start_date":         1717200000,
		"publisher_platform": []string{"FACEBOOK"},
		"snapshot": map[string]any{
			"display_format": "IMAGE",
			"body":           map[string]string{"text": body},
			"cta_text":       "Learn More",
			"images":         []map[string]string{{"resized_image_url": imageURL}},
		},
	}
}

// MP4Bytes is a tiny payload with an MP4 file signature.
var MP4Bytes = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

// PNGBytes is a tiny payload with a PNG file signature.
var PNGBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R'}

// MediaServer serves fixed media payloads and counts requests per path.
type MediaServer struct {
	Server *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
	gate  chan struct{}
}

// NewMediaServer starts an empty media server.
func NewMediaServer() *MediaServer {
	m := &MediaServer{files: make(map[string][]byte), hits: make(map[string]int)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Add serves data at path and returns its absolute URL.
func (m *MediaServer) Add(path string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return m.Server.URL + path
}

// URL returns the absolute URL for path without registering it.
func (m *MediaServer) URL(path string) string { return m.Server.URL + path }

// Hold makes requests block until the returned function is called.
func (m *MediaServer) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Hits reports how many requests arrived for path.
func (m *MediaServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// Close stops the server.
func (m *MediaServer) Close() { m.Server.Close() }

func (m *MediaServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.hits[r.URL.Path]++
	data, ok := m.files[r.URL.Path]
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

// ProductPageHTML is a small product page with the usual noise around the content.
const ProductPageHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Pegasus Trail | Example Running</title>
  <meta name="description" content="A road-to-trail running shoe with responsive cushioning.">
  <meta property="og:site_name" content="Example Running">
  <script>var tracking = "should not appear";</script>
  <style>body { color: red; }</style>
</head>
<body>
  <header><nav>Home Shop Help</nav></header>
  <main>
    <article>
      <h1>Pegasus Trail</h1>
      <h2>Built for the miles between</h2>
      <p>The Pegasus Trail takes you from city streets to forest paths without missing a stride.
      Responsive cushioning keeps every step springy, while a grippy outsole holds on mixed terrain.</p>
      <h3>Free returns for 30 days</h3>
      <p>Try it on your own routes. If it is not right for you, send it back for free within thirty days.
      Designed for runners who want one shoe for road and trail.</p>
    </article>
  </main>
  <footer>Copyright Example Running</footer>
</body>
</html>`
