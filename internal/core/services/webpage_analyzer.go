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
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"google.golang.org/genai"
)

const (
	maxWebpageBytes   = 5 << 20
	maxWebpageContent = 5000
	maxHeadings       = 10
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// WebpageAnalyzer turns a product page into a ProductProfile.
type WebpageAnalyzer struct {
	model          cloud.ContentGenerator
	promptTemplate *template.Template
	httpClient     *http.Client
	timeout        time.Duration
	counters       modelCounters
}

// NewWebpageAnalyzer creates an analyzer. timeout bounds the page download only.
func NewWebpageAnalyzer(generator cloud.ContentGenerator, prompt *template.Template, timeout time.Duration) *WebpageAnalyzer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebpageAnalyzer{
		model:          generator,
		promptTemplate: prompt,
		httpClient:     &http.Client{},
		timeout:        timeout,
		counters:       newModelCounters("webpage-analyzer"),
	}
}

// Analyze fetches the page and asks the model for a product profile.
func (a *WebpageAnalyzer) Analyze(ctx context.Context, pageURL string) (*model.ProductProfile, error) {
	data, err := a.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return a.Interpret(ctx, data)
}

// Fetch downloads the page and extracts its title, description, headings and
// main text.
func (a *WebpageAnalyzer) Fetch(ctx context.Context, pageURL string) (*model.WebpageData, error) {
	fail := func(err error) (*model.WebpageData, error) {
		return nil, &model.FetchFailedError{URL: pageURL, Err: err}
	}
	if !IsValidURL(pageURL) {
		return fail(errors.New("not an http(s) url"))
	}
	parsed, _ := url.Parse(pageURL)

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebpageBytes))
	if err != nil {
		return fail(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("parse html: %w", err))
	}
	data := &model.WebpageData{
		URL:      pageURL,
		Title:    clean(doc.Find("title").First().Text()),
		SiteName: attr(doc, `meta[property="og:site_name"]`),
		Headings: make([]string, 0, maxHeadings),
	}
	data.Description = attr(doc, `meta[name="description"]`)
	if data.Description == "" {
		data.Description = attr(doc, `meta[property="og:description"]`)
	}
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := clean(s.Text()); text != "" {
			data.Headings = append(data.Headings, text)
		}
		return len(data.Headings) < maxHeadings
	})

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		data.Content = clean(article.TextContent)
		data.Excerpt = clean(article.Excerpt)
		if data.SiteName == "" {
			data.SiteName = article.SiteName
		}
	} else {
		doc.Find("script, style, noscript, nav, footer, header").Remove()
		data.Content = clean(doc.Find("body").Text())
	}
	data.Content = truncateRunes(data.Content, maxWebpageContent)
	if data.Content == "" && data.Title == "" {
		return fail(errors.New("page has no readable content"))
	}
	slog.InfoContext(ctx, "fetched product page", "url", pageURL, "title", data.Title, "content_chars", len(data.Content))
	return data, nil
}

// Interpret asks the model for a product profile of extracted page data.
func (a *WebpageAnalyzer) Interpret(ctx context.Context, data *model.WebpageData) (*model.ProductProfile, error) {
	fail := func(err error) (*model.ProductProfile, error) {
		return nil, &model.AnalysisFailedError{Subject: data.URL, Err: err}
	}
	if a.model == nil {
		return fail(errors.New("no model configured"))
	}
	prompt, err := renderPrompt(a.promptTemplate, map[string]string{
		"URL":          data.URL,
		"TITLE":        data.Title,
		"DESCRIPTION":  data.Description,
		"HEADINGS":     strings.Join(data.Headings, "\n"),
		"CONTENT":      data.Content,
		"EXAMPLE_JSON": model.ExampleJSON(model.GetExampleProductProfile()),
	})
	if err != nil {
		return fail(err)
	}
	out, err := a.counters.generate(ctx, a.model, []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}})
	if err != nil {
		return fail(err)
	}
	doc, ok := cloud.ExtractJSON(out)
	if !ok {
		return fail(fmt.Errorf("no JSON object in model output"))
	}
	profile := &model.ProductProfile{}
	if err = json.Unmarshal([]byte(doc), profile); err != nil {
		return fail(fmt.Errorf("decode profile: %w", err))
	}
	if profile.ProductName == "" {
		profile.ProductName = data.Title
	}
	if profile.ValuePropositions == nil {
		profile.ValuePropositions = []string{}
	}
	profile.Webpage = data
	profile.ModelUsed = a.model.Name()
	return profile, nil
}

// IsValidURL reports whether text is an absolute http or https URL.
func IsValidURL(text string) bool {
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExtractURL returns the first valid URL mentioned in text.
func ExtractURL(text string) (string, bool) {
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)]}")
		if IsValidURL(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func attr(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return clean(v)
}

func clean(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
