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

// Package model defines the data structures that flow through an ad analysis
// run. This file holds the records retrieved from the ads-library provider:
// the brand resolution result and the normalized ad record.
package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// MediaType is the normalized creative format of an ad.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// BrandQuery is one brand name submitted for resolution together with the
// ads-library page it resolved to. An empty PlatformID means the brand did
// not match any page.
type BrandQuery struct {
	Name       string `json:"name"`
	PlatformID string `json:"platform_id,omitempty"`
	PageName   string `json:"page_name,omitempty"`
	Candidates int    `json:"candidates"`
}

// Resolved reports whether the brand matched an ads-library page.
func (b BrandQuery) Resolved() bool {
	return b.PlatformID != ""
}

// PlatformIDMap renders brand queries as the name -> id (nullable) mapping
// returned by the brand search endpoint.
func PlatformIDMap(brands []BrandQuery) map[string]*string {
	out := make(map[string]*string, len(brands))
	for _, b := range brands {
		if b.Resolved() {
			id := b.PlatformID
			out[b.Name] = &id
		} else {
			out[b.Name] = nil
		}
	}
	return out
}

// ResolvedPlatformIDs returns the distinct platform ids in submission order.
func ResolvedPlatformIDs(brands []BrandQuery) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(brands))
	for _, b := range brands {
		if b.Resolved() && !seen[b.PlatformID] {
			seen[b.PlatformID] = true
			out = append(out, b.PlatformID)
		}
	}
	return out
}

// Ad is a single competitor advertisement, normalized from the provider's
// payload. AdID is unique within one fetch batch.
type Ad struct {
	AdID               string          `json:"ad_id"`
	PageID             string          `json:"page_id"`
	PageName           string          `json:"page_name"`
	MediaURL           string          `json:"media_url"`
	MediaType          MediaType       `json:"media_type"`
	Body               string          `json:"body,omitempty"`
	Title              string          `json:"title,omitempty"`
	CTAText            string          `json:"cta_text,omitempty"`
	LinkURL            string          `json:"link_url,omitempty"`
	FirstSeen          *time.Time      `json:"first_seen,omitempty"`
	LastSeen           *time.Time      `json:"last_seen,omitempty"`
	PublisherPlatforms []string        `json:"publisher_platforms,omitempty"`
	Raw                json.RawMessage `json:"-"`
}

// IsVideo reports whether the ad carries a video creative.
func (a *Ad) IsVideo() bool {
	return a.MediaType == MediaTypeVideo && a.MediaURL != ""
}

// Text returns the ad copy used for keyword statistics.
func (a *Ad) Text() string {
	return strings.TrimSpace(strings.Join([]string{a.Title, a.Body, a.CTAText}, " "))
}

// SortAdsByID returns a copy of ads ordered by AdID so that aggregation does
// not depend on fetch or completion order.
func SortAdsByID(ads []*Ad) []*Ad {
	out := make([]*Ad, 0, len(ads))
	for _, a := range ads {
		if a != nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out
}
