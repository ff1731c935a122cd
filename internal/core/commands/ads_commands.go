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

package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// BrandResolver maps the requested brand names to ads-library page ids.
// Provider errors (auth, credits, rate limit) fail the run unchanged; a run
// where no brand resolves fails with *model.NoBrandsResolvedError.
type BrandResolver struct {
	cor.BaseCommand
	source *services.AdsSource
}

// NewBrandResolver is the constructor for the BrandResolver command.
func NewBrandResolver(name string, source *services.AdsSource) *BrandResolver {
	return &BrandResolver{BaseCommand: *cor.NewBaseCommand(name), source: source}
}

// IsExecutable requires the normalized request.
func (c *BrandResolver) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamRequest) != nil
}

// Execute resolves the brands and outputs the resolved page ids.
func (c *BrandResolver) Execute(context cor.Context) {
	req := context.Get(ParamRequest).(*model.ScriptRequest)
	if !enter(&c.BaseCommand, context, model.StateResolvingBrands) {
		return
	}
	ctx, cancel := runContext(context)
	defer cancel()

	brands, err := c.source.Resolve(ctx, req.BrandNames)
	if err != nil {
		abort(&c.BaseCommand, context, err)
		return
	}
	ids := model.ResolvedPlatformIDs(brands)
	if len(ids) == 0 {
		abort(&c.BaseCommand, context, &model.NoBrandsResolvedError{BrandNames: req.BrandNames})
		return
	}
	tracker := RunTracker(context)
	for _, b := range brands {
		if !b.Resolved() {
			slog.WarnContext(ctx, "brand not found in ads library", "brand", b.Name)
			if tracker != nil {
				tracker.Warn(fmt.Sprintf("brand %q did not match an ads-library page", b.Name))
			}
		}
	}

	c.Succeed(context)
	context.Add(ParamBrands, brands)
	context.Add(c.GetOutputParam(), ids)
}

// AdsFetcher downloads the ads of the resolved pages. An empty batch is a
// valid result.
type AdsFetcher struct {
	cor.BaseCommand
	source *services.AdsSource
}

// NewAdsFetcher is the constructor for the AdsFetcher command.
func NewAdsFetcher(name string, source *services.AdsSource) *AdsFetcher {
	return &AdsFetcher{BaseCommand: *cor.NewBaseCommand(name), source: source}
}

// IsExecutable requires the request and the resolved page ids.
func (c *AdsFetcher) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamRequest) != nil && context.Get(ParamBrands) != nil
}

// Execute fetches up to the request limit of ads.
func (c *AdsFetcher) Execute(context cor.Context) {
	req := context.Get(ParamRequest).(*model.ScriptRequest)
	ids := model.ResolvedPlatformIDs(context.Get(ParamBrands).([]model.BrandQuery))
	if !enter(&c.BaseCommand, context, model.StateFetchingAds) {
		return
	}
	ctx, cancel := runContext(context)
	defer cancel()

	ads, err := c.source.Fetch(ctx, ids, req.Limit, req.Country)
	if err != nil {
		abort(&c.BaseCommand, context, err)
		return
	}
	slog.InfoContext(ctx, "fetched ads", "platform_ids", len(ids), "ads", len(ads), "limit", req.Limit)

	c.Succeed(context)
	context.Add(ParamAds, ads)
	context.Add(c.GetOutputParam(), ads)
}
