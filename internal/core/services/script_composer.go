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
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
)

// Base output settings before generator defaults and style preferences apply.
const (
	baseResolution  = "1080p"
	baseAspectRatio = "16:9"
	baseFPS         = 30
	baseDuration    = 30
	baseFormat      = "mp4"
	baseQuality     = "high"
)

var tonePrefixes = map[string]string{
	"urgent":    "Create an emotionally charged video that builds tension and urgency.",
	"positive":  "Develop an uplifting, inspiring narrative that creates emotional connection.",
	"exclusive": "Craft a sophisticated, premium experience that conveys exclusivity.",
	"social":    "Build a relatable, community-focused story that emphasizes human connection.",
}

var toneMoods = map[string]string{
	"urgent":    "energetic and time-sensitive",
	"positive":  "uplifting and optimistic",
	"exclusive": "refined and aspirational",
	"social":    "warm and communal",
}

// ScriptComposer turns a product profile and trend analysis into a video
// script for one generator. It does not call the model.
type ScriptComposer struct {
	now func() time.Time
}

// NewScriptComposer creates a composer.
func NewScriptComposer() *ScriptComposer {
	return &ScriptComposer{now: time.Now}
}

// Compose builds the script. Only an unknown generator or a missing request
// is an error; missing profile or trend data degrade the text instead.
func (c *ScriptComposer) Compose(ctx context.Context, in model.CompositionInput) (*model.GeneratedScript, error) {
	if in.Request == nil {
		return nil, &model.ValidationError{Field: "request", Detail: "a script request is required"}
	}
	generator, ok := model.LookupGenerator(in.Request.GeneratorType)
	if !ok {
		return nil, &model.ValidationError{
			Field:  "generator_type",
			Detail: fmt.Sprintf("unsupported generator %q, supported: %s", in.Request.GeneratorType, strings.Join(model.GeneratorIDs(), ", ")),
		}
	}
	profile := in.Profile
	if profile == nil {
		profile = model.FallbackProfile(in.Request.UserQuery)
	}
	trends := in.Trends
	if trends == nil {
		trends = &model.TrendAnalysis{}
	}

	brief := newCreativeBrief(in.Request, profile, trends, in.Insights, generator)
	specs := technicalSpecifications(ctx, generator, in.Request.StylePreferences)
	scenes := brief.scenes()

	metadata := in.Metadata
	metadata.GeneratorType = generator.ID
	metadata.UserQuery = in.Request.UserQuery
	metadata.ProductURL = in.Request.ProductURL
	if metadata.AnalysisTimestamp.IsZero() {
		metadata.AnalysisTimestamp = c.now().UTC()
	}

	script := &model.GeneratedScript{
		Success:                 true,
		Message:                 fmt.Sprintf("Generated a %s script from %d video insights across %d competitor ads", generator.Label, len(in.Insights), metadata.AdsFetched),
		VideoDescription:        brief.description(scenes, specs),
		Scenes:                  scenes,
		Variations:              brief.variations(specs),
		Recommendations:         brief.recommendations(specs),
		TechnicalSpecifications: specs,
		AnalysisMetadata:        metadata,
		VideoInsights:           nonNilInsights(in.Insights),
		AnalysisFailures:        nonNilFailures(in.Failures),
		TrendAnalysis:           trends,
	}
	if metadata.WebpageAnalyzed {
		script.WebpageAnalysis = in.Profile
	}
	slog.InfoContext(ctx, "composed script", "generator", generator.ID, "scenes", len(scenes), "variations", len(script.Variations))
	return script, nil
}

// creativeBrief gathers what the script text is built from.
type creativeBrief struct {
	product     string
	summary     string
	audience    string
	tone        string
	emotion     string
	cta         string
	direction   string
	values      []string
	selling     []string
	themes      []string
	techniques  []string
	hooks       []string
	colors      []string
	elements    []string
	strategies  []string
	competitors []string
	missing     []string
	hasAds      bool
	dominant    string
	generator   model.Generator
}

func newCreativeBrief(req *model.ScriptRequest, p *model.ProductProfile, t *model.TrendAnalysis, insights []*model.VideoInsight, g model.Generator) *creativeBrief {
	b := &creativeBrief{
		product:    firstTrimmed(p.ProductName, req.UserQuery, "the product"),
		summary:    firstTrimmed(p.Summary, req.UserQuery),
		audience:   firstTrimmed(p.TargetAudience, "the target audience"),
		tone:       firstTrimmed(p.BrandTone, "confident"),
		emotion:    p.DesiredEmotion,
		cta:        firstTrimmed(p.CallToAction, topTerm(t.MessagingTrends.CTAPatterns), "Shop now"),
		direction:  p.VideoDirection,
		values:     p.ValuePropositions,
		selling:    p.KeySellingPoints,
		themes:     t.TopThemes(3),
		techniques: t.TopTechniques(3),
		elements:   termList(t.VisualTrends.VisualElements, 3),
		strategies: termList(t.MessagingTrends.MessagingStrategies, 3),
		hasAds:     t.Reasoning.DataBreakdown.TotalAds > 0,
		dominant:   firstTrimmed(t.MessagingTrends.DominantTone(), "positive"),
		generator:  g,
	}
	for i, share := range t.Reasoning.CompetitiveAnalysis.TopCompetitors {
		if i == 3 {
			break
		}
		b.competitors = append(b.competitors, share.Brand)
	}
	present := map[string]bool{}
	for _, theme := range t.ContentTrends.Themes {
		present[theme.Term] = true
	}
	for _, group := range themeGroups {
		if !present[group.label] {
			b.missing = append(b.missing, group.label)
		}
	}

	hooks := termCounter{}
	colors := termCounter{}
	for _, in := range insights {
		if in == nil || in.Details == nil {
			continue
		}
		for _, h := range in.Details.Hooks {
			hooks[strings.TrimSpace(h)]++
		}
		for _, col := range in.Details.ColorPalette {
			colors[strings.ToLower(strings.TrimSpace(col))]++
		}
	}
	delete(hooks, "")
	delete(colors, "")
	b.hooks = termList(hooks.top(2), 2)
	b.colors = termList(colors.top(3), 3)
	return b
}

func (b *creativeBrief) scenes() []model.Scene {
	opening := fmt.Sprintf("Open on a striking first frame that shows %s in use, shot with %s.", b.product, b.generator.Camera)
	if b.direction != "" {
		opening = fmt.Sprintf("%s, shot with %s.", capitalize(strings.TrimSuffix(b.direction, ".")), b.generator.Camera)
	}
	if len(b.elements) > 0 {
		opening += " Frame it around " + joinList(b.elements) + ", the visuals competitors rely on."
	}

	hook := fmt.Sprintf("Hook %s within two seconds with a %s moment", b.audience, b.tone)
	if len(b.hooks) > 0 {
		hook += fmt.Sprintf(", in the spirit of competitor openers like %q", b.hooks[0])
	}
	hook += "."

	solution := fmt.Sprintf("Reveal %s as the answer.", b.product)
	if len(b.values) > 0 {
		solution += " Show " + joinList(limit(b.values, 3)) + " on screen rather than telling it."
	}
	if len(b.techniques) > 0 {
		solution += " Use " + joinList(b.techniques) + " to carry the reveal."
	}

	benefits := "Stack the benefits in quick succession"
	switch {
	case len(b.selling) > 0:
		benefits += ": " + joinList(limit(b.selling, 3)) + "."
	case len(b.themes) > 0:
		benefits += ", leaning into the " + joinList(b.themes) + " themes the market responds to."
	default:
		benefits += ", each tied to a real moment of use."
	}

	cta := fmt.Sprintf("Close on the product and logo with the call to action %q held on screen for the final beat.", b.cta)

	return []model.Scene{
		{Sequence: 1, StartSeconds: 0, EndSeconds: 3, Title: "Opening", Description: opening},
		{Sequence: 2, StartSeconds: 3, EndSeconds: 5, Title: "Hook", Description: hook},
		{Sequence: 3, StartSeconds: 5, EndSeconds: 15, Title: "Solution", Description: solution},
		{Sequence: 4, StartSeconds: 15, EndSeconds: 20, Title: "Benefits", Description: benefits},
		{Sequence: 5, StartSeconds: 20, EndSeconds: 25, Title: "Call to action", Description: cta},
	}
}

func (b *creativeBrief) description(scenes []model.Scene, specs model.TechnicalSpecifications) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %s video (%s) for %s.", b.generator.Label, b.generator.StyleDescriptor, b.product)
	if b.summary != "" && b.summary != b.product {
		fmt.Fprintf(&sb, " %s", strings.TrimSuffix(b.summary, ".")+".")
	}
	fmt.Fprintf(&sb, " Audience: %s. Tone: %s.", b.audience, b.tone)
	for _, s := range scenes {
		fmt.Fprintf(&sb, "\nScene %d (%d-%ds) %s: %s", s.Sequence, s.StartSeconds, s.EndSeconds, s.Title, s.Description)
	}
	fmt.Fprintf(&sb, "\nStyle: %s, %s motion, %s lighting, %s %s.", specs.Style, specs.Motion, specs.Lighting, specs.AspectRatio, specs.Resolution)
	return sb.String()
}

func (b *creativeBrief) variations(specs model.TechnicalSpecifications) []model.Variation {
	prefix, ok := tonePrefixes[b.dominant]
	if !ok {
		prefix = "Create an emotionally engaging video that resonates deeply with viewers."
	}
	emotion := firstTrimmed(b.emotion, toneMoods[b.dominant], "connection")
	emotional := fmt.Sprintf("%s Follow one person from %s through a day where %s changes how it feels. "+
		"Let the camera stay close on faces and hands, hold on the moment of relief, and let %s build to the closing line %q.",
		prefix, b.audience, b.product, emotion, b.cta)

	technical := fmt.Sprintf("%s Render %s in a %s style with %s motion and %s lighting; %s. "+
		"Output %s at %s, %d fps, %d seconds, %s, %s quality.",
		b.generator.TechnicalFocus, b.product, specs.Style, specs.Motion, specs.Lighting, b.generator.Camera,
		specs.AspectRatio, specs.Resolution, specs.FPS, specs.DurationSeconds, specs.Format, specs.Quality)
	if len(b.techniques) > 0 {
		technical += " Reproduce the " + joinList(b.techniques) + " techniques that perform for competitors, with cleaner execution."
	}

	var competitive string
	if b.hasAds && len(b.missing) > 0 {
		competitive = fmt.Sprintf("Differentiate by emphasizing %s themes that competitors are missing.", joinList(limit(b.missing, 2)))
	} else {
		competitive = "Stand out from competitors with unique positioning and messaging."
	}
	if len(b.competitors) > 0 {
		competitive += fmt.Sprintf(" Where %s lean on %s, position %s on what only it offers",
			joinList(b.competitors), firstTrimmed(joinList(b.themes), "familiar promises"), b.product)
	} else {
		competitive += fmt.Sprintf(" Position %s on what only it offers", b.product)
	}
	if len(b.values) > 0 {
		competitive += ": " + joinList(limit(b.values, 2))
	}
	competitive += ", and end on a side-by-side that makes the difference obvious."

	return []model.Variation{
		{Label: model.VariationEmotional, Title: "Emotional storytelling", Focus: b.dominant, Description: emotional},
		{Label: model.VariationTechnical, Title: b.generator.Label + " technical showcase", Focus: b.generator.ID, Description: technical},
		{Label: model.VariationCompetitive, Title: "Competitive differentiation", Focus: strings.Join(limit(b.missing, 2), ", "), Description: competitive},
	}
}

func (b *creativeBrief) recommendations(specs model.TechnicalSpecifications) model.Recommendations {
	colorScheme := "High-contrast brand colors that read in the first three seconds"
	if len(b.colors) > 0 {
		colorScheme = fmt.Sprintf("Competitors favor %s; choose a brand palette that contrasts with it", joinList(b.colors))
	}
	visual := []string{"Use attention-grabbing visuals in the first 3 seconds"}
	if len(b.elements) > 0 {
		visual = append(visual, "Include "+joinList(b.elements))
	}
	if len(b.techniques) > 0 {
		visual = append(visual, "Apply "+joinList(b.techniques))
	}
	messaging := []string{"Lead with one clear value proposition", fmt.Sprintf("Close with %q", b.cta)}
	if len(b.strategies) > 0 {
		messaging = append(messaging, "Use the "+joinList(b.strategies)+" approaches that competitors prove out")
	}
	return model.Recommendations{
		Style:             specs.Style,
		Duration:          fmt.Sprintf("%ds", specs.DurationSeconds),
		AspectRatio:       specs.AspectRatio,
		ColorScheme:       colorScheme,
		Mood:              firstTrimmed(b.emotion, toneMoods[b.dominant], "confident"),
		VisualElements:    visual,
		MessagingApproach: messaging,
	}
}

// technicalSpecifications applies generator defaults over the base settings,
// then the request's style preferences. Unparseable numeric preferences are
// ignored.
func technicalSpecifications(ctx context.Context, g model.Generator, prefs map[string]string) model.TechnicalSpecifications {
	specs := model.TechnicalSpecifications{
		GeneratorType:    g.ID,
		Model:            g.Model,
		Resolution:       baseResolution,
		AspectRatio:      baseAspectRatio,
		FPS:              baseFPS,
		DurationSeconds:  baseDuration,
		Format:           baseFormat,
		Quality:          baseQuality,
		Style:            g.Style,
		Motion:           g.Motion,
		Lighting:         g.Lighting,
		RecommendedSpecs: g.RecommendedSpecs,
	}
	for key, value := range prefs {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "aspect_ratio":
			specs.AspectRatio = value
		case "resolution":
			specs.Resolution = value
		case "style":
			specs.Style = value
		case "motion":
			specs.Motion = value
		case "lighting":
			specs.Lighting = value
		case "format":
			specs.Format = value
		case "quality":
			specs.Quality = value
		case "duration":
			if n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(value), "s")); err == nil && n > 0 {
				specs.DurationSeconds = n
			} else {
				slog.WarnContext(ctx, "ignoring style preference", "key", key, "value", value)
			}
		case "fps":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				specs.FPS = n
			} else {
				slog.WarnContext(ctx, "ignoring style preference", "key", key, "value", value)
			}
		}
	}
	return specs
}

func firstTrimmed(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func topTerm(terms []model.TermCount) string {
	if len(terms) == 0 {
		return ""
	}
	return terms[0].Term
}

func termList(terms []model.TermCount, n int) []string {
	out := []string{}
	for _, tc := range terms {
		if len(out) == n {
			break
		}
		out = append(out, tc.Term)
	}
	return out
}

func limit(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// joinList renders "a", "a and b" or "a, b and c".
func joinList(values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	return strings.Join(values[:len(values)-1], ", ") + " and " + values[len(values)-1]
}

func nonNilInsights(in []*model.VideoInsight) []*model.VideoInsight {
	if in == nil {
		return []*model.VideoInsight{}
	}
	return in
}

func nonNilFailures(in []model.AdFailure) []model.AdFailure {
	if in == nil {
		return []model.AdFailure{}
	}
	return in
}
