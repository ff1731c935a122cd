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

package cloud

// Default prompt templates. They are parsed with text/template and receive a
// map[string]string vocabulary with upper-case keys. Deployments override
// them in the [prompt_templates] section of the TOML configuration.
const (
	DefaultWebpagePrompt = `You are a senior brand strategist preparing a brief for a short promotional video.
Analyze the product page below and describe:
1. PRODUCT/SERVICE OVERVIEW: the product name and a one paragraph summary.
2. TARGET AUDIENCE: who the page is speaking to.
3. BRAND IDENTITY: the tone of voice.
4. KEY SELLING POINTS and VALUE PROPOSITIONS.
5. DESIRED EMOTIONAL RESPONSE.
6. CALL-TO-ACTION.
7. VIDEO DIRECTION RECOMMENDATIONS.

URL: {{.URL}}
TITLE: {{.TITLE}}
META DESCRIPTION: {{.DESCRIPTION}}
HEADINGS:
{{.HEADINGS}}
PAGE CONTENT:
{{.CONTENT}}

Respond only with JSON in exactly this shape:
{{.EXAMPLE_JSON}}`

	DefaultVideoPrompt = `You are an advertising analyst. Watch this competitor video ad from "{{.PAGE_NAME}}" (ad {{.AD_ID}}).
Ad copy: {{.BODY}}

Focus on: the opening hook, visual techniques, pacing and editing rhythm, composition and framing,
color palette, text overlays, the core message, the call to action, the intended audience,
the emotional triggers and overall effectiveness.

Respond only with JSON in exactly this shape:
{{.EXAMPLE_JSON}}`

	DefaultTrendPrompt = `You are a creative strategist. Competitor ad statistics for this market:
{{.STATISTICS}}

Key findings:
{{.KEY_FINDINGS}}

Write a short narrative (at most 120 words) explaining what these competitors have in common
and where a new video ad could stand apart. Plain text only.`
)
