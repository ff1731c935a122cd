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

package model

// WebpageData is the structure extracted from a product page before it is
// handed to the model.
type WebpageData struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Headings    []string `json:"headings"`
	Excerpt     string   `json:"excerpt,omitempty"`
	SiteName    string   `json:"site_name,omitempty"`
	Content     string   `json:"-"`
}

// ProductProfile is the model's reading of the product page.
type ProductProfile struct {
	ProductName       string       `json:"product_name"`
	TargetAudience    string       `json:"target_audience"`
	BrandTone         string       `json:"brand_tone"`
	ValuePropositions []string     `json:"value_propositions"`
	KeySellingPoints  []string     `json:"key_selling_points,omitempty"`
	DesiredEmotion    string       `json:"desired_emotion,omitempty"`
	CallToAction      string       `json:"call_to_action,omitempty"`
	VideoDirection    string       `json:"video_direction,omitempty"`
	Summary           string       `json:"summary,omitempty"`
	Webpage           *WebpageData `json:"webpage,omitempty"`
	ModelUsed         string       `json:"model_used,omitempty"`
}

// FallbackProfile is used when the product page could not be analyzed. The
// user query stands in for the product description.
func FallbackProfile(userQuery string) *ProductProfile {
	name := userQuery
	if name == "" {
		name = "the product"
	}
	return &ProductProfile{
		ProductName:       name,
		TargetAudience:    "general audience",
		BrandTone:         "confident",
		ValuePropositions: []string{},
		Summary:           userQuery,
	}
}
