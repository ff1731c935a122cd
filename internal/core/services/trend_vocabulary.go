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

// keywordGroup maps a label to the keywords that signal it. Matching is a
// case-insensitive substring test against one text.
type keywordGroup struct {
	label    string
	keywords []string
}

var themeGroups = []keywordGroup{
	{"discount", []string{"sale", "discount", "off", "deal", "save", "cheap"}},
	{"new_product", []string{"new", "latest", "fresh", "innovative", "breakthrough"}},
	{"quality", []string{"premium", "quality", "best", "top", "excellent", "superior"}},
	{"convenience", []string{"easy", "simple", "quick", "fast", "convenient"}},
	{"social_proof", []string{"popular", "trending", "loved", "recommended", "trusted"}},
	{"urgency", []string{"limited", "hurry", "act now", "don't miss", "expires"}},
	{"lifestyle", []string{"lifestyle", "life", "daily", "everyday", "routine"}},
}

var toneGroups = []keywordGroup{
	{"positive", []string{"amazing", "awesome", "fantastic", "great", "wonderful", "excellent", "perfect", "love", "best", "incredible"}},
	{"urgent", []string{"hurry", "limited", "expires", "act now", "don't miss", "last chance", "quickly", "immediately"}},
	{"exclusive", []string{"exclusive", "limited", "special", "unique", "only", "rare", "premium", "vip"}},
	{"social", []string{"share", "follow", "join", "community", "friends", "family", "together", "connect"}},
}

var valuePropositionGroups = []keywordGroup{
	{"price", []string{"free", "cheap", "affordable", "budget", "low cost", "discount", "save"}},
	{"quality", []string{"premium", "quality", "best", "top", "excellent", "superior", "high-end"}},
	{"convenience", []string{"easy", "simple", "quick", "fast", "convenient", "effortless"}},
	{"results", []string{"results", "outcomes", "benefits", "improve", "enhance", "boost"}},
	{"guarantee", []string{"guarantee", "warranty", "promise", "assurance", "risk-free"}},
}

var strategyGroups = []keywordGroup{
	{"storytelling", []string{"story", "journey", "experience"}},
	{"problem-solution", []string{"problem", "solution", "fix", "solve"}},
	{"before-after", []string{"before", "after", "transformation", "change"}},
	{"social_proof", []string{"testimonial", "review", "customer", "user"}},
	{"scarcity", []string{"exclusive", "limited", "special", "only"}},
}

var ctaPatterns = []string{
	"buy now", "shop now", "get it", "order now", "click here", "learn more",
	"sign up", "join now", "start now", "try now", "download", "subscribe",
	"book now", "reserve", "claim", "grab", "snag", "score",
}

// Matched against what the video insights say.
var techniqueGroups = []keywordGroup{
	{"split-screen", []string{"split-screen", "split screen"}},
	{"close-up", []string{"close-up", "close up", "closeup"}},
	{"before/after", []string{"before/after", "before and after", "before-and-after"}},
	{"testimonial", []string{"testimonial", "review", "customer story"}},
	{"text overlay", []string{"text overlay", "on-screen text", "caption"}},
	{"slow motion", []string{"slow motion", "slow-motion", "slo-mo"}},
	{"fast cuts", []string{"fast cut", "quick cut", "rapid cut", "jump cut"}},
	{"lifestyle montage", []string{"montage", "lifestyle"}},
	{"product demo", []string{"demo", "demonstration", "how it works", "unboxing"}},
	{"user-generated", []string{"ugc", "user-generated", "selfie", "handheld"}},
	{"animation", []string{"animation", "animated", "motion graphics"}},
}

var visualElementGroups = []keywordGroup{
	{"product shots", []string{"product shot", "packshot", "product reveal", "product focus"}},
	{"people", []string{"athlete", "person", "people", "model", "face", "runner", "customer"}},
	{"outdoor", []string{"outdoor", "street", "nature", "trail", "park", "city"}},
	{"studio", []string{"studio", "seamless background", "white background"}},
	{"logo", []string{"logo", "brand mark", "end card"}},
	{"bold color", []string{"vibrant", "bold color", "neon", "saturated", "volt"}},
	{"natural light", []string{"natural light", "sunlight", "golden hour"}},
}

var stopWords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "can", "had", "her", "was", "one",
	"our", "out", "day", "get", "has", "him", "his", "how", "its", "may", "new", "now", "old",
	"see", "two", "way", "who", "boy", "did", "man", "oil", "sit", "try", "use", "she", "put",
	"end", "why", "let", "big", "few", "got", "run", "yes", "any", "ask", "came", "give", "help",
	"just", "know", "like", "look", "make", "most", "over", "some", "take", "than", "them", "very",
	"what", "when", "with", "have", "this", "will", "your", "from", "they", "been", "good", "much",
	"time", "come", "here", "long", "many", "such", "well", "were", "that", "into", "more", "their",
)

func toSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}
