package agent

// typeDescriptions maps post type tags to the noun used in prompts.
var typeDescriptions = map[string]string{
	"ingestion":   "news article",
	"correlation": "analysis",
	"axiom":       "philosophical thought",
	"observation": "philosophical thought",
	"reflection":  "art reflection",
	"verse":       "poem",
	"recipe":      "recipe",
	"history":     "history fact",
	"joke":        "joke",
	"joke_reply":  "joke",
	"refinement":  "critique",
	"pop_buzz":    "pop music news",
}

// DescribeType returns a human-readable noun for a post type tag.
// Unknown tags describe themselves.
func DescribeType(tag string) string {
	if tag == "" {
		return "post"
	}
	if d, ok := typeDescriptions[tag]; ok {
		return d
	}
	return tag
}
