package plan

import (
	"regexp"
	"strings"

	"github.com/Wbcubazo/Multiday-mini/internal/memory"
)

// MaxTopics caps how many topics one plan expands.
const MaxTopics = 2

var quotedRe = regexp.MustCompile(`["“]([^"“”]+)["”]`)

// ExtractTopics picks up to MaxTopics topics from goal text: double-quoted
// substrings first, then comma-separated clauses, then fallback. This is a
// fixed heuristic, not language understanding.
func ExtractTopics(goal, fallback string) []string {
	var topics []string
	for _, m := range quotedRe.FindAllStringSubmatch(goal, -1) {
		topics = appendTopic(topics, m[1])
	}

	if len(topics) == 0 {
		for _, part := range strings.Split(goal, ",") {
			topics = appendTopic(topics, part)
			if len(topics) == MaxTopics {
				break
			}
		}
	}

	if len(topics) == 0 {
		topics = []string{fallback}
	}
	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}
	return topics
}

// TopicFromMemory returns metadata["topic"] of the first snapshot entry that
// sets it, or "". Snapshots come from Recent, so that is the oldest hint in
// the window. Outcome and plan entries never set the key.
func TopicFromMemory(snapshot []memory.Entry) string {
	for _, e := range snapshot {
		if t := e.Topic(); t != "" {
			return t
		}
	}
	return ""
}

func appendTopic(topics []string, t string) []string {
	t = strings.TrimSpace(t)
	if t == "" {
		return topics
	}
	for _, existing := range topics {
		if existing == t {
			return topics
		}
	}
	return append(topics, t)
}
