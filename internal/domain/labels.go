package domain

// Priority labels.
const (
	PriorityP0      = "P0"
	PriorityP1      = "P1"
	PriorityP2      = "P2"
	PriorityUnknown = "Unknown"
)

// PriorityCandidates are the zero-shot labels the priority model scores.
var PriorityCandidates = []string{"Urgent", "Medium Urgency", "Not Urgent"}

var priorityMap = map[string]string{
	"Urgent":         PriorityP0,
	"Medium Urgency": PriorityP1,
	"Not Urgent":     PriorityP2,
}

// MapPriority converts a model label to P0/P1/P2, or Unknown.
func MapPriority(label string) string {
	if p, ok := priorityMap[label]; ok {
		return p
	}
	return PriorityUnknown
}

// Topics is the closed topic label set, in the order offered to the model.
var Topics = []string{
	"How-to",
	"Product",
	"Connector",
	"Lineage",
	"API/SDK",
	"SSO",
	"Glossary",
	"Best practices",
	"Sensitive data",
	"Integrations",
	"Errors",
	TopicOthers,
}

// TopicOthers is also the topic for labels outside the set.
const TopicOthers = "Others"

// DirectAnswerTopics are answered in chat; other topics are routed.
var DirectAnswerTopics = []string{"How-to", "Product", "Best practices", "API/SDK", "SSO"}

// Sentiment labels.
const (
	SentimentConfused   = "Confused"
	SentimentCurious    = "Curious"
	SentimentAnxious    = "Anxious"
	SentimentHopeful    = "Hopeful"
	SentimentFrustrated = "Frustrated"
	SentimentUrgent     = "Urgent"
)

var Sentiments = []string{
	SentimentConfused,
	SentimentCurious,
	SentimentAnxious,
	SentimentHopeful,
	SentimentFrustrated,
	SentimentUrgent,
}

func IsSentiment(label string) bool {
	for _, s := range Sentiments {
		if s == label {
			return true
		}
	}
	return false
}

func IsTopic(label string) bool {
	for _, t := range Topics {
		if t == label {
			return true
		}
	}
	return false
}
