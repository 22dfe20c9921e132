package calllog

// CallLog is one completed technician call. JSON names match the browser
// edition so collections and sync codes stay interchangeable.
type CallLog struct {
	// ID is a UUID assigned at save time
	ID string `json:"id"`

	PhoneNumber    string `json:"phoneNumber"`
	CustomerName   string `json:"customerName"`
	TechnicianName string `json:"technicianName"`

	// Timestamp is milliseconds since the Unix epoch
	Timestamp int64 `json:"timestamp"`

	RawNotes string      `json:"rawNotes"`
	Summary  CallSummary `json:"summary"`

	TicketCreated bool `json:"ticketCreated"`

	// TicketNumber is only set when TicketCreated is true
	TicketNumber string `json:"ticketNumber,omitempty"`
}

// CallSummary is the structured report produced by the summarization model.
type CallSummary struct {
	Subject   string    `json:"subject"`
	Issue     string    `json:"issue"`
	Solution  string    `json:"solution"`
	NextSteps string    `json:"nextSteps"`
	Sentiment Sentiment `json:"sentiment"`
}

// Sentiment is the customer mood inferred from the notes.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
	Negative Sentiment = "negative"
)

// Sentiments lists valid values in display order.
var Sentiments = []Sentiment{Positive, Neutral, Negative}

// NormalizeSentiment maps any unknown value to Neutral.
func NormalizeSentiment(s Sentiment) Sentiment {
	switch s {
	case Positive, Neutral, Negative:
		return s
	default:
		return Neutral
	}
}

// Clone returns a shallow copy of logs so callers can't alias internal state.
func Clone(logs []CallLog) []CallLog {
	if logs == nil {
		return []CallLog{}
	}
	out := make([]CallLog, len(logs))
	copy(out, logs)
	return out
}

// MergeNew prepends the incoming logs whose id is not already in local.
// Duplicate ids inside incoming are dropped, first occurrence wins. Local
// entries are never modified. Returns the merged slice and how many were added.
func MergeNew(local, incoming []CallLog) ([]CallLog, int) {
	seen := make(map[string]bool, len(local)+len(incoming))
	for _, l := range local {
		seen[l.ID] = true
	}

	fresh := make([]CallLog, 0, len(incoming))
	for _, l := range incoming {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		fresh = append(fresh, l)
	}

	merged := make([]CallLog, 0, len(fresh)+len(local))
	merged = append(merged, fresh...)
	merged = append(merged, local...)
	return merged, len(fresh)
}
