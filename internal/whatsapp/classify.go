package whatsapp

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the coarse classification of an inbound message.
type Intent string

const (
	IntentExpense      Intent = "expense"
	IntentGeneralQuery Intent = "general_query"
	IntentUnknown      Intent = "unknown"
)

// Classification is the output of the keyword heuristics. This is explicitly
// heuristic text understanding; false positives and negatives are accepted.
type Classification struct {
	Intent      Intent
	Amount      float64
	Description string
	Category    string
}

var amountPattern = regexp.MustCompile(`\$\s*(\d+(?:\.\d{1,2})?)`)

var expenseKeywords = []string{
	"spent", "paid", "bought", "purchased", "purchase", "cost", "expense", "bill",
}

var queryKeywords = []string{
	"how", "what", "when", "where", "why", "who", "can i", "can you", "help",
}

// Ordered so classification is deterministic when a message matches more
// than one category.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"food", []string{"lunch", "dinner", "breakfast", "food", "meal", "restaurant", "cafe", "coffee", "groceries"}},
	{"travel", []string{"taxi", "uber", "flight", "hotel", "train", "travel", "gas", "fuel", "parking"}},
	{"office", []string{"office", "supplies", "paper", "printer", "stationery", "desk"}},
	{"marketing", []string{"marketing", "advertising", "ads", "promotion", "campaign"}},
}

// Classify applies keyword matching to one inbound text message.
func Classify(text string) Classification {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Classification{Intent: IntentUnknown}
	}

	if match := amountPattern.FindStringSubmatch(text); match != nil && hasAny(lower, expenseKeywords) {
		amount, err := strconv.ParseFloat(match[1], 64)
		if err == nil && amount > 0 {
			return Classification{
				Intent:      IntentExpense,
				Amount:      amount,
				Description: describeExpense(text),
				Category:    detectCategory(lower),
			}
		}
	}

	if strings.Contains(lower, "?") || hasAny(lower, queryKeywords) {
		return Classification{Intent: IntentGeneralQuery}
	}

	return Classification{Intent: IntentUnknown}
}

func hasAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func detectCategory(lower string) string {
	for _, c := range categoryKeywords {
		if hasAny(lower, c.keywords) {
			return c.name
		}
	}
	return "other"
}

// describeExpense strips the amount token so the description reads as what
// the money was spent on. Falls back to the full message.
func describeExpense(text string) string {
	desc := amountPattern.ReplaceAllString(text, "")
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		return strings.TrimSpace(text)
	}
	return desc
}
