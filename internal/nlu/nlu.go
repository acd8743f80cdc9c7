// Package nlu categorizes user queries by keyword matching. Rules are
// evaluated in priority order; the first intent with any keyword hit wins.
package nlu

import "strings"

const (
	IntentCheckBalance   = "check_balance"
	IntentPricingInfo    = "pricing_info"
	IntentSupportRequest = "support_request"
	IntentGetHours       = "get_hours"
	IntentPaymentMethods = "get_payment_methods"
	IntentFAQMatch       = "faq_match"
	IntentFallback       = "fallback"
)

type rule struct {
	intent   string
	keywords []string
}

var rules = []rule{
	{
		intent: IntentCheckBalance,
		keywords: []string{
			"balance", "money", "account balance", "how much do i have",
			"check balance", "my balance", "account", "funds", "available",
		},
	},
	{
		intent: IntentPricingInfo,
		keywords: []string{
			"price", "pricing", "cost", "how much", "plan", "subscription",
			"fee", "charge", "rate", "pricing info", "what does it cost",
		},
	},
	{
		intent: IntentSupportRequest,
		keywords: []string{
			"support", "help", "contact", "assistance", "customer service",
			"talk to someone", "speak with", "get help", "need help",
			"problem", "issue", "question",
		},
	},
	{
		intent: IntentGetHours,
		keywords: []string{
			"hours", "open", "when", "time", "available", "business hours",
			"operating hours", "working hours",
		},
	},
	{
		intent: IntentPaymentMethods,
		keywords: []string{
			"payment", "pay", "method", "card", "credit", "debit",
			"how to pay", "payment options",
		},
	},
}

// confidenceKeywords is the reduced keyword set used for scoring.
var confidenceKeywords = map[string][]string{
	IntentCheckBalance:   {"balance", "money", "account", "funds"},
	IntentPricingInfo:    {"price", "cost", "pricing", "plan"},
	IntentSupportRequest: {"support", "help", "contact", "assistance"},
	IntentGetHours:       {"hours", "open", "time", "available"},
	IntentPaymentMethods: {"payment", "pay", "method", "card"},
}

// Detect returns the intent for a query, or IntentFallback when nothing
// matches.
func Detect(text string) string {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return IntentFallback
	}

	for _, r := range rules {
		for _, keyword := range r.keywords {
			if strings.Contains(query, keyword) {
				return r.intent
			}
		}
	}
	return IntentFallback
}

// Confidence scores a detected intent in [0, 1] from keyword hit density.
func Confidence(text, intent string) float64 {
	if intent == IntentFallback {
		return 0
	}
	keywords, ok := confidenceKeywords[intent]
	if !ok {
		return 0
	}

	query := strings.ToLower(text)
	matches := 0
	for _, keyword := range keywords {
		if strings.Contains(query, keyword) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	score := float64(matches) / float64(len(keywords)) * 2
	if score > 1 {
		return 1
	}
	return score
}
