package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"parley/internal/nlu"
	"parley/internal/store"
)

// fallbackBalance answers balance queries when no account row is available.
const fallbackBalance = 5200.50

const fallbackAnswer = "I didn't understand that. You can ask about balance, pricing, or support. How can I help you?"

// canned holds the non-database answers, keyed by intent.
var canned = map[string]string{
	nlu.IntentPricingInfo:    "Our Pro plan is $29/month. Premium plan is $79/month. Enterprise plan is $199/month.",
	nlu.IntentSupportRequest: "You can contact us at help@voicebot.com or call 1-800-123-4567. Our support hours are Monday to Friday, 9 AM to 6 PM EST.",
	nlu.IntentGetHours:       "Our business hours are Monday to Friday, 9 AM to 6 PM EST.",
	nlu.IntentPaymentMethods: "We accept all major credit cards, PayPal, and bank transfers.",
}

// usernamePattern extracts an explicit account reference from a query.
var usernamePattern = regexp.MustCompile(`(?:account|user|username)\s+(\w+)`)

type queryRequest struct {
	Text string `json:"text"`
}

type queryResponse struct {
	ResponseText string `json:"response_text"`
	Intent       string `json:"intent"`
}

// ProcessQuery classifies the query text and builds the reply.
func (h *Handler) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		Error(w, http.StatusBadRequest, "Query text cannot be empty")
		return
	}

	intent := nlu.Detect(text)
	confidence := nlu.Confidence(text, intent)
	slog.Info("processing query", "intent", intent, "confidence", confidence, "chars", len(text))

	var responseText string
	switch intent {
	case nlu.IntentCheckBalance:
		responseText = h.balanceAnswer(r, text)
	case nlu.IntentPricingInfo, nlu.IntentSupportRequest, nlu.IntentGetHours, nlu.IntentPaymentMethods:
		responseText = canned[intent]
	default:
		responseText, intent = h.faqAnswer(r, text)
	}

	JSON(w, http.StatusOK, queryResponse{ResponseText: responseText, Intent: intent})
}

// balanceAnswer resolves the account named in the query, falling back to the
// demo account and then to the canned balance.
func (h *Handler) balanceAnswer(r *http.Request, text string) string {
	username := "demo_user"
	explicit := false
	if match := usernamePattern.FindStringSubmatch(strings.ToLower(text)); match != nil {
		username = match[1]
		explicit = true
	}

	account, err := h.repo.AccountByUsername(r.Context(), username)
	if err != nil {
		slog.Error("account lookup failed", "error", err, "username", username)
		account = nil
	}
	if account == nil {
		return fmt.Sprintf("Your current balance is $%.2f.", fallbackBalance)
	}

	if explicit {
		return fmt.Sprintf("Your current balance for account %s is $%.2f.", account.AccountNumber, account.Balance)
	}
	return fmt.Sprintf("Your current balance is $%.2f.", account.Balance)
}

// faqAnswer scores the FAQ corpus by keyword hits and returns the best match,
// or the fallback answer when nothing matches.
func (h *Handler) faqAnswer(r *http.Request, text string) (string, string) {
	faqs, err := h.repo.ListFAQs(r.Context())
	if err != nil {
		slog.Error("faq lookup failed", "error", err)
		return fallbackAnswer, nlu.IntentFallback
	}

	query := strings.ToLower(text)
	var best *store.FAQ
	maxMatches := 0
	for i := range faqs {
		matches := 0
		for _, keyword := range strings.Split(faqs[i].Keywords, ",") {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(query, keyword) {
				matches++
			}
		}
		if matches > maxMatches {
			maxMatches = matches
			best = &faqs[i]
		}
	}

	if best == nil {
		return fallbackAnswer, nlu.IntentFallback
	}
	return best.Answer, nlu.IntentFAQMatch
}
