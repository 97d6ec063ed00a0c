package llm

import (
	"strings"
)

// maxOCRChars caps how much extracted text we ship to the provider. Receipts
// rarely carry useful content past this point and long prompts cost money.
const maxOCRChars = 3000

// BuildSystemPrompt composes the extraction instructions. The JSON Schema
// itself is attached separately by each provider client.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a receipts parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract the merchant name from business names, logos, headers, or footers.",
		"Extract the receipt date and convert it to ISO-8601 (YYYY-MM-DD).",
		"Extract the receipt total from 'total', 'grand total', 'amount paid', or the largest amount near the bottom.",
		"List every purchased item as its own transaction with its description and price.",
		"Assign each transaction a category; use the provided categorization hints when the description or merchant matches one of their keywords.",
		"Use your judgment to resolve ambiguities in noisy OCR text.",
		"Never output null. If a field is not present on the receipt, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the hint table and the OCR text. hintsJSON is the
// compact category to keyword mapping; its order encodes match priority.
func BuildUserPrompt(text string, hintsJSON []byte) string {
	var b strings.Builder

	if len(hintsJSON) > 0 {
		b.WriteString("Categorization hints (category to keywords, highest priority first):\n")
		b.Write(hintsJSON)
		b.WriteString("\n")
	}

	ocr := strings.TrimSpace(text)
	b.WriteString("\nReceipt text (first ~3k chars):\n")
	if len(ocr) > maxOCRChars {
		b.WriteString(ocr[:maxOCRChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(ocr)
	}

	return b.String()
}
