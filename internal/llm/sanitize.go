package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// NormalizeAndSanitizeJSON
// - Renames known synonyms (merchant -> merchant_name, total -> receipt_total, items -> transactions)
// - Drops null/empty optionals, including the literal string "null" models like to emit for dates
// - Coerces numeric strings -> numbers for money fields
// - Removes unknown keys (strict additionalProperties = false friendliness)
// Returns the cleaned document plus the list of changes for logging. Required
// fields are never dropped; a broken required field is left in place so schema
// validation fails and the attempt is retried.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	changed := make([]string, 0, 8)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite an existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			changed = append(changed, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema's key set
	rename("merchant", "merchant_name")
	rename("vendor", "merchant_name")
	rename("date", "receipt_date")
	rename("purchase_date", "receipt_date")
	rename("total", "receipt_total")
	rename("grand_total", "receipt_total")
	rename("total_amount", "receipt_total")
	rename("items", "transactions")
	rename("line_items", "transactions")

	// 2) optional strings: trim, drop null/empty/"null"
	for _, k := range []string{"merchant_name", "receipt_date"} {
		if tag, drop := cleanOptionalString(m, k); drop {
			changed = append(changed, k+tag)
		}
	}

	// 3) receipt_total is optional money: coerce or drop
	if tag, note := coerceMoney(m, "receipt_total", false); note {
		changed = append(changed, "receipt_total"+tag)
	}

	// 4) per-transaction cleanup
	if txs, ok := m["transactions"].([]any); ok {
		for i, el := range txs {
			tx, ok := el.(map[string]any)
			if !ok {
				continue // leave for validation to reject
			}
			prefix := fmt.Sprintf("transactions[%d].", i)
			txRename := func(from, to string) {
				if v, ok := tx[from]; ok {
					if _, exists := tx[to]; !exists {
						tx[to] = v
					}
					delete(tx, from)
					changed = append(changed, prefix+from+"->"+to)
				}
			}
			txRename("item", "description")
			txRename("name", "description")
			txRename("price", "amount")
			txRename("cost", "amount")

			if s, ok := tx["description"].(string); ok {
				tx["description"] = strings.TrimSpace(s)
			}
			// amount is required: coerce numeric strings but never drop
			if tag, note := coerceMoney(tx, "amount", true); note {
				changed = append(changed, prefix+"amount"+tag)
			}
			for _, k := range []string{"date", "category"} {
				if tag, drop := cleanOptionalString(tx, k); drop {
					changed = append(changed, prefix+k+tag)
				}
			}
			for k := range tx {
				if !allowedTxKeys[k] {
					delete(tx, k)
					changed = append(changed, prefix+k+"(unknown)")
				}
			}
		}
	}

	// 5) remove unknown top-level keys
	for k := range m {
		if !allowedKeys[k] {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "changed", changed)
	}
	return out, changed, nil
}

var allowedKeys = map[string]bool{
	"merchant_name": true, "receipt_date": true, "receipt_total": true, "transactions": true,
}

var allowedTxKeys = map[string]bool{
	"description": true, "amount": true, "date": true, "category": true,
}

// cleanOptionalString trims m[k] and deletes it when null, empty, or the
// literal string "null". Returns a change tag and whether anything changed.
func cleanOptionalString(m map[string]any, k string) (string, bool) {
	v, ok := m[k]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		delete(m, k)
		return "(null)", true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			return "(empty)", true
		}
		m[k] = s
		return "", false
	default:
		return "", false
	}
}

// coerceMoney normalizes m[k] to a JSON number. Strings like "12.50" or
// "$12.50" are parsed; when optional, anything unparsable is dropped so the
// rest of the document can still validate.
func coerceMoney(m map[string]any, k string, required bool) (string, bool) {
	v, ok := m[k]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case float64:
		return "", false
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "$"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			m[k] = f
			return "(coerced)", true
		}
		if required {
			return "", false
		}
		delete(m, k)
		return "(type)", true
	case nil:
		if required {
			return "", false
		}
		delete(m, k)
		return "(null)", true
	default:
		if required {
			return "", false
		}
		delete(m, k)
		return "(type)", true
	}
}
