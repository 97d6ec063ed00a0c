package llm

// BuildReceiptJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass it to the completion provider as an output constraint and also use it
// locally to validate each reply before decoding.
func BuildReceiptJSONSchema() map[string]any {
	txProps := map[string]any{
		"description": map[string]any{"type": "string", "minLength": 1},
		"amount":      map[string]any{"type": "number"},
		"date":        dateProp(),
		"category":    map[string]any{"type": "string"},
	}

	props := map[string]any{
		"merchant_name": map[string]any{"type": "string", "minLength": 1},
		"receipt_date":  dateProp(),
		"receipt_total": map[string]any{"type": "number"},
		"transactions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           txProps,
				"required":             []string{"description", "amount"},
			},
		},
	}

	// merchant/date/total are optional: a crumpled thermal receipt often loses
	// them, and the enhancement stage backfills what it can.
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"transactions"},
	}
}

func dateProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d{4}-\d{2}-\d{2}$`,
	}
}
