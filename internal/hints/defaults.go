package hints

// Defaults returns the seed categorization vocabulary. Order matters: Suggest
// scans categories in this order and the first keyword hit wins.
func Defaults() []CategoryHints {
	return []CategoryHints{
		{Category: "Food", Keywords: []string{"restaurant", "café", "grocery", "meal", "lunch", "dinner", "breakfast"}},
		{Category: "Travel", Keywords: []string{"airline", "flight", "taxi", "uber", "lyft", "train", "bus", "rental car"}},
		{Category: "Office Supplies", Keywords: []string{"paper", "pen", "ink", "toner", "stapler", "office"}},
		{Category: "Accommodation", Keywords: []string{"hotel", "motel", "airbnb", "lodging", "inn"}},
		{Category: "Utilities", Keywords: []string{"electric", "water", "gas", "internet", "phone", "mobile"}},
		{Category: "Entertainment", Keywords: []string{"movie", "theatre", "concert", "show", "game"}},
	}
}
