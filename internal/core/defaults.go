package core

// DefaultCategories is the seed set created for an owner with no categories.
// IDs and owner are assigned by the caller.
func DefaultCategories() []Category {
	seed := []struct{ name, color string }{
		{"Food & Dining", "#ef4444"},
		{"Transportation", "#3b82f6"},
		{"Shopping", "#8b5cf6"},
		{"Bills & Utilities", "#f59e0b"},
		{"Entertainment", "#10b981"},
		{"Healthcare", "#ec4899"},
		{"Groceries", "#06b6d4"},
		{"Personal Care", "#84cc16"},
	}
	out := make([]Category, len(seed))
	for i, s := range seed {
		out[i] = Category{Name: s.name, Color: s.color, IsDefault: true}
	}
	return out
}
