package categories

// Categories is the closed list of establishment type labels.
var Categories = []string{
	"Pizza",
	"Cafe",
	"Bakery",
	"Dessert",
	"Pub",
	"Deli",
	"Fast Food",
	"Restaurant",
	"Mobile",
	"Venue Dining",
	"Other",
}

// CuisineCategories is the closed list of cuisine labels.
var CuisineCategories = []string{
	"Mexican",
	"Chinese",
	"Japanese",
	"Thai",
	"Indian",
	"Mediterranean",
	"Greek",
	"Middle Eastern",
	"Korean",
	"Vietnamese",
	"Italian",
	"BBQ",
	"Seafood",
	"American",
	"Caribbean",
	"Latin American",
	"Other",
}

// NormalizeStrict snaps a label to the closed category list, defaulting to
// "Other".
func NormalizeStrict(cat string) string {
	for _, c := range Categories {
		if cat == c {
			return cat
		}
	}
	return "Other"
}

// NormalizeCuisine snaps a label to the closed cuisine list, defaulting to
// "Other".
func NormalizeCuisine(cat string) string {
	for _, c := range CuisineCategories {
		if cat == c {
			return cat
		}
	}
	return "Other"
}
