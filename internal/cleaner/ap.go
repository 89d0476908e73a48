package cleaner

// apMonths maps full month names to their AP style abbreviations.
var apMonths = map[string]string{
	"January":   "Jan.",
	"February":  "Feb.",
	"March":     "March",
	"April":     "April",
	"May":       "May",
	"June":      "June",
	"July":      "July",
	"August":    "Aug.",
	"September": "Sept.",
	"October":   "Oct.",
	"November":  "Nov.",
	"December":  "Dec.",
}

// apStreetAbbreviations maps title-cased street types to AP abbreviations.
// Applied with word boundaries after the address has been title-cased.
var apStreetAbbreviations = map[string]string{
	"Street":    "St.",
	"Avenue":    "Ave.",
	"Boulevard": "Blvd.",
	"Road":      "Rd.",
	"Drive":     "Dr.",
	"Lane":      "Ln.",
	"Court":     "Ct.",
	"Place":     "Pl.",
	"Terrace":   "Ter.",
	"Highway":   "Hwy.",
	"Parkway":   "Pkwy.",
	"Square":    "Sq.",
	"Circle":    "Cir.",
}

// smallWords are not capitalized in facility names unless they lead.
var smallWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "as": {}, "at": {}, "but": {}, "by": {},
	"for": {}, "if": {}, "in": {}, "nor": {}, "of": {}, "on": {}, "or": {},
	"so": {}, "the": {}, "to": {}, "up": {}, "yet": {},
}
