package fill

import "github.com/sells-group/formpilot/internal/textnorm"

var usStates = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "DC": "District of Columbia",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"PR": "Puerto Rico",
	// Canadian provinces.
	"AB": "Alberta", "BC": "British Columbia", "MB": "Manitoba", "NB": "New Brunswick",
	"NL": "Newfoundland and Labrador", "NS": "Nova Scotia", "ON": "Ontario",
	"PE": "Prince Edward Island", "QC": "Quebec", "SK": "Saskatchewan",
}

var countries = map[string]string{
	"US": "United States", "CA": "Canada", "MX": "Mexico", "GB": "United Kingdom",
	"IE": "Ireland", "FR": "France", "DE": "Germany", "ES": "Spain", "IT": "Italy",
	"PT": "Portugal", "NL": "Netherlands", "BE": "Belgium", "CH": "Switzerland",
	"AT": "Austria", "SE": "Sweden", "NO": "Norway", "DK": "Denmark", "FI": "Finland",
	"PL": "Poland", "IN": "India", "CN": "China", "JP": "Japan", "KR": "South Korea",
	"SG": "Singapore", "AU": "Australia", "NZ": "New Zealand", "BR": "Brazil",
	"AR": "Argentina", "IL": "Israel", "ZA": "South Africa", "AE": "United Arab Emirates",
}

// countryAliases folds common alternate spellings onto the ISO code.
var countryAliases = map[string]string{
	"usa": "US", "united states of america": "US", "u s": "US", "u s a": "US", "america": "US",
	"uk": "GB", "great britain": "GB", "england": "GB", "britain": "GB",
	"deutschland": "DE", "espana": "ES", "holland": "NL", "korea": "KR",
}

// regionForms returns every spelling of a state or country value: the
// code, the name and known aliases. Unknown input yields nil.
func regionForms(table map[string]string, aliases map[string]string, v string) []string {
	f := textnorm.Fold(v)
	if f == "" {
		return nil
	}
	for code, name := range table {
		if textnorm.Fold(code) == f || textnorm.Fold(name) == f {
			return formsFor(table, aliases, code)
		}
	}
	if code, ok := aliases[f]; ok {
		return formsFor(table, aliases, code)
	}
	return nil
}

func formsFor(table map[string]string, aliases map[string]string, code string) []string {
	out := []string{code, table[code]}
	for alias, c := range aliases {
		if c == code {
			out = append(out, alias)
		}
	}
	return out
}
