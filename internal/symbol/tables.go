package symbol

// DomesticExchanges is the default exchange set for identifiers without a
// token, and for the US country code.
var DomesticExchanges = []string{"NYSE", "NASDAQ", "OTC", "NYSEAMERICAN"}

// SuffixExchanges maps a ticker suffix (BMW.DE) to exchange names as they
// appear in the listings table.
var SuffixExchanges = map[string][]string{
	"PA":   {"Paris"},
	"L":    {"London"},
	"HM":   {"Hamburg"},
	"BATS": {"BATS"},
	"OTC":  {"OTC"},
	"ARCA": {"NYSEArca"},
	"VI":   {"Vienna"},
	"AT":   {"Athens"},
	"DE":   {"XETRA"},
	"AX":   {"ASX"},
	"V":    {"TSX Venture", "TSXVenture", "Toronto"},
	"AS":   {"Euronext Amsterdam"},
	"SG":   {"Stuttgart"},
	"ST":   {"Stockholm"},
	"MI":   {"Borsa Italiana"},
	"BR":   {"Euronext Brussels"},
	"MC":   {"Madrid"},
	"AM":   {"NYSEAMERICAN"},
	"WA":   {"Warsaw"},
	"OL":   {"Oslo Bors"},
	"LS":   {"Euronext Lisbon"},
	"TO":   {"Toronto"},
	"HE":   {"Helsinki"},
	"CN":   {"CSE"},
	"F":    {"Frankfurt"},
	"IT":   {"Borsa Italiana"},
	"SW":   {"SIX Swiss Exchange"},
	"HK":   {"Hong Kong"},
	"SH":   {"Shanghai"},
	"SZ":   {"Shenzhen"},
	"US":   DomesticExchanges,
}

// CountryExchanges maps the country token of AAPL:US style identifiers
var CountryExchanges = map[string][]string{
	"US": DomesticExchanges,
	"CA": {"Toronto", "TSX Venture", "CSE"},
	"LN": {"London"},
	"GB": {"London"},
	"AU": {"ASX"},
	"DE": {"XETRA", "Frankfurt"},
	"FR": {"Paris"},
	"NL": {"Euronext Amsterdam"},
	"BE": {"Euronext Brussels"},
	"PT": {"Euronext Lisbon"},
	"IT": {"Borsa Italiana"},
	"ES": {"Madrid"},
	"CH": {"SIX Swiss Exchange"},
	"SE": {"Stockholm"},
	"NO": {"Oslo Bors"},
	"FI": {"Helsinki"},
	"PL": {"Warsaw"},
	"AT": {"Vienna"},
	"GR": {"Athens"},
	"HK": {"Hong Kong"},
	"CN": {"Shanghai", "Shenzhen"},
}

// Stooq quotes domestic listings under the bare ticker and under .US.
var Stooq = Scheme{
	Name:         "stooq",
	BareDomestic: true,
	Codes: map[string][]string{
		"NYSE":               {"US"},
		"NASDAQ":             {"US"},
		"OTC":                {"US"},
		"NYSEAMERICAN":       {"US"},
		"NYSEArca":           {"US"},
		"BATS":               {"US"},
		"London":             {"UK"},
		"XETRA":              {"DE"},
		"Frankfurt":          {"DE"},
		"Stuttgart":          {"DE"},
		"Hamburg":            {"DE"},
		"Hong Kong":          {"HK"},
		"Warsaw":             {"PL"},
		"Budapest":           {"HU"},
		"Tokyo":              {"JP"},
		"Toronto":            {"CA"},
		"TSX Venture":        {"CA"},
		"TSXVenture":         {"CA"},
		"Paris":              {"FR"},
		"Euronext Amsterdam": {"NL"},
	},
}

// EODHD splits several markets across more than one exchange code, e.g.
// London main market and the international order book.
var EODHD = Scheme{
	Name: "eodhd",
	Codes: map[string][]string{
		"NYSE":               {"US"},
		"NASDAQ":             {"US"},
		"OTC":                {"US"},
		"NYSEAMERICAN":       {"US"},
		"NYSEArca":           {"US"},
		"BATS":               {"US"},
		"Toronto":            {"TO"},
		"TSX Venture":        {"V"},
		"TSXVenture":         {"V"},
		"CSE":                {"CN"},
		"London":             {"LSE", "IL"},
		"XETRA":              {"XETRA", "F"},
		"Frankfurt":          {"F"},
		"Stuttgart":          {"STU"},
		"Hamburg":            {"HM"},
		"Paris":              {"PA"},
		"Euronext Amsterdam": {"AS"},
		"Euronext Brussels":  {"BR"},
		"Euronext Lisbon":    {"LS"},
		"Borsa Italiana":     {"MI"},
		"Madrid":             {"MC"},
		"SIX Swiss Exchange": {"SW"},
		"Stockholm":          {"ST"},
		"Oslo Bors":          {"OL"},
		"Helsinki":           {"HE"},
		"Warsaw":             {"WAR"},
		"Vienna":             {"VI"},
		"Athens":             {"AT"},
		"ASX":                {"AU"},
		"Hong Kong":          {"HK"},
		"Shanghai":           {"SHG"},
		"Shenzhen":           {"SHE"},
	},
}

// Yahoo uses the bare ticker for US listings and SS for Shanghai.
var Yahoo = Scheme{
	Name: "yahoo",
	Codes: map[string][]string{
		"NYSE":               {""},
		"NASDAQ":             {""},
		"OTC":                {""},
		"NYSEAMERICAN":       {""},
		"NYSEArca":           {""},
		"BATS":               {""},
		"Toronto":            {"TO"},
		"TSX Venture":        {"V"},
		"TSXVenture":         {"V"},
		"CSE":                {"CN"},
		"London":             {"L", "IL"},
		"XETRA":              {"DE"},
		"Frankfurt":          {"F"},
		"Stuttgart":          {"SG"},
		"Hamburg":            {"HM"},
		"Paris":              {"PA"},
		"Euronext Amsterdam": {"AS"},
		"Euronext Brussels":  {"BR"},
		"Euronext Lisbon":    {"LS"},
		"Borsa Italiana":     {"MI"},
		"Madrid":             {"MC"},
		"SIX Swiss Exchange": {"SW"},
		"Stockholm":          {"ST"},
		"Oslo Bors":          {"OL"},
		"Helsinki":           {"HE"},
		"Warsaw":             {"WA"},
		"Vienna":             {"VI"},
		"Athens":             {"AT"},
		"ASX":                {"AX"},
		"Hong Kong":          {"HK"},
		"Shanghai":           {"SS"},
		"Shenzhen":           {"SZ"},
	},
}

// SchemeByName returns the built-in scheme for a price source name
func SchemeByName(name string) (Scheme, bool) {
	switch name {
	case "stooq", "stooq_local":
		return Stooq, true
	case "eodhd":
		return EODHD, true
	case "yahoo":
		return Yahoo, true
	}
	return Scheme{}, false
}
