// Package normalize turns raw scraped records into canonical products.
// Every function here is pure.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

// NormalizationError reports the field that could not be parsed.
type NormalizationError struct {
	Field    string
	RawValue string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s %q: %s", e.Field, e.RawValue, e.Reason)
}

func fieldError(field, raw, reason string) *NormalizationError {
	return &NormalizationError{Field: field, RawValue: raw, Reason: reason}
}

// Normalize parses raw into a NormalizedProduct using the provider profile.
func Normalize(raw market.RawProduct, provider market.Provider, profile Profile) (market.NormalizedProduct, error) {
	profile = profile.withDefaults()

	name := collapse(raw.Name)
	if name == "" {
		name = collapse(raw.DeviceName)
	}
	if name == "" {
		return market.NormalizedProduct{}, fieldError("name", raw.Name, "missing product name")
	}

	monthly, err := ParsePrice(raw.MonthlyPrice, profile)
	if err != nil {
		return market.NormalizedProduct{}, asFieldError("monthly_price", raw.MonthlyPrice, err)
	}
	if !monthly.IsPositive() {
		return market.NormalizedProduct{}, fieldError("monthly_price", raw.MonthlyPrice, "price must be positive")
	}

	var onceOff *decimal.Decimal
	if strings.TrimSpace(raw.OnceOffPrice) != "" {
		v, err := ParsePrice(raw.OnceOffPrice, profile)
		if err != nil {
			return market.NormalizedProduct{}, asFieldError("once_off_price", raw.OnceOffPrice, err)
		}
		onceOff = &v
	}

	data, err := ParseDataAllowance(raw.DataBundle)
	if err != nil {
		return market.NormalizedProduct{}, asFieldError("data_bundle", raw.DataBundle, err)
	}

	term, err := ParseContractTerm(raw.ContractTerm)
	if err != nil {
		return market.NormalizedProduct{}, asFieldError("contract_term", raw.ContractTerm, err)
	}

	speedSource := raw.Speed
	if strings.TrimSpace(speedSource) == "" {
		speedSource = name
		if _, ok := findSpeed(speedSource); !ok {
			speedSource = ""
		}
	}
	speed, err := ParseSpeed(speedSource)
	if err != nil {
		return market.NormalizedProduct{}, asFieldError("speed", raw.Speed, err)
	}

	device := collapse(raw.DeviceName)
	tech := DetectTechnology(raw.Technology, name, profile)
	if tech == market.TechUnknown {
		tech = technologyForKind(provider.Kind)
	}

	return market.NormalizedProduct{
		ExternalID:         strings.TrimSpace(raw.ExternalID),
		Name:               name,
		ProductType:        DetectProductType(name, device != "", profile),
		Technology:         tech,
		MonthlyPrice:       monthly,
		OnceOffPrice:       onceOff,
		DataAllowanceGB:    data,
		ContractTermMonths: term,
		DeviceIncluded:     device != "",
		DeviceName:         device,
		SpeedMbps:          speed,
		SourceURL:          strings.TrimSpace(raw.URL),
	}, nil
}

func asFieldError(field, raw string, err error) *NormalizationError {
	if ne, ok := err.(*NormalizationError); ok {
		ne.Field = field
		return ne
	}
	return fieldError(field, raw, err.Error())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	pricePointRe = regexp.MustCompile(`(\d{1,3}(?:[ ,\x{00a0}]\d{3})+|\d+)(?:\.\d+)?`)
	priceCommaRe = regexp.MustCompile(`(\d{1,3}(?:[ .\x{00a0}]\d{3})+|\d+)(?:,\d+)?`)
	// quantityRe matches a unit right after a digit group, as in the "100GB"
	// of "R149 100GB". Such a group is a quantity, not part of the price.
	quantityRe = regexp.MustCompile(`(?i)^\s*(?:[kmgt]b(?:ps)?|gigs?|mins?|minutes|sms|secs?|seconds)\b`)
)

// ParsePrice reads the first amount in s, e.g. "R1 299.00", "From R299 pm",
// "R1,299/month". The result is rounded to cents.
func ParsePrice(s string, profile Profile) (decimal.Decimal, error) {
	profile = profile.withDefaults()
	in := strings.TrimSpace(s)
	if in == "" {
		return decimal.Zero, fieldError("price", s, "missing price")
	}
	if sym := profile.CurrencySymbol; sym != "" {
		in = strings.ReplaceAll(in, sym, " ")
	}

	re, thousands := pricePointRe, ", \u00a0"
	if profile.DecimalSeparator == "," {
		re, thousands = priceCommaRe, ". \u00a0"
	}
	loc := re.FindStringIndex(in)
	if loc == nil {
		return decimal.Zero, fieldError("price", s, "no amount found")
	}
	m, rest := in[loc[0]:loc[1]], in[loc[1]:]
	for quantityRe.MatchString(rest) {
		cut := strings.LastIndexAny(m, " \u00a0")
		if cut < 0 {
			break
		}
		m, rest = m[:cut], m[cut:]+rest
	}
	m = strings.Map(func(r rune) rune {
		if strings.ContainsRune(thousands, r) {
			return -1
		}
		return r
	}, m)
	if profile.DecimalSeparator == "," {
		m = strings.Replace(m, ",", ".", 1)
	}

	v, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, fieldError("price", s, err.Error())
	}
	return v.Round(2), nil
}

var (
	dataRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(tb|gb|mb)\b`)
	uncappedRe = regexp.MustCompile(`\b(uncapped|unlimited|unmetered)\b`)
)

// ParseDataAllowance returns the allowance in GB, nil for uncapped or
// unspecified offerings.
func ParseDataAllowance(s string) (*int, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" || uncappedRe.MatchString(in) {
		return nil, nil
	}
	m := dataRe.FindStringSubmatch(in)
	if m == nil {
		return nil, fieldError("data", s, "no data amount found")
	}
	amount, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return nil, fieldError("data", s, err.Error())
	}
	switch m[2] {
	case "tb":
		amount *= 1024
	case "mb":
		amount /= 1024
	}
	gb := int(math.Round(amount))
	if gb == 0 && amount > 0 {
		gb = 1
	}
	return &gb, nil
}

var (
	noContractRe = regexp.MustCompile(`\b(month[- ]to[- ]month|prepaid|pre-paid|no contract|contract[- ]free|sim only)\b`)
	monthsRe     = regexp.MustCompile(`(\d+)\s*-?\s*(months?|mths?|mo|m)\b`)
	yearsRe      = regexp.MustCompile(`(\d+)\s*-?\s*(years?|yrs?)\b`)
	bareNumberRe = regexp.MustCompile(`^\d+$`)
)

// ParseContractTerm returns the term in months, zero for month-to-month.
func ParseContractTerm(s string) (int, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" || noContractRe.MatchString(in) {
		return 0, nil
	}
	if m := monthsRe.FindStringSubmatch(in); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, nil
	}
	if m := yearsRe.FindStringSubmatch(in); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n * 12, nil
	}
	if bareNumberRe.MatchString(in) {
		n, err := strconv.Atoi(in)
		if err != nil {
			return 0, fieldError("contract", s, err.Error())
		}
		return n, nil
	}
	return 0, fieldError("contract", s, "unrecognised contract term")
}

var speedRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(?:\s*/\s*\d+(?:\.\d+)?)?\s*(gbps|mbps|gb/s|mb/s)\b`)

func findSpeed(s string) (int, bool) {
	m := speedRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.HasPrefix(m[2], "g") {
		v *= 1000
	}
	return int(math.Round(v)), true
}

// ParseSpeed returns the download speed in Mbps, nil when s is empty.
// "100/50Mbps" reads the download figure.
func ParseSpeed(s string) (*int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, ok := findSpeed(s)
	if !ok {
		return nil, fieldError("speed", s, "no speed found")
	}
	return &v, nil
}

// words lowercases s and pads its tokens with spaces so that phrase lookups
// only match whole words.
func words(s string) string {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return " " + strings.Join(f, " ") + " "
}

func hasWord(haystack, phrase string) bool {
	return strings.Contains(haystack, " "+phrase+" ")
}

func techIn(text string, profile Profile) (market.Technology, bool) {
	w := words(text)
	for _, tech := range techPrecedence {
		for _, syn := range profile.Synonyms[tech] {
			if hasWord(w, strings.ToLower(syn)) {
				return tech, true
			}
		}
	}
	return "", false
}

// DetectTechnology checks the technology hint first, then the product name.
func DetectTechnology(hint, name string, profile Profile) market.Technology {
	profile = profile.withDefaults()
	if t, ok := techIn(hint, profile); ok {
		return t
	}
	if t, ok := techIn(name, profile); ok {
		return t
	}
	return profile.DefaultTechnology
}

func technologyForKind(kind string) market.Technology {
	switch strings.ToLower(kind) {
	case "fibre":
		return market.TechFibre
	case "wireless":
		return market.TechLTE
	}
	return market.TechUnknown
}

// DetectProductType classifies an offering from its name.
func DetectProductType(name string, hasDevice bool, profile Profile) market.ProductType {
	profile = profile.withDefaults()
	w := words(name)
	switch {
	case hasWord(w, "fibre") || hasWord(w, "fiber"):
		return market.ProductFibre
	case hasWord(w, "data only") || hasWord(w, "sim only"):
		return market.ProductDataOnly
	case hasWord(w, "prepaid") || hasWord(w, "pre paid"):
		return market.ProductPrepaid
	case hasWord(w, "5g"):
		if hasDevice {
			return market.ProductMobileContract
		}
		return market.Product5G
	case hasWord(w, "lte") || hasWord(w, "4g") || hasWord(w, "wireless"):
		if hasDevice {
			return market.ProductMobileContract
		}
		return market.ProductLTE
	case hasDevice:
		return market.ProductMobileContract
	}
	return profile.DefaultProductType
}
