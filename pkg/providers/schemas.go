package providers

import (
	"context"
	"strings"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/tidwall/gjson"
)

func stringProps(names ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(names))
	for _, n := range names {
		props[n] = map[string]interface{}{"type": "string"}
	}
	return props
}

func listSchema(key string, required []string, fields ...string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			key: map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":       "object",
					"properties": stringProps(fields...),
					"required":   required,
				},
			},
		},
		"required": []string{key},
	}
}

// Extraction schemas shared by the scrapers.
var (
	MobileDealsSchema = listSchema("products",
		[]string{"device_name", "monthly_price"},
		"device_name", "monthly_price", "once_off_price", "contract_term",
		"data_bundle", "technology", "product_url", "sku")

	FibrePackagesSchema = listSchema("packages",
		[]string{"package_name", "monthly_price"},
		"package_name", "download_speed", "upload_speed", "monthly_price",
		"once_off_price", "contract_term", "features", "product_url")

	DataOnlySchema = listSchema("deals",
		[]string{"deal_name", "monthly_price"},
		"deal_name", "data_amount", "monthly_price", "contract_term",
		"technology", "validity", "product_url")
)

const (
	MobileDealsPrompt   = "Extract every device contract deal on the page with its monthly price, once-off price, contract term and data bundle."
	FibrePackagesPrompt = "Extract every fibre internet package on the page with its download and upload speed, monthly price and contract term."
	DataOnlyPrompt      = "Extract every data-only or SIM-only deal on the page with its data amount, monthly price, contract term and network technology."
)

// items returns the array under key, or data itself when the service
// answered with a bare array.
func items(data gjson.Result, key string) []gjson.Result {
	if data.IsArray() {
		return data.Array()
	}
	return data.Get(key).Array()
}

func str(r gjson.Result, path string) string {
	return strings.TrimSpace(r.Get(path).String())
}

// ParseMobileDeals reads MobileDealsSchema output.
func ParseMobileDeals(data gjson.Result) []market.RawProduct {
	var out []market.RawProduct
	for _, it := range items(data, "products") {
		device := str(it, "device_name")
		name := device
		if bundle := str(it, "data_bundle"); bundle != "" && device != "" {
			name = device + " " + bundle
		}
		out = append(out, market.RawProduct{
			ExternalID:   str(it, "sku"),
			Name:         name,
			MonthlyPrice: str(it, "monthly_price"),
			OnceOffPrice: str(it, "once_off_price"),
			ContractTerm: str(it, "contract_term"),
			DataBundle:   str(it, "data_bundle"),
			DeviceName:   device,
			Technology:   str(it, "technology"),
			URL:          str(it, "product_url"),
			Raw:          it.Raw,
		})
	}
	return out
}

// ParseFibrePackages reads FibrePackagesSchema output.
func ParseFibrePackages(data gjson.Result) []market.RawProduct {
	var out []market.RawProduct
	for _, it := range items(data, "packages") {
		out = append(out, market.RawProduct{
			Name:         str(it, "package_name"),
			MonthlyPrice: str(it, "monthly_price"),
			OnceOffPrice: str(it, "once_off_price"),
			ContractTerm: str(it, "contract_term"),
			Speed:        str(it, "download_speed"),
			Technology:   "Fibre",
			URL:          str(it, "product_url"),
			Raw:          it.Raw,
		})
	}
	return out
}

// ParseDataDeals reads DataOnlySchema output.
func ParseDataDeals(data gjson.Result) []market.RawProduct {
	var out []market.RawProduct
	for _, it := range items(data, "deals") {
		out = append(out, market.RawProduct{
			Name:         str(it, "deal_name"),
			MonthlyPrice: str(it, "monthly_price"),
			ContractTerm: str(it, "contract_term"),
			DataBundle:   str(it, "data_amount"),
			Technology:   str(it, "technology"),
			URL:          str(it, "product_url"),
			Raw:          it.Raw,
		})
	}
	return out
}

// ExtractWith runs one schema extraction on url and parses the result.
func ExtractWith(ctx context.Context, ex Extractor, url string, schema map[string]interface{}, prompt string, parse func(gjson.Result) []market.RawProduct) ([]market.RawProduct, error) {
	res, err := ex.ExtractData(ctx, url, schema, prompt)
	if err != nil {
		return nil, err
	}
	products := parse(res.Data)
	for i := range products {
		if products[i].URL == "" {
			products[i].URL = url
		}
	}
	return products, nil
}
