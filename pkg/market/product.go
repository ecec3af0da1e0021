package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductType is the canonical kind of offering.
type ProductType string

const (
	ProductFibre          ProductType = "fibre"
	ProductMobileContract ProductType = "mobile_contract"
	ProductLTE            ProductType = "lte"
	Product5G             ProductType = "5g"
	ProductDataOnly       ProductType = "data_only"
	ProductPrepaid        ProductType = "prepaid"
	ProductBundle         ProductType = "bundle"
	ProductUnknown        ProductType = "unknown"
)

// Technology is the access network an offering runs on.
type Technology string

const (
	TechFibre    Technology = "Fibre"
	TechLTE      Technology = "LTE"
	Tech5G       Technology = "5G"
	TechADSL     Technology = "ADSL"
	TechWireless Technology = "Wireless"
	TechUnknown  Technology = "Unknown"
)

// RawProduct is what a scraper pulled off a page, before any parsing.
// It only lives for the duration of a scrape job.
type RawProduct struct {
	ExternalID   string
	Name         string
	MonthlyPrice string
	OnceOffPrice string
	ContractTerm string
	DataBundle   string
	Speed        string
	DeviceName   string
	Technology   string
	URL          string
	Raw          string // JSON object as returned by the extraction service
}

// NormalizedProduct is the canonical shape produced from one RawProduct.
type NormalizedProduct struct {
	ExternalID   string           `json:"external_id,omitempty"`
	Name         string           `json:"name"`
	ProductType  ProductType      `json:"product_type"`
	Technology   Technology       `json:"technology"`
	MonthlyPrice decimal.Decimal  `json:"monthly_price"`
	OnceOffPrice *decimal.Decimal `json:"once_off_price,omitempty"`

	// DataAllowanceGB is nil for uncapped offerings. Zero is a real zero.
	DataAllowanceGB    *int   `json:"data_allowance_gb"`
	ContractTermMonths int    `json:"contract_term_months"`
	DeviceIncluded     bool   `json:"device_included"`
	DeviceName         string `json:"device_name,omitempty"`
	SpeedMbps          *int   `json:"speed_mbps,omitempty"`
	SourceURL          string `json:"source_url,omitempty"`
}

// IdentityKey identifies the same offering across scrapes of one provider.
func (p NormalizedProduct) IdentityKey() string {
	if id := strings.TrimSpace(p.ExternalID); id != "" {
		return "ext:" + strings.ToLower(id)
	}
	return fmt.Sprintf("name:%s|%dm", strings.ToLower(strings.Join(strings.Fields(p.Name), " ")), p.ContractTermMonths)
}

// Uncapped reports whether the offering has no data cap.
func (p NormalizedProduct) Uncapped() bool { return p.DataAllowanceGB == nil }

// Lifecycle tags a CompetitorProduct row as the live offering or a historical one.
type Lifecycle string

const (
	Current    Lifecycle = "current"
	Superseded Lifecycle = "superseded"
)

// CompetitorProduct is the durable record of one competitor offering.
type CompetitorProduct struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	NormalizedProduct
	IdentityKey string    `json:"identity_key"`
	Lifecycle   Lifecycle `json:"lifecycle"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

func (p CompetitorProduct) IsCurrent() bool { return p.Lifecycle == Current }

// PricePoint is one immutable row of a product's price history.
type PricePoint struct {
	CompetitorProductID string          `json:"competitor_product_id"`
	MonthlyPrice        decimal.Decimal `json:"monthly_price"`
	RecordedAt          time.Time       `json:"recorded_at"`
}

// InternalProduct is a row of the operator's own catalog.
type InternalProduct struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	ProductType        ProductType     `json:"product_type"`
	Technology         Technology      `json:"technology"`
	MonthlyPrice       decimal.Decimal `json:"monthly_price"`
	DataAllowanceGB    *int            `json:"data_allowance_gb,omitempty"`
	SpeedMbps          *int            `json:"speed_mbps,omitempty"`
	ContractTermMonths int             `json:"contract_term_months"`
	Subscribers        *int            `json:"subscribers,omitempty"`
}

// IntPtr is a small helper for the nullable integer fields.
func IntPtr(v int) *int { return &v }
