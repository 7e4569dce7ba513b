// Package naxml builds NAXML price-book maintenance documents for
// file-exchange POS integrations.
//
// The document is dropped into a per-store inbox directory and picked up
// asynchronously by the POS system. Only the subset of the schema needed
// for lottery item add/update/delete is modeled here.
package naxml

import (
	"encoding/xml"
	"time"
)

// DefaultVersion is the NAXML schema version written when the store's
// integration record does not pin one.
const DefaultVersion = "3.4"

// Action is the per-item maintenance action.
type Action string

const (
	ActionAddUpdate Action = "AddUpdate"
	ActionDelete    Action = "Delete"
)

// LineItem is one price-book entry, one per ticket UPC.
type LineItem struct {
	ItemCode         string
	Description      string
	ShortDescription string
	DepartmentCode   string
	UnitPrice        float64
	TaxRateCode      string
	IsActive         bool
	Action           Action
}

// Document is a NAXML-MaintenanceRequest price-book document.
type Document struct {
	XMLName xml.Name           `xml:"NAXML-MaintenanceRequest"`
	Version string             `xml:"version,attr"`
	Header  TransmissionHeader `xml:"TransmissionHeader"`
	Items   []ItemMaintenance  `xml:"PricebookMaintenance>ItemMaintenance"`
}

// TransmissionHeader identifies the sending store and document.
type TransmissionHeader struct {
	StoreLocationID string `xml:"StoreLocationID"`
	VendorName      string `xml:"VendorName"`
	DocumentDate    string `xml:"TransmissionDate"`
}

// ItemMaintenance is a single item row in the document.
type ItemMaintenance struct {
	TableAction      Action  `xml:"TableAction"`
	ItemCode         string  `xml:"ItemID>POSCode"`
	Description      string  `xml:"ItemDescription>Description"`
	ShortDescription string  `xml:"ItemDescription>ShortDescription"`
	DepartmentCode   string  `xml:"MerchandiseCode"`
	UnitPrice        float64 `xml:"RegularSellPrice"`
	TaxRateCode      string  `xml:"TaxStrategyID"`
	IsActive         string  `xml:"ActiveFlag"`
}

const vendorName = "LotterySync"

// NewDocument assembles a price-book document for a store.
func NewDocument(storeLocationID, version string, at time.Time, items []LineItem) *Document {
	if version == "" {
		version = DefaultVersion
	}

	doc := &Document{
		Version: version,
		Header: TransmissionHeader{
			StoreLocationID: storeLocationID,
			VendorName:      vendorName,
			DocumentDate:    at.UTC().Format(time.RFC3339),
		},
	}

	for _, it := range items {
		active := "no"
		if it.IsActive {
			active = "yes"
		}
		doc.Items = append(doc.Items, ItemMaintenance{
			TableAction:      it.Action,
			ItemCode:         it.ItemCode,
			Description:      it.Description,
			ShortDescription: it.ShortDescription,
			DepartmentCode:   it.DepartmentCode,
			UnitPrice:        it.UnitPrice,
			TaxRateCode:      it.TaxRateCode,
			IsActive:         active,
		})
	}

	return doc
}

// Marshal renders the document as an XML file body, declaration included.
func (d *Document) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}
