// Package dataset models the published inspection table and its serializations.
package dataset

import "time"

// Inspection is one row of the published dataset. All cell values are kept as
// strings to round-trip exactly through the workbook and CSV forms; Date holds
// the parsed inspection date for sorting and is not serialized directly.
type Inspection struct {
	ISP                    string
	InspectionDate         string
	InspectionReason       string
	Facility               string
	Address                string
	City                   string
	Category               string
	ViolationCode          string
	ViolationDescription   string
	Comment                string
	SpotlightPA            string
	PriorityLevel          string
	RiskLevel              string
	RequirementDescription string
	Latitude               string
	Longitude              string

	Date time.Time `json:"-"`
}

// Header is the authoritative column order of the published table.
func Header() []string {
	return []string{
		"isp",
		"inspection_date",
		"inspection_reason",
		"facility",
		"address",
		"city",
		"category",
		"violation_code",
		"violation_description",
		"comment",
		"spotlight_pa",
		"priority_level",
		"risk_level",
		"requirement_description",
		"Latitude",
		"Longitude",
	}
}

// Row renders the record in Header() order.
func (r Inspection) Row() []string {
	return []string{
		r.ISP,
		r.InspectionDate,
		r.InspectionReason,
		r.Facility,
		r.Address,
		r.City,
		r.Category,
		r.ViolationCode,
		r.ViolationDescription,
		r.Comment,
		r.SpotlightPA,
		r.PriorityLevel,
		r.RiskLevel,
		r.RequirementDescription,
		r.Latitude,
		r.Longitude,
	}
}
