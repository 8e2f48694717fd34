package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CompanyIDPrefix prefixes every generated company identifier.
const CompanyIDPrefix = "company-"

// NewCompanyID returns a fresh, globally unique company identifier.
func NewCompanyID() string {
	return CompanyIDPrefix + uuid.NewString()
}

// Company is the business entity a collected place belongs to. The website
// enrichment engine writes its results onto this record.
type Company struct {
	CompanyID        string           `json:"company_id"`
	Name             string           `json:"name"`
	City             string           `json:"city"`
	State            string           `json:"state"`
	Niche            string           `json:"niche"`
	Website          string           `json:"website,omitempty"`
	CollectionStatus CollectionStatus `json:"collection_status"`
	CollectionReason string           `json:"collection_reason,omitempty"`
	WebsiteData      json.RawMessage  `json:"website_data,omitempty"`
	WebsiteStatus    EnrichmentStatus `json:"website_scraping_status,omitempty"`
	WebsiteReason    string           `json:"website_scraping_reason,omitempty"`
	WebsiteScrapedAt *time.Time       `json:"website_scraped_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// WebsiteUpdate carries the fields the website engine persists onto a Company.
type WebsiteUpdate struct {
	CompanyID string
	Data      json.RawMessage
	Status    EnrichmentStatus
	Reason    string
	ScrapedAt time.Time
}
