package model

import (
	"encoding/json"
	"strings"
)

// CollectionTask asks the collection engine to harvest one niche in one city.
type CollectionTask struct {
	City  string `json:"city"`
	State string `json:"state"`
	Niche string `json:"niche"`
}

// Normalize trims every field, upper-cases city and state, and lower-cases
// the niche key.
func (t CollectionTask) Normalize() CollectionTask {
	return CollectionTask{
		City:  strings.ToUpper(strings.TrimSpace(t.City)),
		State: strings.ToUpper(strings.TrimSpace(t.State)),
		Niche: strings.ToLower(strings.TrimSpace(t.Niche)),
	}
}

// Validate returns a ValidationError naming every missing field.
func (t CollectionTask) Validate() error {
	var missing []string
	if strings.TrimSpace(t.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(t.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(t.Niche) == "" {
		missing = append(missing, "niche")
	}
	if len(missing) > 0 {
		return &ValidationError{Field: strings.Join(missing, ","), Reason: "required"}
	}
	return nil
}

// String renders the task for logs.
func (t CollectionTask) String() string {
	return t.Niche + "@" + t.City + "/" + t.State
}

// WebsiteTask asks the website engine to enrich one company from its site.
type WebsiteTask struct {
	CompanyID string `json:"company_id"`
	Website   string `json:"website"`
}

// UnmarshalJSON accepts both snake_case and camelCase company identifiers.
func (t *WebsiteTask) UnmarshalJSON(b []byte) error {
	var raw struct {
		CompanyID  string `json:"company_id"`
		CompanyID2 string `json:"companyId"`
		CompanyID3 string `json:"companyID"`
		Website    string `json:"website"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.CompanyID = firstNonEmpty(raw.CompanyID, raw.CompanyID2, raw.CompanyID3)
	t.Website = raw.Website
	return nil
}

// Validate checks that both fields are present.
func (t WebsiteTask) Validate() error {
	if strings.TrimSpace(t.CompanyID) == "" {
		return &ValidationError{Field: "company_id", Reason: "required"}
	}
	if strings.TrimSpace(t.Website) == "" {
		return &ValidationError{Field: "website", Reason: "required"}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FederalTask asks for a federal registry lookup of a company's CNPJ.
type FederalTask struct {
	CompanyID string `json:"company_id"`
	CNPJ      string `json:"cnpj"`
}
