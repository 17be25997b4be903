package enrichment

import "github.com/xkilldash9x/socialpilot/api/schemas"

// Contact is the subset of a contact record enrichment may fill.
type Contact struct {
	Company  string   `json:"company,omitempty"`
	Title    string   `json:"title,omitempty"`
	Location string   `json:"location,omitempty"`
	Headline string   `json:"headline,omitempty"`
	Website  string   `json:"website,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// Update is the set of contact fields to write, keyed by field name.
type Update map[string]interface{}

// Merge returns the fields of parsed that may be written to contact. A field is only
// included when the contact's value is empty and the parsed value is not; populated
// fields are never overwritten. Extractions below minConfidence produce no update.
func Merge(contact Contact, parsed *schemas.ParsedProfileData, minConfidence float64) Update {
	update := Update{}
	if parsed == nil || parsed.Confidence < minConfidence {
		return update
	}
	fill := func(key, current, value string) {
		if current == "" && value != "" {
			update[key] = value
		}
	}
	fill("company", contact.Company, parsed.Company)
	fill("title", contact.Title, parsed.Title)
	fill("location", contact.Location, parsed.Location)
	fill("headline", contact.Headline, parsed.Headline)
	fill("website", contact.Website, parsed.Website)
	if len(contact.Skills) == 0 && len(parsed.Skills) > 0 {
		update["skills"] = append([]string(nil), parsed.Skills...)
	}
	return update
}

// Apply writes u into contact and returns the result.
func (u Update) Apply(contact Contact) Contact {
	for key, v := range u {
		switch key {
		case "company":
			contact.Company = v.(string)
		case "title":
			contact.Title = v.(string)
		case "location":
			contact.Location = v.(string)
		case "headline":
			contact.Headline = v.(string)
		case "website":
			contact.Website = v.(string)
		case "skills":
			contact.Skills = v.([]string)
		}
	}
	return contact
}
