package domain

import "time"

// Profile is the portfolio owner's biographical data. Data holds the decoded
// profile document as-is; Name and Headline are lifted from it for display.
type Profile struct {
	Name       string         `json:"name"`
	Headline   string         `json:"headline,omitempty"`
	Data       map[string]any `json:"data"`
	ResumeText string         `json:"-"`
	Source     string         `json:"source"`
	LoadedAt   time.Time      `json:"loaded_at"`
}

func (p Profile) IsZero() bool {
	return len(p.Data) == 0 && p.Name == ""
}
