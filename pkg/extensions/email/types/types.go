package types

// Message is a rendered transactional email.
type Message struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	ToName  string            `json:"to_name,omitempty"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}
