package recovery

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	"sort"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

// TemplateData is what recovery templates can reference.
type TemplateData struct {
	ProductName  string
	CustomerName string
	Amount       string
	Currency     string
	CheckoutURL  string
	Attempt      int
}

type templateDef struct {
	Attempt int    `yaml:"attempt"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type templateFile struct {
	Templates []templateDef `yaml:"templates"`
}

type compiled struct {
	attempt int
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Templates picks the template with the highest attempt not above the
// current one.
type Templates struct {
	list []compiled // 按attempt升序
}

var defaultTemplates = []templateDef{
	{
		Attempt: 1,
		Subject: `You left {{.ProductName}} behind`,
		Body: `<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>You were about to get <strong>{{.ProductName}}</strong> for {{.Amount}} {{.Currency}}.</p>
<p><a href="{{.CheckoutURL}}">Complete your purchase</a></p>`,
	},
	{
		Attempt: 2,
		Subject: `Still thinking about {{.ProductName}}?`,
		Body: `<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>Your checkout for <strong>{{.ProductName}}</strong> is still waiting.</p>
<p><a href="{{.CheckoutURL}}">Finish checkout</a></p>`,
	},
	{
		Attempt: 3,
		Subject: `Last reminder: {{.ProductName}}`,
		Body: `<p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
<p>This is our last reminder about <strong>{{.ProductName}}</strong> ({{.Amount}} {{.Currency}}).</p>
<p><a href="{{.CheckoutURL}}">Get it now</a></p>`,
	},
}

func DefaultTemplates() *Templates {
	t, err := compile(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplates reads a YAML file of the form
// {templates: [{attempt, subject, body}]}.
func LoadTemplates(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery templates: %w", err)
	}
	return ParseTemplates(raw)
}

func ParseTemplates(raw []byte) (*Templates, error) {
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse recovery templates: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("recovery templates file has no templates")
	}
	return compile(f.Templates)
}

func compile(defs []templateDef) (*Templates, error) {
	t := &Templates{}
	seen := map[int]bool{}
	for _, d := range defs {
		if d.Attempt < 1 {
			return nil, fmt.Errorf("template attempt must be >= 1, got %d", d.Attempt)
		}
		if seen[d.Attempt] {
			return nil, fmt.Errorf("duplicate template for attempt %d", d.Attempt)
		}
		seen[d.Attempt] = true

		name := fmt.Sprintf("attempt-%d", d.Attempt)
		subject, err := texttemplate.New(name).Option("missingkey=error").Parse(d.Subject)
		if err != nil {
			return nil, fmt.Errorf("%s subject: %w", name, err)
		}
		body, err := htmltemplate.New(name).Option("missingkey=error").Parse(d.Body)
		if err != nil {
			return nil, fmt.Errorf("%s body: %w", name, err)
		}
		t.list = append(t.list, compiled{attempt: d.Attempt, subject: subject, body: body})
	}
	sort.Slice(t.list, func(i, j int) bool { return t.list[i].attempt < t.list[j].attempt })
	return t, nil
}

func (t *Templates) pick(attempt int) *compiled {
	var found *compiled
	for i := range t.list {
		if t.list[i].attempt > attempt {
			break
		}
		found = &t.list[i]
	}
	if found == nil && len(t.list) > 0 {
		// 没有<=attempt的模板时用最早的
		found = &t.list[0]
	}
	return found
}

// Render returns subject and HTML body for data.Attempt.
func (t *Templates) Render(data TemplateData) (string, string, error) {
	c := t.pick(data.Attempt)
	if c == nil {
		return "", "", fmt.Errorf("no recovery template configured")
	}
	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}
