package crm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/powerlens/powerlens/internal/domain"
)

// RenderData is what a template sees. Fields come from a lead or a client.
type RenderData struct {
	Name    string
	Email   string
	Company string
	Source  string
	Status  string
}

// Rendered is a filled-in email.
type Rendered struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func parseTemplate(t domain.EmailTemplate) (*template.Template, *template.Template, error) {
	subj, err := template.New(t.Name + ".subject").Option("missingkey=error").Parse(t.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("template %s subject: %w", t.Name, err)
	}
	body, err := template.New(t.Name + ".body").Option("missingkey=error").Parse(t.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("template %s body: %w", t.Name, err)
	}
	return subj, body, nil
}

// AddTemplate stores a template after checking that it parses.
func (s *Service) AddTemplate(t domain.EmailTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if _, _, err := parseTemplate(t); err != nil {
		return err
	}
	return s.db.InsertTemplate(t)
}

// Templates lists stored templates.
func (s *Service) Templates() ([]domain.EmailTemplate, error) {
	return s.db.ListTemplates()
}

// RemoveTemplate deletes a template.
func (s *Service) RemoveTemplate(name string) error {
	return s.db.DeleteTemplate(name)
}

// templateFile is the YAML import layout:
//
//	templates:
//	  - name: followup
//	    subject: "Following up, {{.Name}}"
//	    body: |
//	      ...
type templateFile struct {
	Templates []domain.EmailTemplate `yaml:"templates"`
}

// ImportTemplates reads templates from YAML and upserts them. Both a
// top-level list and a `templates:` mapping are accepted.
func (s *Service) ImportTemplates(r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		var list []domain.EmailTemplate
		if err2 := yaml.Unmarshal(raw, &list); err2 != nil {
			return 0, fmt.Errorf("decode templates yaml: %w", err)
		}
		file.Templates = list
	}

	for _, t := range file.Templates {
		if strings.TrimSpace(t.Name) == "" {
			return 0, errors.New("template without name in import")
		}
		if _, _, err := parseTemplate(t); err != nil {
			return 0, err
		}
	}
	for _, t := range file.Templates {
		if err := s.db.UpsertTemplate(t); err != nil {
			return 0, err
		}
	}
	return len(file.Templates), nil
}

// Render fills a stored template with data.
func (s *Service) Render(name string, data RenderData) (*Rendered, error) {
	t, err := s.db.GetTemplate(name)
	if err != nil {
		return nil, err
	}
	subj, body, err := parseTemplate(*t)
	if err != nil {
		return nil, err
	}

	var sb, bb bytes.Buffer
	if err := subj.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := body.Execute(&bb, data); err != nil {
		return nil, fmt.Errorf("render %s body: %w", name, err)
	}
	return &Rendered{To: data.Email, Subject: sb.String(), Body: bb.String()}, nil
}

// RenderForLead renders a template addressed to a lead.
func (s *Service) RenderForLead(name, leadID string) (*Rendered, error) {
	l, err := s.db.GetLead(leadID)
	if err != nil {
		return nil, err
	}
	return s.Render(name, RenderData{Name: l.Name, Email: l.Email, Source: l.Source, Status: string(l.Status)})
}

// RenderForClient renders a template addressed to a client.
func (s *Service) RenderForClient(name, clientID string) (*Rendered, error) {
	c, err := s.db.GetClient(clientID)
	if err != nil {
		return nil, err
	}
	return s.Render(name, RenderData{Name: c.Name, Email: c.Email, Company: c.Company})
}
