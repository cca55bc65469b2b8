package main

import (
	"embed"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"ago":      agoString,
	"time":     hfTime,
	"gravatar": hfGravatar,
	"html":     hfHTML,
}).ParseFS(templateFS, "templates/*.html"))

type Session struct {
	td  TemplateData
	now time.Time
}

type TemplateData map[string]interface{}

func NewSession(c *Config) *Session {
	return &Session{
		td:  NewTemplateData(c),
		now: time.Now(),
	}
}

func NewTemplateData(c *Config) TemplateData {
	td := make(TemplateData)
	td.Set("Title", c.Title)
	td.Set("Description", c.Description)
	td.Set("Public", false)
	td.Set("IncludeJs", false)
	return td
}

func (s *Session) render(w io.Writer, name string) error {
	s.td.Set("Now", s.now)
	return templates.ExecuteTemplate(w, name, s.td)
}

func (td TemplateData) Set(name string, value interface{}) {
	td[name] = value
}

func (s *Session) Set(name string, value interface{}) {
	s.td.Set(name, value)
}
