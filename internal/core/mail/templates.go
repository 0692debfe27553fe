package mail

import (
	"bytes"
	"embed"
	htmltpl "html/template"
	texttpl "text/template"
)

//go:embed templates/*
var templateFS embed.FS

type ResetVars struct {
	AppName  string
	Username string
	Link     string
	TTL      string
}

type Templates struct {
	resetHTML *htmltpl.Template
	resetTXT  *texttpl.Template
}

func LoadTemplates() (*Templates, error) {
	rh, err := htmltpl.ParseFS(templateFS, "templates/reset_password.html")
	if err != nil {
		return nil, err
	}
	rt, err := texttpl.ParseFS(templateFS, "templates/reset_password.txt")
	if err != nil {
		return nil, err
	}
	return &Templates{resetHTML: rh, resetTXT: rt}, nil
}

func (t *Templates) RenderReset(v ResetVars) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err = t.resetHTML.Execute(&hb, v); err != nil {
		return "", "", err
	}
	if err = t.resetTXT.Execute(&tb, v); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}
