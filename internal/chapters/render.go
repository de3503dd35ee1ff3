package chapters

import (
	"bytes"
	"text/template"
)

var chapterTmpl = template.Must(template.New("chapter").Parse(`---
title: {{ printf "%q" .Title }}
week: {{ .Number }}
---

# {{ .Title }}

Summary: Write a 1–2 sentence summary of the week objectives and deliverables.

## Objectives
- Objective 1
- Objective 2

## Commands & quick start
` + "```bash" + `
# Setup venv
python3 -m venv .venv
source .venv/bin/activate
pip install -r requirements.txt
` + "```" + `

## Code & notebooks
- ` + "`notebooks/`" + ` - link sample notebooks
- ` + "`src/`" + ` - link week code

## Demo (Loom)
- Loom placeholder link

## LinkedIn suggestions
- #{{ .Number }}-1: Short post title
- #{{ .Number }}-2: Short post title
`))

var indexTmpl = template.Must(template.New("index").Parse(`# WordPress Course - Chapters
{{ range . }}
- [Week {{ .Number }}: {{ .Title }}]({{ .FileName }})
{{ end }}`))

// RenderChapter renders the chapter draft for w.
func RenderChapter(w Week) (string, error) {
	var buf bytes.Buffer
	if err := chapterTmpl.Execute(&buf, w); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderIndex renders the index linking every chapter.
func RenderIndex(weeks []Week) (string, error) {
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, weeks); err != nil {
		return "", err
	}
	return buf.String(), nil
}
