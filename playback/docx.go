package playback

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

var ErrNotDocx = errors.New("not a docx document")

// docx body, only the parts that carry text and basic formatting
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Props struct {
		Bold   *struct{} `xml:"b"`
		Italic *struct{} `xml:"i"`
	} `xml:"rPr"`
	Content []docxRunContent `xml:",any"`
}

type docxRunContent struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// DocxToHTML converts the text of a .docx file to simple markup.
// Headings become <hN>, other paragraphs <p>, and bold/italic runs are
// wrapped in <strong>/<em>. Everything else is dropped.
func DocxToHTML(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", ErrNotDocx
	}
	rc, err := part.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	var doc docxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", documentPart, err)
	}

	var b strings.Builder
	for _, p := range doc.Body.Paragraphs {
		text := renderRuns(p.Runs)
		tag := paragraphTag(p.Props.Style.Val)
		if text == "" && tag == "p" {
			continue
		}
		fmt.Fprintf(&b, "<%s>%s</%s>\n", tag, text, tag)
	}
	return b.String(), nil
}

func paragraphTag(style string) string {
	style = strings.ToLower(style)
	switch {
	case style == "title":
		return "h1"
	case strings.HasPrefix(style, "heading") && len(style) == len("heading")+1:
		level := style[len(style)-1]
		if level >= '1' && level <= '6' {
			return "h" + string(level)
		}
	}
	return "p"
}

func renderRuns(runs []docxRun) string {
	var b strings.Builder
	for _, r := range runs {
		var text strings.Builder
		for _, c := range r.Content {
			switch c.XMLName.Local {
			case "t":
				text.WriteString(html.EscapeString(c.Text))
			case "tab":
				text.WriteString("\t")
			case "br", "cr":
				text.WriteString("<br>")
			}
		}
		s := text.String()
		if s == "" {
			continue
		}
		if r.Props.Italic != nil {
			s = "<em>" + s + "</em>"
		}
		if r.Props.Bold != nil {
			s = "<strong>" + s + "</strong>"
		}
		b.WriteString(s)
	}
	return b.String()
}
