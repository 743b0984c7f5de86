package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Office Open XML packages are zip archives of XML parts. Only the text
// runs are needed, so the parts are streamed through encoding/xml.

// DocxLoader extracts the paragraphs of a Word document as one document.
type DocxLoader struct{}

func (DocxLoader) Extensions() []string { return []string{".docx"} }

func (DocxLoader) Load(_ context.Context, name string, data []byte) ([]Document, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}
	part, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, err := paragraphText(part)
	if err != nil {
		return nil, fmt.Errorf("word/document.xml: %w", err)
	}
	return []Document{{Text: text, Source: name}}, nil
}

// PptxLoader emits one document per slide, in slide order.
type PptxLoader struct{}

func (PptxLoader) Extensions() []string { return []string{".pptx"} }

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (PptxLoader) Load(ctx context.Context, name string, data []byte) ([]Document, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, p := range numberedParts(zr, slidePart) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := readPart(zr, p)
		if err != nil {
			return nil, err
		}
		text, err := paragraphText(part)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		docs = append(docs, Document{Text: text, Source: name})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("presentation has no slides")
	}
	return docs, nil
}

// XlsxLoader emits one document per worksheet with tab-separated rows.
type XlsxLoader struct{}

func (XlsxLoader) Extensions() []string { return []string{".xlsx"} }

var sheetPart = regexp.MustCompile(`^xl/worksheets/sheet(\d+)\.xml$`)

func (XlsxLoader) Load(ctx context.Context, name string, data []byte) ([]Document, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	var shared []string
	if sst, err := readPart(zr, "xl/sharedStrings.xml"); err == nil {
		if shared, err = sharedStrings(sst); err != nil {
			return nil, fmt.Errorf("xl/sharedStrings.xml: %w", err)
		}
	}

	var names []string
	if wb, err := readPart(zr, "xl/workbook.xml"); err == nil {
		names, _ = sheetNames(wb)
	}

	parts := numberedParts(zr, sheetPart)
	if len(parts) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}

	var docs []Document
	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := readPart(zr, p)
		if err != nil {
			return nil, err
		}
		rows, err := sheetRows(part, shared)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		var sb strings.Builder
		if len(names) == len(parts) {
			sb.WriteString(names[i])
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(rows, "\n"))
		docs = append(docs, Document{Text: sb.String(), Source: name})
	}
	return docs, nil
}

func openPackage(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid office document: %w", err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("missing part %s", name)
}

// numberedParts returns the parts matching re ordered by their numeric
// suffix, so slide10 sorts after slide9.
func numberedParts(zr *zip.Reader, re *regexp.Regexp) []string {
	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, f := range zr.File {
		m := re.FindStringSubmatch(path.Clean(f.Name))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		found = append(found, numbered{f.Name, n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.name
	}
	return out
}

// paragraphText collects <t> runs, ending a line at each </p>. This covers
// both WordprocessingML (w:p, w:t) and DrawingML (a:p, a:t).
func paragraphText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		sb     strings.Builder
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				line.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimRight(line.String(), " \t"); s != "" {
					sb.WriteString(s)
					sb.WriteByte('\n')
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if line.Len() > 0 {
		sb.WriteString(line.String())
	}
	return strings.TrimSpace(sb.String()), nil
}

// sharedStrings decodes the workbook string table; each <si> may split its
// text over several rich-text runs.
func sharedStrings(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		out    []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				cur.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				out = append(out, cur.String())
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
}

func sheetNames(data []byte) ([]string, error) {
	var wb struct {
		Sheets []struct {
			Name string `xml:"name,attr"`
		} `xml:"sheets>sheet"`
	}
	if err := xml.Unmarshal(data, &wb); err != nil {
		return nil, err
	}
	names := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		names[i] = s.Name
	}
	return names, nil
}

type xlsxCell struct {
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

// sheetRows renders each non-empty row as tab-separated cell values.
func sheetRows(data []byte, shared []string) ([]string, error) {
	var ws struct {
		Rows []struct {
			Cells []xlsxCell `xml:"c"`
		} `xml:"sheetData>row"`
	}
	if err := xml.Unmarshal(data, &ws); err != nil {
		return nil, err
	}

	var rows []string
	for _, r := range ws.Rows {
		vals := make([]string, 0, len(r.Cells))
		empty := true
		for _, c := range r.Cells {
			v := cellValue(c, shared)
			if v != "" {
				empty = false
			}
			vals = append(vals, v)
		}
		if !empty {
			rows = append(rows, strings.TrimRight(strings.Join(vals, "\t"), "\t"))
		}
	}
	return rows, nil
}

func cellValue(c xlsxCell, shared []string) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "inlineStr":
		return c.Inline
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return c.Value
	}
}
