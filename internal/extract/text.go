package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextLoader reads UTF-8 text formats as a single document.
type TextLoader struct{}

func (TextLoader) Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".csv", ".log", ".json"}
}

func (TextLoader) Load(_ context.Context, name string, data []byte) ([]Document, error) {
	data = trimBOM(data)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid UTF-8 text")
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return []Document{{Text: text, Source: name}}, nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
