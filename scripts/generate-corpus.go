//go:build ignore

// Command generate-corpus writes a synthetic document set for ingestion and
// retrieval testing. Each document carries one planted fact; questions.json
// lists a question per fact and the file that answers it.
//
// Usage: go run scripts/generate-corpus.go -docs 200 -output testdata/corpus
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	numDocs    = flag.Int("docs", 200, "Number of documents to generate")
	outputDir  = flag.String("output", "testdata/corpus", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	paragraphs = flag.Int("paragraphs", 12, "Filler paragraphs per document")
)

var subjects = []string{
	"warehouse", "payroll", "onboarding", "procurement", "travel policy",
	"incident review", "data retention", "vendor contract", "release process", "safety audit",
}

var filler = []string{
	"The team reviewed the current process and agreed to keep the existing approval steps.",
	"Questions about exceptions should be raised with the responsible manager before the deadline.",
	"All figures in this section are reported in the currency of the issuing office.",
	"Records are kept for the period required by local regulation and then archived.",
	"The checklist below summarises the steps that apply to most requests.",
	"Changes to this document are tracked in the revision table at the end.",
	"Staff working remotely follow the same procedure using the online form.",
	"Where two rules conflict, the more specific rule takes precedence.",
}

type question struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	File     string `json:"file"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	questions := make([]question, 0, *numDocs)
	for i := 0; i < *numDocs; i++ {
		subject := subjects[i%len(subjects)]
		code := fmt.Sprintf("%s-%04d", strings.ToUpper(subject[:3]), rng.Intn(10000))
		owner := fmt.Sprintf("office %d", rng.Intn(90)+10)

		ext := ".md"
		if i%3 == 0 {
			ext = ".txt"
		}
		name := fmt.Sprintf("doc-%04d%s", i, ext)

		var b strings.Builder
		if ext == ".md" {
			fmt.Fprintf(&b, "# %s handbook, part %d\n\n", cases.Title(language.English).String(subject), i)
		} else {
			fmt.Fprintf(&b, "%s handbook, part %d\n\n", strings.ToUpper(subject), i)
		}
		fact := rng.Intn(*paragraphs)
		for p := 0; p < *paragraphs; p++ {
			if p == fact {
				fmt.Fprintf(&b, "The reference code for part %d of the %s handbook is %s, maintained by %s.\n\n",
					i, subject, code, owner)
				continue
			}
			for s := 0; s < 4; s++ {
				b.WriteString(filler[rng.Intn(len(filler))])
				b.WriteByte(' ')
			}
			b.WriteString("\n\n")
		}

		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(b.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
			os.Exit(1)
		}
		questions = append(questions, question{
			Question: fmt.Sprintf("What is the reference code for part %d of the %s handbook?", i, subject),
			Answer:   code,
			File:     name,
		})
	}

	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode questions: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(filepath.Join(*outputDir, "questions.json"), data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write questions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d documents in %s\n", *numDocs, *outputDir)
}
