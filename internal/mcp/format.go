package mcp

import (
	"fmt"
	"strings"
)

// FormatKnowledgeBases formats the knowledge-base list as markdown.
func FormatKnowledgeBases(out ListOutput) string {
	if len(out.KnowledgeBases) == 0 {
		return "No knowledge bases yet. Use ingest_documents to create one."
	}

	var sb strings.Builder
	sb.WriteString("## Knowledge Bases\n\n")
	fmt.Fprintf(&sb, "Found %d knowledge base%s\n\n", len(out.KnowledgeBases), plural(len(out.KnowledgeBases)))
	sb.WriteString("| Name | Display name | Documents |\n|---|---|---|\n")
	for _, k := range out.KnowledgeBases {
		fmt.Fprintf(&sb, "| `%s` | %s | %d |\n", k.Name, k.DisplayName, k.Documents)
	}
	return sb.String()
}

// FormatAnswer formats an answer with its sources.
func FormatAnswer(out AskOutput) string {
	var sb strings.Builder
	sb.WriteString(out.Answer)
	sb.WriteString("\n")

	if len(out.Sources) > 0 {
		sb.WriteString("\n**Sources:**\n")
		for _, s := range out.Sources {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	if out.Warning != "" {
		fmt.Fprintf(&sb, "\n> Warning: %s\n", out.Warning)
	}
	return sb.String()
}

// FormatIngest summarizes an ingest call.
func FormatIngest(out IngestOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Knowledge base `%s` ready\n\n", out.Name)
	fmt.Fprintf(&sb, "Indexed %d chunk%s. %d document%s in total:\n\n",
		out.Chunks, plural(out.Chunks), len(out.SourceDocuments), plural(len(out.SourceDocuments)))
	for _, d := range out.SourceDocuments {
		fmt.Fprintf(&sb, "- %s\n", d)
	}
	if len(out.Warnings) > 0 {
		sb.WriteString("\n**Skipped:**\n")
		for _, w := range out.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return sb.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
