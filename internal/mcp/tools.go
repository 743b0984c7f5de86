package mcp

// ListInput defines the input schema for the list_knowledge_bases tool (no parameters).
type ListInput struct{}

// ListOutput defines the output schema for the list_knowledge_bases tool.
type ListOutput struct {
	KnowledgeBases []KnowledgeBaseOutput `json:"knowledge_bases" jsonschema:"knowledge bases owned by the configured owner"`
}

// KnowledgeBaseOutput describes one knowledge base.
type KnowledgeBaseOutput struct {
	Name        string `json:"name" jsonschema:"sanitized knowledge base name used by the other tools"`
	DisplayName string `json:"display_name" jsonschema:"human-readable name"`
	Documents   int    `json:"documents" jsonschema:"number of source documents"`
	CreatedAt   string `json:"created_at,omitempty" jsonschema:"creation time, RFC 3339"`
}

// AskInput defines the input schema for the ask_question tool.
type AskInput struct {
	KnowledgeBase string `json:"knowledge_base" jsonschema:"name of the knowledge base to ask"`
	Question      string `json:"question" jsonschema:"the question to answer from the documents"`
	// Fresh ignores the saved conversation.
	Fresh bool `json:"fresh,omitempty" jsonschema:"start a new conversation instead of continuing the saved one"`
}

// AskOutput defines the output schema for the ask_question tool.
type AskOutput struct {
	Answer   string   `json:"answer" jsonschema:"the grounded answer or a refusal"`
	Sources  []string `json:"sources" jsonschema:"source documents the answer was drawn from, in rank order"`
	Greeting bool     `json:"greeting,omitempty" jsonschema:"true if the question was a greeting"`
	Warning  string   `json:"warning,omitempty" jsonschema:"set when the conversation could not be saved"`
}

// IngestInput defines the input schema for the ingest_documents tool.
type IngestInput struct {
	KnowledgeBase string   `json:"knowledge_base" jsonschema:"name of the knowledge base to create or extend"`
	Paths         []string `json:"paths" jsonschema:"local file paths to ingest (pdf, docx, pptx, xlsx, txt, md, csv, images)"`
	Append        bool     `json:"append,omitempty" jsonschema:"add the files to an existing knowledge base instead of creating one"`
}

// IngestOutput defines the output schema for the ingest_documents tool.
type IngestOutput struct {
	Name            string   `json:"name" jsonschema:"sanitized knowledge base name"`
	SourceDocuments []string `json:"source_documents" jsonschema:"every document in the knowledge base"`
	Chunks          int      `json:"chunks" jsonschema:"chunks indexed by this call"`
	Warnings        []string `json:"warnings,omitempty" jsonschema:"files that were skipped"`
}

// DeleteInput defines the input schema for the delete_knowledge_base tool.
type DeleteInput struct {
	KnowledgeBase string `json:"knowledge_base" jsonschema:"name of the knowledge base to delete"`
}

// DeleteOutput defines the output schema for the delete_knowledge_base tool.
type DeleteOutput struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}
