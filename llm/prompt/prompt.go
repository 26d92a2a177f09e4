// Package prompt assembles grounded generation prompts from retrieved
// document chunks.
package prompt

import (
	"strings"
	"text/template"

	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/vector"
)

const sectionSeparator = "\n\n"

var defaultSystemPrompt = strings.Join([]string{
	"You are an assistant that answers user questions using only the provided documents.",
	"Follow these guidelines when generating your response:",
	"- Use only the information available in the provided documents to answer the question.",
	"- If the documents do not fully answer the query, explicitly state that the information is not available.",
	"- Always respond in the same language as the user's query.",
	"- Ensure the response is clear, concise, and directly answers the user's query.",
	"- Avoid irrelevant information and focus only on answering the question asked.",
}, "\n")

var defaultDocumentPrompt = strings.Join([]string{
	"## Document No: {{.DocNum}}",
	"### Content: {{.ChunkText}}",
}, "\n")

var defaultFooterPrompt = strings.Join([]string{
	"Based on the above documents, provide the most accurate and relevant answer that directly addresses the user's question.",
	"If the documents do not provide a clear answer, state that explicitly.",
	"",
	"## Question:",
	"{{.Query}}",
	"",
	"## Answer:",
}, "\n")

// Templates holds the three prompt sections. Zero values select the
// built-in defaults.
type Templates struct {
	System   string `yaml:"system"`
	Document string `yaml:"document"`
	Footer   string `yaml:"footer"`
}

// Composer renders the generation prompt: one document block per
// retrieved chunk (numbered 1-based in display order), then the footer
// with the raw query, joined in that fixed order.
type Composer struct {
	system   string
	document *template.Template
	footer   *template.Template
}

func NewComposer(tmpl Templates) (*Composer, error) {
	if tmpl.System == "" {
		tmpl.System = defaultSystemPrompt
	}
	if tmpl.Document == "" {
		tmpl.Document = defaultDocumentPrompt
	}
	if tmpl.Footer == "" {
		tmpl.Footer = defaultFooterPrompt
	}

	document, err := template.New("document").Parse(tmpl.Document)
	if err != nil {
		return nil, err
	}

	footer, err := template.New("footer").Parse(tmpl.Footer)
	if err != nil {
		return nil, err
	}

	return &Composer{
		system:   tmpl.System,
		document: document,
		footer:   footer,
	}, nil
}

// Compose builds the full prompt and the chat history seeded with the
// system message. With no retrieved documents it returns
// llm.ErrNoMatchingContent; the generation capability must not be
// invoked in that case.
func (c *Composer) Compose(query string, docs []vector.Document) (string, []llm.Message, error) {
	if len(docs) == 0 {
		return "", nil, llm.ErrNoMatchingContent
	}

	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder
		err := c.document.Execute(&b, struct {
			DocNum    int
			ChunkText string
		}{
			DocNum:    i + 1,
			ChunkText: doc.Text,
		})
		if err != nil {
			return "", nil, err
		}

		blocks = append(blocks, b.String())
	}

	var footer strings.Builder
	err := c.footer.Execute(&footer, struct {
		Query string
	}{
		Query: query,
	})
	if err != nil {
		return "", nil, err
	}

	fullPrompt := strings.Join([]string{
		strings.Join(blocks, "\n"),
		footer.String(),
	}, sectionSeparator)

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: c.system},
	}

	return fullPrompt, history, nil
}
