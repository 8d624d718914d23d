package query

import (
	"fmt"
	"strings"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

const sectionDelimiter = "$$$$"

// FormatDocuments groups passages by source document in first-seen order.
// Each group is headed by its source id and lists one
// "text:::url:::FINISH" line per passage.
func FormatDocuments(docs []domain.Document) string {
	var order []string
	grouped := make(map[string][]string)

	for _, d := range docs {
		id := d.SourceID()
		if _, seen := grouped[id]; !seen {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], fmt.Sprintf("%s:::%s:::FINISH", d.Text, d.URL))
	}

	sections := make([]string, 0, len(order))
	for _, id := range order {
		sections = append(sections, id+"\n"+strings.Join(grouped[id], "\n"))
	}
	return strings.Join(sections, "\n")
}

func FormatHistory(responses []string) string {
	return strings.Join(responses, "\n")
}

// BuildPrompt renders the single system message sent to the model.
func BuildPrompt(query string, docs []domain.Document, history []string) string {
	var b strings.Builder
	d := sectionDelimiter

	b.WriteString("You are an assistant helping resolve support tickets.\n\n")

	b.WriteString("User query:\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	b.WriteString("Previous answers given to this user:\n")
	b.WriteString(FormatHistory(history))
	b.WriteString("\nIf the list above is empty, treat this as a new conversation.\n\n")

	b.WriteString("Relevant documentation (DOCS):\n```")
	b.WriteString(FormatDocuments(docs))
	b.WriteString("```\n")
	fmt.Fprintf(&b, "DOCS are grouped by source document. Each passage has the form\n%s\ntext:::url:::FINISH\n%s\n", d, d)
	b.WriteString("Use every passage, not only the highest scoring ones, and cite every URL you rely on.\n")
	b.WriteString("When the user asks for steps, build the steps from DOCS.\n")
	b.WriteString("Never state that the documentation lacks the answer, and never invent facts.\n")
	b.WriteString(d + "\n")

	fmt.Fprintf(&b, "Classify the request into one of these topics: %s.\n", strings.Join(domain.Topics, ", "))
	fmt.Fprintf(&b, "%sIf the topic is %s, answer directly from DOCS.%s\n", d, strings.Join(domain.DirectAnswerTopics, ", "), d)
	b.WriteString("For any other topic, reply only with a short message naming the topic and saying the ticket was routed to the right team, for example:\n")
	b.WriteString("\"This ticket has been classified as a 'Connector' issue and routed to the appropriate team.\"\n")
	b.WriteString("\"Looks like this is a Connector issue. I've routed it to the right experts so they can assist you.\"\n")
	b.WriteString(d + "\n\n")

	b.WriteString("Instructions:\n")
	b.WriteString("- Draft a clear and accurate response to the user's query.\n")
	b.WriteString("- Cite only URLs that appear in DOCS.\n")
	b.WriteString("- Do not ask follow-up questions.\n")
	b.WriteString("- If DOCS is empty, return \"Cited_URLs\": [].\n")
	b.WriteString("- Output strictly this JSON and nothing else:\n\n")
	b.WriteString(`[{"LLM_Response": "<drafted response to the ticket>", "Cited_URLs": ["<url1>", "<url2>"]}]`)
	b.WriteString("\n")

	return b.String()
}
