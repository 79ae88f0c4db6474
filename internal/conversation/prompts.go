package conversation

import (
	"strings"
	"text/template"
)

// The manager turns a question into instructions for the analyst; the analyst
// follows them and produces the final answer.
var managerPrompt = template.Must(template.New("manager").Parse(`You are a world class data scientist who specializes in dataframe analytics.

Your job is to tell your colleague, the analyst, how to answer the customer's question.
Do not answer the question yourself. Tell the analyst specifically how to execute the analysis,
step by step, using only the columns that exist in the data.

Here is the customer's question:
{{.Question}}

Here are the first rows of the dataset:
{{.Preview}}
`))

var analystPrompt = template.Must(template.New("analyst").Parse(`You are a world class data analyst who specializes in dataframe analytics.

Your data scientist colleague has written instructions for answering the customer's question.
Follow the instructions exactly and give the customer the correct answer.

Here are the first rows of the dataset:
{{.Preview}}

Instructions:
{{.Instructions}}

Customer question:
{{.Question}}
`))

type promptData struct {
	Question     string
	Preview      string
	Instructions string
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderManagerPrompt builds the initial-turn prompt.
func RenderManagerPrompt(question, preview string) (string, error) {
	return render(managerPrompt, promptData{Question: question, Preview: preview})
}

// RenderAnalystPrompt builds the follow-up prompt around the carried instructions.
func RenderAnalystPrompt(preview, instructions, question string) (string, error) {
	return render(analystPrompt, promptData{Question: question, Preview: preview, Instructions: instructions})
}
