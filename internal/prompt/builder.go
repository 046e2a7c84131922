// Package prompt assembles the final text sent to the model from the
// question, conversation history, and rendered dashboard data.
package prompt

import "fmt"

const analyticsPreamble = `Analyze the following Tableau dashboard data and provide comprehensive insights:

%s

Provide insights about:
1. Key trends and patterns across worksheets
2. Notable correlations or relationships
3. Anomalies or outliers
4. Potential business implications
5. Suggestions for further analysis

Make your analysis specific and data-driven.`

const summarizationPreamble = `Provide a concise summary of the following Tableau dashboard data:

%s

Your summary should:
1. Highlight the key information presented in each worksheet
2. Provide an overall perspective on what the dashboard is showing
3. Be clear, concise, and focused on the most important points
4. Use bullet points for clarity where appropriate`

const generalDashboardSuffix = `

Please answer the question based solely on the dashboard data provided. Be specific and refer to the worksheet data where relevant. If the question cannot be answered with the available data, explain why.`

const generalDataSuffix = "\n\nPlease answer the question using only the data provided."

// Analytics wraps rendered data in the analytics instruction template.
// Non-dashboard payloads get the short form.
func Analytics(data string, dashboard bool) string {
	if dashboard {
		return fmt.Sprintf(analyticsPreamble, data)
	}
	return "Analyze the following data and provide insights:\n\n" + data
}

// Summarization wraps rendered data in the summary instruction template.
func Summarization(data string, dashboard bool) string {
	if dashboard {
		return fmt.Sprintf(summarizationPreamble, data)
	}
	return "Provide a concise summary of the following data:\n\n" + data
}

// General pairs a question with its supporting data. Without a question the
// data itself is the prompt.
func General(question, data string, dashboard bool) string {
	if question == "" {
		return data
	}
	if dashboard {
		return fmt.Sprintf("Question: %s\n\nDashboard Data:\n%s", question, data) + generalDashboardSuffix
	}
	return fmt.Sprintf("Question: %s\n\nData:\n%s", question, data) + generalDataSuffix
}

// Conversational builds the prompt for session-scoped endpoints. History, when
// present, frames the question as a follow-up.
func Conversational(question, history, data string, dashboard bool) string {
	if question == "" {
		return data
	}

	section := "Data"
	if dashboard {
		section = "Dashboard Data"
	}

	if history != "" {
		return fmt.Sprintf("Conversation history:\n%s\n\nNew question: %s\n\n%s:\n%s\n", history, question, section, data)
	}
	return fmt.Sprintf("Question: %s\n\n%s:\n%s\n", question, section, data)
}
