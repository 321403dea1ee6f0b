package core

import (
	"fmt"

	"github.com/apiary-labs/apiary/internal/store"
)

const searchPromptTemplate = `You are an experienced API researcher. Research 3 to 5 real, existing web APIs related to the keyword below and provide detailed information about each.

Keyword: %q

Respond with the following JSON structure and nothing else. Return only JSON, no explanatory text.

{
  "apis": [
    {
      "name": "API name",
      "provider": "Company or organization behind it",
      "category": "Category (e.g. Finance, Weather, Social, Maps, AI, E-commerce)",
      "description": "Short summary, at most 100 characters",
      "longDescription": "Detailed explanation of features and capabilities, around 300 characters",
      "useCases": ["use case 1", "use case 2", "use case 3"],
      "authType": "Authentication scheme (e.g. API Key, OAuth 2.0, Basic Auth, None)",
      "pricing": "Pricing model (e.g. Free, Freemium, Paid, Enterprise)",
      "url": "Official site URL",
      "endpointExample": "A representative endpoint path (e.g. /v1/users)",
      "responseExample": {"sample": "response object"},
      "status": "active"
    }
  ]
}

Important:
- Only include APIs that actually exist
- Use the exact official site URL
- Return only JSON, no markdown decoration`

const urlAnalysisPromptTemplate = `Analyze the web page at the following URL and determine whether it documents a web API. If it does, extract the API's details.

URL: %s

Respond with the following JSON structure and nothing else:

{
  "api": {
    "name": "API name",
    "provider": "Company or organization behind it",
    "category": "Category",
    "description": "Short summary, at most 100 characters",
    "longDescription": "Detailed explanation, around 300 characters",
    "useCases": ["use case 1", "use case 2"],
    "authType": "Authentication scheme",
    "pricing": "Pricing model",
    "url": "Official site URL",
    "endpointExample": "A representative endpoint path",
    "responseExample": {"sample": "response object"},
    "status": "active"
  },
  "confidence": "high" or "medium" or "low"
}

Return only JSON, no markdown decoration.`

const statusCheckPromptTemplate = `Investigate the current state of the following API.

API: %s
Provider: %s
URL: %s

Respond with the following JSON structure:
{
  "status": "active" or "deprecated" or "eol",
  "changes": "Notable changes, empty string if none",
  "notes": "Supplementary information (planned shutdown dates, migration targets, and so on)"
}

Return only JSON.`

const verifyPromptTemplate = `Verify the accuracy of the catalog record below against what you know about this API. Point out any fields that are wrong or outdated and provide corrected values.

Record:
- Name: %s
- Provider: %s
- Category: %s
- Description: %s
- Auth type: %s
- Pricing: %s
- URL: %s
- Endpoint example: %s

Respond with the following JSON structure:
{
  "accuracy": "high" or "medium" or "low",
  "issues": ["description of each inaccuracy found, empty array if none"],
  "verifiedApi": {
    "name": "corrected name",
    "provider": "corrected provider",
    "category": "corrected category",
    "description": "corrected description",
    "authType": "corrected auth type",
    "pricing": "corrected pricing",
    "url": "corrected URL",
    "endpointExample": "corrected endpoint path"
  }
}

Return only JSON.`

var codeLanguageTemplates = map[string]string{
	"python":     "Python (using the requests library)",
	"nodejs":     "Node.js (using fetch or axios)",
	"powershell": "PowerShell (using Invoke-RestMethod)",
	"curl":       "a cURL command",
}

const codeGenPromptTemplate = `Generate a runnable sample in %s for the API described below.

API details:
- Name: %s
- Endpoint example: %s
- Auth type: %s
- Base URL: %s

Include:
1. Required imports/modules
2. Authentication setup (use YOUR_API_KEY as a placeholder)
3. Executing the request
4. Handling the response
5. Error handling

Return only the code, no explanatory text.`

func searchPrompt(keyword string) string {
	return fmt.Sprintf(searchPromptTemplate, keyword)
}

func urlAnalysisPrompt(url string) string {
	return fmt.Sprintf(urlAnalysisPromptTemplate, url)
}

func statusCheckPrompt(entry *store.APIEntry) string {
	return fmt.Sprintf(statusCheckPromptTemplate, entry.Name, entry.Provider, entry.URL)
}

func verifyPrompt(entry *store.APIEntry) string {
	return fmt.Sprintf(verifyPromptTemplate,
		entry.Name, entry.Provider, entry.Category, entry.Description,
		entry.AuthType, entry.Pricing, entry.URL, entry.EndpointExample)
}

func codeGenPrompt(entry *store.APIEntry, language string) string {
	target, ok := codeLanguageTemplates[language]
	if !ok {
		target = language
	}
	return fmt.Sprintf(codeGenPromptTemplate, target, entry.Name, entry.EndpointExample, entry.AuthType, entry.URL)
}
