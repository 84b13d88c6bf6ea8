// Package prompts centralizes the instruction text sent to the generative model.
package prompts

// AnalysisSystemPrompt pins the model to the analyst role and JSON-only output.
const AnalysisSystemPrompt = `You are a financial analyst. You analyze earnings-call and
financial-report documents and respond with ONLY a single JSON object, no additional
text, no markdown fences.`

// AnalysisUserPrompt is the fixed JSON-schema instruction. The document text
// is appended by the caller.
const AnalysisUserPrompt = `Analyze the following financial document text and provide a structured analysis.

Respond in exactly this JSON format:
{
    "summary": "A concise 2-3 sentence summary of the document",
    "key_points": ["Point 1", "Point 2", "Point 3", "Point 4", "Point 5"],
    "sentiment": {
        "overall": "positive/neutral/negative",
        "confidence": 0.XX,
        "breakdown": {
            "positive": XX,
            "neutral": XX,
            "negative": XX
        }
    },
    "topics": [
        {
            "name": "Topic name",
            "sentiment": "positive/neutral/negative",
            "mentions": X
        }
    ],
    "quotes": [
        {
            "text": "Quote text",
            "speaker": "Speaker name",
            "sentiment": "positive/neutral/negative"
        }
    ]
}

Ensure your response is ONLY the JSON object with no additional text.

Document text:
`
