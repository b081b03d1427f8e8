package analysis

const fileAnalysisSchema = `{
  "type": "object",
  "required": ["summary", "keyPoints", "topics", "insights", "questions", "sentiment", "confidence"],
  "properties": {
    "summary": {"type": "string", "description": "Comprehensive summary of the document content"},
    "keyPoints": {"type": "array", "items": {"type": "string"}, "description": "Main points and important information"},
    "topics": {"type": "array", "items": {"type": "string"}, "description": "Key topics and themes identified"},
    "insights": {"type": "array", "items": {"type": "string"}, "description": "Observations about the content"},
    "questions": {"type": "array", "items": {"type": "string"}, "description": "Suggested questions for further exploration"},
    "sentiment": {"type": "string", "enum": ["positive", "neutral", "negative"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const insightReportSchema = `{
  "type": "object",
  "required": ["title", "overview", "keyFindings", "recommendations", "trends", "nextSteps", "confidence"],
  "properties": {
    "title": {"type": "string", "description": "Title for the insight report"},
    "overview": {"type": "string", "description": "High-level overview of the insights"},
    "keyFindings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["finding", "importance", "category"],
        "properties": {
          "finding": {"type": "string"},
          "importance": {"type": "string", "enum": ["high", "medium", "low"]},
          "category": {"type": "string"}
        }
      }
    },
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "trends": {"type": "array", "items": {"type": "string"}},
    "nextSteps": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`
