package testutil

import (
	"time"
)

// RefNow is the reference time used across tests: Wednesday 2024-01-10
// 10:00 UTC.
var RefNow = time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

// Analysis replies as returned by the analysis service.
const (
	// AnalysisJSON is a structured reply with three items.
	AnalysisJSON = `{
  "language": "English",
  "summary": "Planning call for the product launch.",
  "action_items": [
    {"task": "Call John", "deadline": "tomorrow 3pm", "priority": "high"},
    {"task": "Send the launch deck to marketing", "deadline": "Friday", "priority": "medium"},
    {"task": "Book a meeting room", "deadline": "", "priority": "low"}
  ],
  "topics": ["launch", "marketing"]
}`

	// AnalysisLines is a reply written as a bullet list.
	AnalysisLines = `Summary: Planning call for the product launch.

Action items:
- Call John tomorrow 3pm - high priority
- Send the launch deck to marketing (deadline: Friday)
- Book a meeting room [low]`

	// AnalysisArabic is a structured reply in Arabic.
	AnalysisArabic = `{
  "summary": "مكالمة تخطيط",
  "action_items": [
    {"task": "الاتصال بأحمد", "deadline": "غداً الساعة 3 بعد الظهر", "priority": "عالية"}
  ]
}`

	// AnalysisProse is a reply with no recognisable items.
	AnalysisProse = "The speaker talked about the weather and their weekend. Nothing needs to be done."
)
