package suggest

import "strings"

// Kind selects the prompt template and validator for a request
type Kind string

const (
	KindEmailActions  Kind = "email_actions"
	KindEmailSummary  Kind = "email_summary"
	KindDailyBriefing Kind = "daily_briefing"
	KindMeetingNotes  Kind = "meeting_notes"
	KindChatResponse  Kind = "chat_response"
	KindCreateMeeting Kind = "create_meeting"
	KindCreateTask    Kind = "create_task"
)

// Kinds is the closed set of request kinds
var Kinds = []Kind{
	KindEmailActions,
	KindEmailSummary,
	KindDailyBriefing,
	KindMeetingNotes,
	KindChatResponse,
	KindCreateMeeting,
	KindCreateTask,
}

// ParseKind normalizes s and reports whether it names a known kind
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`.")
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
