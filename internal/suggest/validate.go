package suggest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"smart-mail-assistant-go/internal/model"
)

const defaultConfidence = 0.5

var defaultTitles = map[string]string{
	model.ActionMarkAsRead:     "Mark as read",
	model.ActionMarkAsPriority: "Mark as priority",
	model.ActionTrash:          "Move to trash",
	model.ActionReply:          "Reply",
	model.ActionSendEmail:      "Send email",
	model.ActionCreateTask:     "Create task",
	model.ActionCreateEvent:    "Create calendar event",
	model.ActionCreateMeeting:  "Schedule meeting",
}

var actionAliases = map[string]string{
	"mark_read":             model.ActionMarkAsRead,
	"read":                  model.ActionMarkAsRead,
	"mark_important":        model.ActionMarkAsPriority,
	"mark_as_important":     model.ActionMarkAsPriority,
	"flag":                  model.ActionMarkAsPriority,
	"star":                  model.ActionMarkAsPriority,
	"delete":                model.ActionTrash,
	"archive":               model.ActionTrash,
	"respond":               model.ActionReply,
	"send":                  model.ActionSendEmail,
	"task":                  model.ActionCreateTask,
	"add_task":              model.ActionCreateTask,
	"event":                 model.ActionCreateEvent,
	"create_calendar_event": model.ActionCreateEvent,
	"schedule_meeting":      model.ActionCreateMeeting,
}

// NormalizeActionType maps model spellings onto known action types. ok is false for unknown types.
func NormalizeActionType(s string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.NewReplacer("-", "_", " ", "_").Replace(t)
	if alias, ok := actionAliases[t]; ok {
		t = alias
	}
	return t, model.IsKnownActionType(t)
}

// validateActions fills defaults the schema requires: unknown types are dropped,
// confidences are clamped to [0,1] and an empty list becomes a single safe default.
func validateActions(obj map[string]any, priority string) []model.SuggestedAction {
	var out []model.SuggestedAction
	for _, item := range asSlice(obj["actions"]) {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t, ok := NormalizeActionType(asString(raw["type"]))
		if !ok {
			continue
		}
		title := strings.TrimSpace(asString(raw["title"]))
		if title == "" {
			title = defaultTitles[t]
		}
		payload := model.JSONMap{}
		if p, ok := raw["payload"].(map[string]any); ok {
			payload = model.JSONMap(p)
		}
		out = append(out, model.SuggestedAction{
			Type:       t,
			Title:      title,
			Payload:    payload,
			Confidence: clampConfidence(raw["confidence"]),
			Reasoning:  strings.TrimSpace(asString(raw["reasoning"])),
		})
	}
	if len(out) == 0 {
		return []model.SuggestedAction{defaultAction(priority)}
	}
	return out
}

func clampConfidence(v any) float64 {
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) {
		return defaultConfidence
	}
	if f > 1 && f <= 100 {
		f = f / 100
	}
	return math.Max(0, math.Min(1, f))
}

func normalizePriority(v any) string {
	p := strings.ToLower(strings.TrimSpace(asString(v)))
	switch p {
	case "urgent", "high", "medium", "low":
		return p
	default:
		return "medium"
	}
}

func isHighPriority(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	return p == "high" || p == "urgent"
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asStringList(v any) []string {
	out := []string{}
	for _, item := range asSlice(v) {
		if s := strings.TrimSpace(asString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
