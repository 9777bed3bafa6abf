package suggest

import (
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
)

// Result is a validated suggestion response
type Result struct {
	Kind      Kind                    `json:"kind"`
	Summary   string                  `json:"summary,omitempty"`
	Priority  string                  `json:"priority,omitempty"`
	Actions   []model.SuggestedAction `json:"actions"`
	Followups []string                `json:"followups"`
	Data      map[string]any          `json:"data,omitempty"`
	Meeting   *meeting.Spec           `json:"meeting,omitempty"`
	Source    string                  `json:"source"`
	RoutedBy  string                  `json:"routed_by,omitempty"`
}

// ActionSet converts the result into a storable suggestion set for a message
func (r *Result) ActionSet(messageID uint) *model.SuggestedActionSet {
	actions := make([]model.SuggestedAction, len(r.Actions))
	copy(actions, r.Actions)
	return &model.SuggestedActionSet{
		MessageID: messageID,
		Kind:      string(r.Kind),
		Summary:   r.Summary,
		Priority:  r.Priority,
		Source:    r.Source,
		Followups: model.StringList(r.Followups),
		Actions:   actions,
	}
}

// ActionRequired reports whether a result marks its message as needing the user's attention
func ActionRequired(res *Result) bool {
	if flag, ok := res.Data["action_required"].(bool); ok && flag {
		return true
	}
	return isHighPriority(res.Priority)
}

// DefaultPriority is the priority handed to SafeDefault for a message
func DefaultPriority(msg *model.InboundMessage) string {
	if msg != nil && msg.ActionRequired {
		return "high"
	}
	return "medium"
}

// SafeDefault is substituted when model output cannot be recovered. It carries a
// single low-confidence action: mark_as_priority for high or urgent priority, else mark_as_read.
func SafeDefault(kind Kind, priority string) *Result {
	return &Result{
		Kind:      kind,
		Priority:  priority,
		Actions:   []model.SuggestedAction{defaultAction(priority)},
		Followups: []string{},
		Source:    model.SourceDefault,
	}
}

func defaultAction(priority string) model.SuggestedAction {
	if isHighPriority(priority) {
		return model.SuggestedAction{
			Type:       model.ActionMarkAsPriority,
			Title:      defaultTitles[model.ActionMarkAsPriority],
			Payload:    model.JSONMap{},
			Confidence: 0.3,
			Reasoning:  "Defaulted from the overall priority signal",
		}
	}
	return model.SuggestedAction{
		Type:       model.ActionMarkAsRead,
		Title:      defaultTitles[model.ActionMarkAsRead],
		Payload:    model.JSONMap{},
		Confidence: 0.3,
		Reasoning:  "No actionable suggestion was produced",
	}
}
