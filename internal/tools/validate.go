package tools

import (
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// ValidateTitle trims and bounds-checks a task title.
func ValidateTitle(raw string) (string, *model.ToolError) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &model.ToolError{Kind: model.ErrValidation, Field: model.ParamTitle, Reason: model.ReasonEmpty, Message: "title cannot be empty"}
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return "", &model.ToolError{Kind: model.ErrValidation, Field: model.ParamTitle, Reason: model.ReasonTooLong, Message: "title exceeds maximum length"}
	}
	if !utf8.ValidString(title) {
		return "", &model.ToolError{Kind: model.ErrValidation, Field: model.ParamTitle, Reason: model.ReasonInvalid, Message: "title must be valid UTF-8"}
	}
	return title, nil
}

// ValidateDescription trims and bounds-checks a task description. Empty is allowed.
func ValidateDescription(raw string) (string, *model.ToolError) {
	desc := strings.TrimSpace(raw)
	if utf8.RuneCountInString(desc) > model.MaxDescriptionLength {
		return "", &model.ToolError{Kind: model.ErrValidation, Field: model.ParamDescription, Reason: model.ReasonTooLong, Message: "description exceeds maximum length"}
	}
	if !utf8.ValidString(desc) {
		return "", &model.ToolError{Kind: model.ErrValidation, Field: model.ParamDescription, Reason: model.ReasonInvalid, Message: "description must be valid UTF-8"}
	}
	return desc, nil
}

func failedWith(e *model.ToolError) model.ToolResult {
	return model.ToolResult{Error: e}
}
