// Package models defines workflow type definitions to avoid circular imports.
package models

// WorkflowType represents a specific multi-step chat workflow.
type WorkflowType string

// StateType represents a specific state within a workflow.
type StateType string

// DataKey represents a key for storing workflow-local scratch data.
type DataKey string

// Workflow type constants.
const (
	WorkflowTypeNone   WorkflowType = ""
	WorkflowTypeLogin  WorkflowType = "login"
	WorkflowTypeDigest WorkflowType = "digest"
)

// State constants for the login workflow.
const (
	StateLoginAwaitingPhone StateType = "AWAITING_PHONE"
	StateLoginAwaitingCode  StateType = "AWAITING_CODE"
	StateLoginSuccess       StateType = "SUCCESS"
	StateLoginCancelled     StateType = "CANCELLED"
)

// State constants for the group digest workflow.
const (
	StateDigestAwaitingGroupName StateType = "AWAITING_GROUP_NAME"
	StateDigestContinuePrompt    StateType = "CONTINUE_PROMPT"
	StateDigestEnd               StateType = "END"
)

// Data key constants for workflow scratch data.
const (
	DataKeyPhoneNumber DataKey = "phoneNumber" // Phone entered during login, kept for the code step
)

// IsTerminal reports whether a state ends its workflow.
func (s StateType) IsTerminal() bool {
	switch s {
	case StateLoginSuccess, StateLoginCancelled, StateDigestEnd:
		return true
	default:
		return false
	}
}
