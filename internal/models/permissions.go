package models

// Action is a closed capability tag. All role gating goes through
// CanPerform instead of comparing role strings at call sites.
type Action string

const (
	ActionExamCreate      Action = "exam:create"
	ActionExamUpdate      Action = "exam:update"
	ActionExamDelete      Action = "exam:delete"
	ActionExamList        Action = "exam:list"
	ActionSubmissionStart Action = "submission:start"
	ActionSubmissionSend  Action = "submission:submit"
	ActionResultsView     Action = "results:view"
	ActionResultsExport   Action = "results:export"
)

var roleActions = map[UserRole]map[Action]bool{
	RoleAuthority: {
		ActionExamCreate:    true,
		ActionExamUpdate:    true,
		ActionExamDelete:    true,
		ActionExamList:      true,
		ActionResultsExport: true,
	},
	RoleOrganization: {
		ActionExamCreate:    true,
		ActionExamUpdate:    true,
		ActionExamDelete:    true,
		ActionExamList:      true,
		ActionResultsExport: true,
	},
	RoleStudent: {
		ActionSubmissionStart: true,
		ActionSubmissionSend:  true,
		ActionResultsView:     true,
	},
}

// CanPerform reports whether the role is allowed to perform the action.
// Admin can do everything; ownership checks remain the services' job.
func CanPerform(role UserRole, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return roleActions[role][action]
}
