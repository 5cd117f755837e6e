package logging

// =============================================================================
// AUDIT EVENTS
// =============================================================================

// AuditEventType names an administrative mutation.
type AuditEventType string

const (
	AuditProjectCreate     AuditEventType = "project_create"
	AuditProjectUpdate     AuditEventType = "project_update"
	AuditProjectDelete     AuditEventType = "project_delete"
	AuditAdminAdd          AuditEventType = "admin_add"
	AuditCategoryCreate    AuditEventType = "category_create"
	AuditCategoryDelete    AuditEventType = "category_delete"
	AuditEntryUpdate       AuditEventType = "entry_update"
	AuditEntryDelete       AuditEventType = "entry_delete"
	AuditImport            AuditEventType = "import"
	AuditImportedDelete    AuditEventType = "imported_delete"
	AuditAnnotatorInvite   AuditEventType = "annotator_invite"
	AuditAnnotatorReinvite AuditEventType = "annotator_reinvite"
)

// AuditEvent is one structured line in the audit category.
type AuditEvent struct {
	Type    AuditEventType
	Actor   string
	Project string
	Fields  map[string]interface{}
}

// Audit writes an audit event. Actor is the contributor username and Project the project URL.
func Audit(evt AuditEvent) {
	fields := make(map[string]interface{}, len(evt.Fields)+3)
	for k, v := range evt.Fields {
		fields[k] = v
	}
	fields["event"] = string(evt.Type)
	fields["actor"] = evt.Actor
	fields["project"] = evt.Project
	Get(CategoryAudit).StructuredLog("info", "audit", fields)
}
