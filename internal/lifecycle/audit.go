package lifecycle

import (
	"time"

	"github.com/harrison/ptw/internal/models"
)

func appendAudit(p *models.Permit, action Action, actor string, at time.Time, details map[string]string) {
	if len(details) == 0 {
		details = nil
	}
	p.AuditLog = append(p.AuditLog, models.AuditEntry{
		Action:  string(action),
		Actor:   actor,
		At:      at,
		Details: details,
	})
}

// History returns the audit entries recorded for action, oldest first.
func History(p *models.Permit, action Action) []models.AuditEntry {
	var out []models.AuditEntry
	for _, e := range p.AuditLog {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}
