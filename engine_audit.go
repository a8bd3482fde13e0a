package goSession

import (
	"context"

	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLogout           = "logout"
	auditEventAuthFailure      = "auth_failure"
	auditEventPermissionDenied = "permission_denied"
	auditEventStoreUnavailable = "store_unavailable"
)

// AuditErrorCode is the machine-readable reason attached to failed audit events.
type AuditErrorCode string

const (
	auditErrCookieMissing    AuditErrorCode = "cookie_missing"
	auditErrCookieMalformed  AuditErrorCode = "cookie_malformed"
	auditErrCookieForged     AuditErrorCode = "cookie_forged"
	auditErrSessionExpired   AuditErrorCode = "session_expired"
	auditErrTimestampInvalid AuditErrorCode = "timestamp_invalid"
	auditErrUserNotFound     AuditErrorCode = "user_not_found"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrRoleDenied       AuditErrorCode = "role_denied"
	auditErrSealFailed       AuditErrorCode = "seal_failed"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	namespace string,
	username string,
	ip string,
	success bool,
	code AuditErrorCode,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Namespace: namespace,
		Username:  username,
		IP:        ip,
		Success:   success,
		Error:     string(code),
	}

	e.audit.Emit(ctx, event)
}
