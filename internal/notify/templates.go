package notify

import "fmt"

// Email template identifiers.
const (
	TemplateTenantWelcome   = "tenant_welcome"
	TemplateInvitation      = "invitation"
	TemplatePasswordReset   = "password_reset"
	TemplateRequestRejected = "request_rejected"
)

// SubjectFor returns the subject line for a template.
func SubjectFor(template string, data map[string]string) string {
	switch template {
	case TemplateTenantWelcome:
		return fmt.Sprintf("Welcome to BrightSteps, %s", data["tenant_name"])
	case TemplateInvitation:
		return fmt.Sprintf("You're invited to join %s on BrightSteps", data["tenant_name"])
	case TemplatePasswordReset:
		return "Your BrightSteps password has been reset"
	case TemplateRequestRejected:
		return "Update on your BrightSteps application"
	default:
		return "BrightSteps notification"
	}
}

// BodyFor renders the plain-text body for a template.
func BodyFor(template string, data map[string]string) string {
	switch template {
	case TemplateTenantWelcome:
		return fmt.Sprintf(
			"Hi %s,\n\n%s is now set up on BrightSteps.\n\nSign in at %s with:\n  Email: %s\n  Temporary password: %s\n\nPlease change the password after your first login.\n",
			data["admin_name"], data["tenant_name"], data["login_url"], data["admin_email"], data["temp_password"])
	case TemplateInvitation:
		return fmt.Sprintf(
			"Hello,\n\nYou've been invited to join %s on BrightSteps as %s.\n\nRedeem your invitation at %s with this code:\n  %s\n\nThe code expires on %s.\n",
			data["tenant_name"], data["role"], data["redeem_url"], data["code"], data["expires_at"])
	case TemplatePasswordReset:
		return fmt.Sprintf(
			"Hi %s,\n\nAn administrator reset your BrightSteps password.\n\nTemporary password: %s\n\nPlease sign in and change it.\n",
			data["name"], data["temp_password"])
	case TemplateRequestRejected:
		return fmt.Sprintf(
			"Hi %s,\n\nWe reviewed your BrightSteps application for %s and can't approve it at this time.\n\nReason: %s\n",
			data["admin_name"], data["tenant_name"], data["reason"])
	default:
		return ""
	}
}
