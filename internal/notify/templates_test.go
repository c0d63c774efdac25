package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplates(t *testing.T) {
	data := map[string]string{
		"admin_name":    "Jane",
		"admin_email":   "jane@sunshineprep.com",
		"tenant_name":   "Sunshine Prep",
		"temp_password": "Xy3!abcd9Qw-",
		"login_url":     "https://app.example.com/login",
	}

	subject := SubjectFor(TemplateTenantWelcome, data)
	assert.Contains(t, subject, "Sunshine Prep")

	body := BodyFor(TemplateTenantWelcome, data)
	assert.Contains(t, body, "jane@sunshineprep.com")
	assert.Contains(t, body, "Xy3!abcd9Qw-")
	assert.Contains(t, body, "https://app.example.com/login")
}

func TestTemplatesUnknownFallback(t *testing.T) {
	assert.Equal(t, "BrightSteps notification", SubjectFor("no_such_template", nil))
	assert.Empty(t, BodyFor("no_such_template", nil))
}
