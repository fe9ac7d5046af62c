package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemUserNameCarriesProjectSuffix(t *testing.T) {
	user := SystemUserName("contact", "site-a")
	assert.Equal(t, "contact_site-a", user)
	assert.True(t, strings.HasSuffix(user, ProjectSuffix("site-a")))
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "contact", LocalPart("contact@example.com"))
	assert.Equal(t, "bare", LocalPart("bare"))
}

func TestWebmailHost(t *testing.T) {
	assert.Empty(t, ProjectRecord{}.WebmailHost())
	assert.Equal(t, "webmail.example.com", ProjectRecord{Domain: "example.com"}.WebmailHost())
}
