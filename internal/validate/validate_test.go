package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectName(t *testing.T) {
	for _, ok := range []string{"site-a", "a", "blog2024"} {
		assert.NoError(t, ProjectName(ok), ok)
	}
	for _, bad := range []string{"", "Site", "-lead", "has_underscore", "../etc", "a b", "waytoolongprojectnamethatexceedsthelimit"} {
		assert.ErrorIs(t, ProjectName(bad), ErrInvalid, bad)
	}
}

func TestDomain(t *testing.T) {
	require.NoError(t, Domain("example.com"))
	require.NoError(t, Domain("blog.example.co.uk"))
	assert.ErrorIs(t, Domain("localhost"), ErrInvalid)
	assert.ErrorIs(t, Domain("Example.com"), ErrInvalid)
	assert.ErrorIs(t, Domain("exa mple.com"), ErrInvalid)
}

func TestMailbox(t *testing.T) {
	require.NoError(t, Mailbox("contact", "site-a"))
	assert.ErrorIs(t, Mailbox("Contact", "site-a"), ErrInvalid)
	assert.ErrorIs(t, Mailbox("first.last", "site-a"), ErrInvalid)
	assert.ErrorIs(t, Mailbox("averyveryverylongmailbox", "site-a-long"), ErrInvalid)
}

func TestStructAndPort(t *testing.T) {
	type input struct {
		Name     string `validate:"required,projectname"`
		Template string `validate:"omitempty,oneof=nextjs wordpress ghost"`
	}
	require.NoError(t, Struct(input{Name: "site-a", Template: "ghost"}))
	err := Struct(input{Name: "site-a", Template: "rails"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "Template failed oneof")

	require.NoError(t, Port(3000))
	assert.ErrorIs(t, Port(70000), ErrInvalid)
}
