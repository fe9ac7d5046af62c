package domain

import "strings"

// MailUserMapping is one line of the virtual alias map.
type MailUserMapping struct {
	Email      string `json:"email"`
	SystemUser string `json:"systemUser"`
}

// SystemUserName derives the system account backing a mailbox. The project
// suffix is what teardown matches on, so it must stay stable.
func SystemUserName(localPart, project string) string {
	return localPart + "_" + project
}

// ProjectSuffix is the suffix shared by every system user of a project.
func ProjectSuffix(project string) string {
	return "_" + project
}

// LocalPart returns the part of an address before the @.
func LocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// MailPorts lists the tcp ports opened for the mail stack.
var MailPorts = []int{25, 587, 143, 993, 110, 995}
