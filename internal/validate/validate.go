// Package validate checks operator supplied identifiers before they reach
// file paths, unit names or system accounts.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid input")

var (
	projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,31}$`)
	mailboxPattern     = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// maxSystemUser is the useradd limit on account names.
const maxSystemUser = 32

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	_ = val.RegisterValidation("projectname", func(fl validator.FieldLevel) bool {
		return projectNamePattern.MatchString(fl.Field().String())
	})
	_ = val.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxPattern.MatchString(fl.Field().String())
	})
	return val
}

// Struct validates a tagged struct.
func Struct(s any) error {
	if err := v.Struct(s); err != nil {
		return wrap(err)
	}
	return nil
}

// ProjectName checks a registry key: lowercase letters, digits and dashes.
func ProjectName(name string) error {
	return field("project name", name, "required,projectname")
}

// Domain checks a fully qualified domain name.
func Domain(domain string) error {
	return field("domain", domain, "required,fqdn,lowercase")
}

// Mailbox checks the local part of an address and that the derived system
// account fits the account name limit.
func Mailbox(local, project string) error {
	if err := field("mailbox", local, "required,mailbox"); err != nil {
		return err
	}
	if n := len(local) + 1 + len(project); n > maxSystemUser {
		return fmt.Errorf("%w: mailbox %q with project %q exceeds %d characters", ErrInvalid, local, project, maxSystemUser)
	}
	return nil
}

// Port checks a TCP port number.
func Port(port int) error {
	if err := v.Var(port, "min=1,max=65535"); err != nil {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, port)
	}
	return nil
}

func field(label, value, tag string) error {
	if err := v.Var(value, tag); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalid, label, value)
	}
	return nil
}

func wrap(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, ", "))
}
