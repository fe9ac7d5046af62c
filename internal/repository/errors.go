package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrExists indicates a project name is already registered.
	ErrExists = errors.New("repository: project already exists")
	// ErrDomainInUse indicates another project already owns a domain.
	ErrDomainInUse = errors.New("repository: domain already linked to another project")
	// ErrLocked indicates the registry lock could not be acquired in time.
	ErrLocked = errors.New("repository: registry is locked")
)
