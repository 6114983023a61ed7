package api

import "errors"

// ErrDuplicate is returned by inserts whose key is already taken.
var ErrDuplicate = errors.New("duplicate key")

// Store is the persistence surface behind the router. Lookups return a nil
// record (not an error) when nothing matches.
type Store interface {
	AddRequest(r *RequestRecord) error
	ListRequests() ([]*RequestRecord, error)
	GetRequest(fileName string) (*RequestRecord, error)

	ListCollaborators() ([]*CollaboratorRecord, error)
	UpsertCollaborator(c *CollaboratorRecord) error
	DeleteCollaborator(index int) (bool, error)

	ListAdmins(scope string) ([]string, error)
	AddAdmin(scope, email string) error
	DeleteAdmin(scope, email string) (bool, error)

	AddUser(u *User) error
	FindUserByEmail(email string) (*User, error)
}

var _ Store = (*memoryStore)(nil)
