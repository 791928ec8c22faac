package user

import (
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStaff      Kind = "staff"
	KindClient     Kind = "client"
	KindAdmin      Kind = "admin"
	KindSuperAdmin Kind = "super-admin"
)

type User struct {
	UUID  uuid.UUID `json:"id" yaml:"id" db:"uuid"`
	Name  string    `json:"name" yaml:"name" db:"name"`
	Email string    `json:"email" yaml:"email" db:"email"`
	Kind  Kind      `json:"kind" yaml:"kind" db:"kind"`
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindStaff, KindClient, KindAdmin, KindSuperAdmin:
		return k, nil
	}
	return "", fmt.Errorf("unknown user kind %q", s)
}

func (k Kind) IsAdmin() bool {
	return k == KindAdmin || k == KindSuperAdmin
}

func (k Kind) IsClient() bool {
	return k == KindClient
}
