package transition

import (
	"time"

	"idcore/pkg/domain"
)

// Authorize overwrites the entity's authorization with key, stamped with the
// time now returns. Whether an authorization may be replaced is decided by
// the caller before this runs.
func Authorize(key, userName, userEmail string, now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}
	return func(current *domain.Entity, _ int) (Outcome, error) {
		next := current.Clone()
		next.Authorization = &domain.Authorization{
			Key: key,
			User: &domain.AuthorizedUser{
				Name:      userName,
				Email:     userEmail,
				Timestamp: now().UnixMilli(),
			},
		}
		return Mutated(next), nil
	}
}

// Deauthorize removes the entity's authorization.
func Deauthorize() Func {
	return func(current *domain.Entity, _ int) (Outcome, error) {
		next := current.Clone()
		next.Authorization = nil
		return Mutated(next), nil
	}
}
