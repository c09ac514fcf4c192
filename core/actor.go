package core

import "fmt"

// Actor is the authenticated user a service call is made on behalf of.
type Actor struct {
	UserID int
	Role   string
}

func (a Actor) String() string {
	return fmt.Sprintf("user %d (%s)", a.UserID, a.Role)
}

// HasRole reports whether the actor holds one of `roles`. An empty list allows everyone.
func (a Actor) HasRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
