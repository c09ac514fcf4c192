package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/user"
)

type userRepository struct {
	conn
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{conn{db: db}}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	return repo.view("CheckUniqueness", func(t *tables) error {
		exclUsrsLen := len(excludedUsers)
		if exclUsrsLen > 1 {
			sort.Slice(excludedUsers, func(i, j int) bool { return excludedUsers[i].ID < excludedUsers[j].ID })
		}

		for _, usr := range t.users {
			if isExcluded(usr, excludedUsers, exclUsrsLen) {
				continue
			}
			if usr.Username == username {
				return user.ErrUsernameExists
			}
			if email != "" && usr.Email == email {
				return user.ErrEmailExists
			}
		}
		return nil
	})
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.update("CreateUser", func(t *tables) error {
		usr.ID = t.nextID("users")
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var users []user.User
	err := repo.view("QueryUsers", func(t *tables) error {
		search := strings.ToLower(filter.Search)
		for _, u := range t.users {
			// users with search keyword matching any Name, Username or Email ?
			if search != "" &&
				!strings.Contains(strings.ToLower(u.Username), search) &&
				!strings.Contains(strings.ToLower(u.Email), search) &&
				!strings.Contains(strings.ToLower(u.Name), search) {
				continue
			}
			// users with any of the specified roles
			if len(filter.Roles) > 0 && !(core.Actor{Role: u.Role}).HasRole(filter.Roles...) {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
			users = append(users, u)
		}
		return nil
	})

	sortByID(users, func(i int) int { return users[i].ID }, ordering)
	return users, err
}

func (repo *userRepository) GetUserByID(_ context.Context, id int) (user.User, error) {
	var usr user.User
	err := repo.view("GetUserByID", func(t *tables) error {
		var ok bool
		if usr, ok = t.users[id]; !ok {
			return user.ErrNotFound
		}
		return nil
	})
	return usr, err
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	var usr user.User
	err := repo.view("GetUserByUsernameOrEmail", func(t *tables) error {
		for _, u := range t.users {
			if u.Username == username || (u.Email != "" && u.Email == username) {
				usr = u
				return nil
			}
		}
		return user.ErrNotFound
	})
	return usr, err
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.update("UpdateUser", func(t *tables) error {
		origUsr, ok := t.users[usr.ID]
		if !ok {
			return user.ErrNotFound
		}
		// only save set fields
		if usr.PasswordHash == nil {
			usr.PasswordHash = origUsr.PasswordHash
		}
		usr.CreatedAt = origUsr.CreatedAt
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func isExcluded(usr user.User, excludedUsers []user.User, n int) bool {
	if n <= 0 {
		return false
	}
	idx := sort.Search(n, func(i int) bool { return excludedUsers[i].ID >= usr.ID })
	return idx < n && excludedUsers[idx].ID == usr.ID
}

// sortByID orders rows by id, descending when the first ordering asks so.
func sortByID(rows interface{}, id func(i int) int, ordering []core.DBOrdering) {
	desc := len(ordering) > 0 && ordering[0].Field == "id" && !ordering[0].Ascending
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return id(i) > id(j)
		}
		return id(i) < id(j)
	})
}
