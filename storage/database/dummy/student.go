package dummydb

import (
	"context"
	"strings"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/student"
)

type studentRepository struct {
	conn
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{conn{db: db}}
}

func (repo *studentRepository) Atomic(_ context.Context, fn func(repo student.Repository) error) error {
	return repo.atomic(func(tx conn) error {
		return fn(&studentRepository{tx})
	})
}

func (repo *studentRepository) StudentNumberExists(_ context.Context, number string) (bool, error) {
	var exists bool
	err := repo.view("StudentNumberExists", func(t *tables) error {
		for _, s := range t.students {
			if strings.EqualFold(s.StudentNumber, number) {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	err := repo.update("CreateStudent", func(t *tables) error {
		s.ID = t.nextID("students")
		t.students[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *studentRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	var s student.Student
	err := repo.view("GetStudent", func(t *tables) error {
		var err error
		s, err = t.getStudent(id)
		return err
	})
	return s, err
}

func (t *tables) getStudent(id int) (student.Student, error) {
	s, ok := t.students[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	var students []student.Student
	err := repo.view("QueryStudents", func(t *tables) error {
		search := strings.ToLower(filter.Search)
		for _, s := range t.students {
			if search != "" &&
				!strings.Contains(strings.ToLower(s.StudentNumber), search) &&
				!strings.Contains(strings.ToLower(s.FullName()), search) {
				continue
			}
			if filter.Status != "" && s.Status != filter.Status {
				continue
			}
			if filter.ClassYear != "" && s.ClassYear != filter.ClassYear {
				continue
			}
			students = append(students, s)
		}
		return nil
	})

	sortByID(students, func(i int) int { return students[i].ID }, ordering)
	return students, err
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	err := repo.update("UpdateStudent", func(t *tables) error {
		if _, ok := t.students[s.ID]; !ok {
			return student.ErrNotFound
		}
		t.students[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *studentRepository) HasLedgerRecords(_ context.Context, id int) (bool, error) {
	var has bool
	err := repo.view("HasLedgerRecords", func(t *tables) error {
		for _, sf := range t.studentFees {
			if sf.StudentID == id {
				has = true
				return nil
			}
		}
		for _, d := range t.distributions {
			if d.StudentID == id {
				has = true
				return nil
			}
		}
		return nil
	})
	return has, err
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id int) error {
	return repo.update("DeleteStudent", func(t *tables) error {
		if _, ok := t.students[id]; !ok {
			return student.ErrNotFound
		}
		delete(t.students, id)
		return nil
	})
}
