package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/student"
)

var studentColumns = []string{
	"id", "student_number", "first_name", "last_name", "date_of_birth", "gender", "address",
	"phone", "email", "class_year", "status", "created_at", "updated_at",
}

var studentOrdering = map[string]string{
	"id":             "id",
	"student_number": "student_number",
	"first_name":     "first_name",
	"last_name":      "last_name",
	"class_year":     "class_year",
	"created_at":     "created_at",
}

type studentRow struct {
	ID            int         `db:"id"`
	StudentNumber string      `db:"student_number"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	DateOfBirth   time.Time   `db:"date_of_birth"`
	Gender        string      `db:"gender"`
	Address       string      `db:"address"`
	Phone         null.String `db:"phone"`
	Email         null.String `db:"email"`
	ClassYear     string      `db:"class_year"`
	Status        string      `db:"status"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:            r.ID,
		StudentNumber: r.StudentNumber,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		DateOfBirth:   r.DateOfBirth,
		Gender:        r.Gender,
		Address:       r.Address,
		Phone:         r.Phone.String,
		Email:         r.Email.String,
		ClassYear:     r.ClassYear,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// getStudent is shared with the ledger repositories, which check the student they write for.
func (s store) getStudent(ctx context.Context, id int) (student.Student, error) {
	var row studentRow
	if err := s.get(ctx, &row, psql.Select(studentColumns...).From("students").Where(sq.Eq{"id": id})); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return row.student(), nil
}

type studentRepository struct {
	store
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{newStore(db)}
}

func (repo *studentRepository) Atomic(ctx context.Context, fn func(repo student.Repository) error) error {
	return repo.atomic(ctx, func(tx store) error {
		return fn(&studentRepository{tx})
	})
}

func (repo *studentRepository) StudentNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	b := psql.Select().Column(sq.Expr("EXISTS(SELECT 1 FROM students WHERE LOWER(student_number) = LOWER(?))", number))
	if err := repo.get(ctx, &exists, b); err != nil {
		return false, errors.Wrap(err, "checking student number")
	}
	return exists, nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	b := psql.Insert("students").
		Columns("student_number", "first_name", "last_name", "date_of_birth", "gender", "address",
			"phone", "email", "class_year", "status", "created_at", "updated_at").
		Values(s.StudentNumber, s.FirstName, s.LastName, s.DateOfBirth, s.Gender, s.Address,
			null.NewString(s.Phone, s.Phone != ""), null.NewString(s.Email, s.Email != ""),
			s.ClassYear, s.Status, s.CreatedAt.UTC(), s.UpdatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &s.ID, b); err != nil {
		if isUniqueViolation(err, "students_student_number_key") {
			return student.Student{}, core.NewValidationError(student.ErrStudentNumberExists,
				core.FieldError{Field: "student_number", Error: student.ErrStudentNumberExists.Error()})
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	return repo.getStudent(ctx, id)
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	b := psql.Select(studentColumns...).From("students")

	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"student_number": val},
			sq.Expr("(first_name || ' ' || last_name) ILIKE ?", val),
		})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}
	if filter.ClassYear != "" {
		b = b.Where(sq.Eq{"class_year": filter.ClassYear})
	}
	b = orderBy(b, ordering, studentOrdering, "id")

	var rows []studentRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	b := psql.Update("students").
		Set("first_name", s.FirstName).
		Set("last_name", s.LastName).
		Set("date_of_birth", s.DateOfBirth).
		Set("gender", s.Gender).
		Set("address", s.Address).
		Set("phone", null.NewString(s.Phone, s.Phone != "")).
		Set("email", null.NewString(s.Email, s.Email != "")).
		Set("class_year", s.ClassYear).
		Set("status", s.Status).
		Set("updated_at", s.UpdatedAt.UTC()).
		Where(sq.Eq{"id": s.ID}).
		Suffix("RETURNING " + joinColumns(studentColumns))

	var row studentRow
	if err := repo.get(ctx, &row, b); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return row.student(), nil
}

func (repo *studentRepository) HasLedgerRecords(ctx context.Context, id int) (bool, error) {
	var has bool
	b := psql.Select().Column(sq.Expr(
		"EXISTS(SELECT 1 FROM student_fees WHERE student_id = ?) OR EXISTS(SELECT 1 FROM supply_distributions WHERE student_id = ?)",
		id, id))
	if err := repo.get(ctx, &has, b); err != nil {
		return false, errors.Wrap(err, "checking student records")
	}
	return has, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id int) error {
	n, err := repo.execute(ctx, psql.Delete("students").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
