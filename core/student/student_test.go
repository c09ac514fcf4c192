package student_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/user"
	"github.com/trezcool/awe-academy/storage/database/dummy"
	"github.com/trezcool/awe-academy/tests"
)

var (
	db        *dummydb.DB
	repo      student.Repository
	auditRepo audit.Repository
	svc       *student.Service
	actor     core.Actor
)

func setup(t *testing.T) {
	validate, _ := testutil.NewValidator()

	db = dummydb.Open()
	repo = dummydb.NewStudentRepository(db)
	auditRepo = dummydb.NewAuditRepository(db)
	svc = student.NewService(repo, validate)

	registrar := testutil.CreateUser(t, dummydb.NewUserRepository(db), "Rita", "registrar", "registrar@awe.test", "", user.RoleStudentOfficer, true)
	actor = registrar.Actor()
}

func newStudent(number string) student.NewStudent {
	return student.NewStudent{
		StudentNumber: number,
		FirstName:     "Amani",
		LastName:      "Kabila",
		DateOfBirth:   time.Date(2010, time.March, 14, 8, 0, 0, 0, time.UTC),
		Gender:        "F",
		Address:       "12 Avenue Lumumba",
		Email:         " Amani@AWE.test ",
		ClassYear:     "Grade 7",
	}
}

func TestService_Create(t *testing.T) {
	setup(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, actor, newStudent(" AWE-100 "))
	require.NoError(t, err)
	assert.Equal(t, "AWE-100", s.StudentNumber)
	assert.Equal(t, "amani@awe.test", s.Email)
	assert.Equal(t, student.StatusActive, s.Status)
	assert.Equal(t, time.Date(2010, time.March, 14, 0, 0, 0, 0, time.UTC), s.DateOfBirth)

	entries, err := auditRepo.QueryAuditEntries(ctx, audit.QueryFilter{UserID: actor.UserID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionStudentCreated, entries[0].Action)

	tests := []struct {
		name  string
		ns    student.NewStudent
		field string
	}{
		{"duplicate number", newStudent("AWE-100"), "student_number"},
		{"bad gender", func() student.NewStudent { ns := newStudent("AWE-101"); ns.Gender = "X"; return ns }(), "gender"},
		{"bad email", func() student.NewStudent { ns := newStudent("AWE-102"); ns.Email = "amani"; return ns }(), "email"},
		{"bad status", func() student.NewStudent { ns := newStudent("AWE-103"); ns.Status = "expelled"; return ns }(), "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, actor, tt.ns)
			assert.True(t, core.IsValidation(err), "failed! want validation error on %s, got %v", tt.field, err)
		})
	}
}

func TestService_Query(t *testing.T) {
	setup(t)
	ctx := context.Background()
	testutil.CreateStudent(t, repo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)
	testutil.CreateStudent(t, repo, "AWE-002", "Baraka", "Moyo", "", student.StatusActive)
	testutil.CreateStudent(t, repo, "AWE-003", "Chiku", "Ndege", "", student.StatusInactive)

	tests := []struct {
		filter student.QueryFilter
		want   []string
	}{
		{student.QueryFilter{}, []string{"AWE-001", "AWE-002", "AWE-003"}},
		{student.QueryFilter{Search: " moyo "}, []string{"AWE-002"}},
		{student.QueryFilter{Search: "awe-003"}, []string{"AWE-003"}},
		{student.QueryFilter{Status: "INACTIVE"}, []string{"AWE-003"}},
		{student.QueryFilter{Search: "nobody"}, nil},
	}
	for _, tt := range tests {
		got, err := svc.Query(ctx, tt.filter, []core.DBOrdering{{Field: "id", Ascending: true}})
		require.NoError(t, err)
		var numbers []string
		for _, s := range got {
			numbers = append(numbers, s.StudentNumber)
		}
		if !assert.ObjectsAreEqual(tt.want, numbers) {
			t.Errorf("failed! Query(%+v) = %v; want %v", tt.filter, numbers, tt.want)
		}
	}
}

func TestService_Update(t *testing.T) {
	setup(t)
	ctx := context.Background()
	s := testutil.CreateStudent(t, repo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)

	got, err := svc.Update(ctx, actor, s.ID, student.UpdateStudent{
		FirstName:   "Amani",
		LastName:    "Kabila-Moyo",
		DateOfBirth: s.DateOfBirth,
		Gender:      "F",
		Address:     "3 Rue du Lac",
		ClassYear:   "Grade 8",
		Status:      student.StatusInactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "AWE-001", got.StudentNumber)
	assert.Equal(t, "Kabila-Moyo", got.LastName)
	assert.False(t, got.IsActive())

	_, err = svc.Update(ctx, actor, s.ID, student.UpdateStudent{FirstName: "Amani"})
	assert.True(t, core.IsValidation(err))
	_, err = svc.Update(ctx, actor, 9999, student.UpdateStudent{
		FirstName: "A", LastName: "B", DateOfBirth: s.DateOfBirth, Gender: "M",
		Address: "x", ClassYear: "Grade 1", Status: student.StatusActive,
	})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Delete(t *testing.T) {
	setup(t)
	ctx := context.Background()
	feeRepo := dummydb.NewFeeRepository(db)
	assessed := testutil.CreateStudent(t, repo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)
	fresh := testutil.CreateStudent(t, repo, "AWE-002", "Baraka", "Moyo", "", student.StatusActive)

	f := testutil.CreateFee(t, feeRepo, "Tuition", "500")
	_, err := feeRepo.CreateStudentFee(ctx, fee.StudentFee{
		StudentID:     assessed.ID,
		FeeID:         f.ID,
		PaymentStatus: fee.StatusUnpaid,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, actor, assessed.ID)
	assert.True(t, core.IsValidation(err), "want validation error, got %v", err)
	assert.EqualError(t, err, student.ErrHasLedgerRecords.Error())
	_, err = svc.Get(ctx, assessed.ID)
	assert.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, actor, fresh.ID))
	_, err = svc.Get(ctx, fresh.ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(svc.Delete(ctx, actor, fresh.ID)))

	entries, err := auditRepo.QueryAuditEntries(ctx, audit.QueryFilter{Action: audit.ActionStudentDeleted})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Deleted student: AWE-002 (Baraka Moyo)", entries[0].Details)
}
