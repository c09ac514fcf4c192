package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core/user"
	"github.com/trezcool/awe-academy/tests"
)

func TestValidatePassword(t *testing.T) {
	validate, translator := testutil.NewValidator()

	tests := []struct {
		name    string
		pwd     string
		wantTag string
		wantMsg string
	}{
		{"too short", "Ab1$", "pwdminlen", "password must contain at least 8 characters"},
		{"whitespace", "Abc 123$xyz", "pwdnospace", "password must not contain whitespace"},
		{"all numeric", "1234567890", "pwdnotallnum", "password cannot be entirely numeric"},
		{"no special", "Abcdefg123", "pwdcplx", ""},
		{"no upper", "abcdefg12$", "pwdcplx", ""},
		{"similar to username", "Amani_kab1", "pwdtoosim", "password cannot be similar to user attributes"},
		{"valid", "Awe$0me-Pwd", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := user.ValidatePassword(validate, tt.pwd, "Amani Kabila", "amani_kab", "amani@awe.test")
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}

			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			if got := verrs[0].Tag(); got != tt.wantTag {
				t.Errorf("failed! tag = %v; want %v", got, tt.wantTag)
			}
			assert.Equal(t, "password", verrs[0].Field())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, verrs[0].Translate(translator))
			}
		})
	}
}

func TestValidatePassword_ignoresUserRules(t *testing.T) {
	validate, _ := testutil.NewValidator()

	// "awe" is below the username minimum, the name is blank and the email malformed
	err := user.ValidatePassword(validate, "N3w$ecret-1", "", "awe", "not-an-email")
	assert.NoError(t, err)

	err = user.ValidatePassword(validate, "", "", "awe", "")
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	for _, fe := range verrs {
		assert.Equal(t, "password", fe.Field())
	}
}

func TestNewUser_roleValidation(t *testing.T) {
	validate, translator := testutil.NewValidator()

	for _, role := range user.AllRoles {
		assert.True(t, user.IsValidRole(role), "IsValidRole(%s)", role)
	}

	err := validate.Struct(user.NewUser{
		Name:            "Frank",
		Username:        "frank",
		Role:            "janitor",
		Password:        "Awe$0me-Pwd",
		PasswordConfirm: "Awe$0me-Pwd",
	})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "role", verrs[0].Field())
	assert.Equal(t, "invalid role", verrs[0].Translate(translator))
}
