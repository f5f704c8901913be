package user

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/capdesk/capdesk/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	// password policy
	pwdMinLen     = 8
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceText   = "password must not contain whitespace"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to user attributes"
)

// InitValidators registers this package's custom validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that all roles in the field are known.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		var known bool
		for _, r := range AllRoles {
			if role == r {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

// validatePassword enforces the password policy against the user's attributes.
func validatePassword(pwd string, usr User) error {
	var flds []core.FieldError
	addErr := func(text string) {
		flds = append(flds, core.FieldError{Field: "password", Error: text})
	}

	if len(pwd) < pwdMinLen {
		addErr(pwdMinLenText)
	}
	if strings.ContainsAny(pwd, " \t\n") {
		addErr(pwdNoSpaceText)
	}

	var hasUpper, hasLower, hasDigit, allNum bool
	allNum = true
	for _, r := range pwd {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
			allNum = false
		case unicode.IsLower(r):
			hasLower = true
			allNum = false
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			allNum = false
		}
	}
	if allNum && pwd != "" {
		addErr(pwdNotAllNumText)
	}
	if !(hasUpper && hasLower && hasDigit && specialRegex.MatchString(pwd)) {
		addErr(pwdComplexityText)
	}
	if pwdTooSimilar(pwd, usr.Name, usr.Username, usr.Email) {
		addErr(pwdAttrSimText)
	}

	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// pwdTooSimilar reports whether pwd closely matches any of the given attributes.
func pwdTooSimilar(pwd string, attrs ...string) bool {
	lowPwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		m := difflib.NewMatcher(strings.Split(lowPwd, ""), strings.Split(attr, ""))
		if m.QuickRatio() >= pwdMaxSim {
			return true
		}
	}
	return false
}
