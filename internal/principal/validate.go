package principal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"academics/internal/apperr"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// MinimumAge is the youngest age, in whole years, a principal may be registered with.
const MinimumAge = 4

var (
	idPatterns = map[Kind]*regexp.Regexp{
		KindAdmin:   regexp.MustCompile(`^A_\d{3}$`),
		KindFaculty: regexp.MustCompile(`^F_\d{3}$`),
		KindStudent: regexp.MustCompile(`^S_\d{3}$`),
	}
	namePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z\s.]*$`)
	emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)
)

// NewPrincipal is the input for creating a principal.
type NewPrincipal struct {
	Kind      Kind      `json:"kind" validate:"required,oneof=admin faculty student"`
	ID        string    `json:"u_id" validate:"required"`
	Name      string    `json:"name" validate:"required,person_name"`
	Email     string    `json:"email" validate:"required,school_email"`
	Phone     string    `json:"phone" validate:"omitempty,numeric,len=10"`
	DOB       string    `json:"dob" validate:"required,datetime=2006-01-02"`
	Password  string    `json:"password" validate:"omitempty,min=6,max=72"`
	AdminType AdminType `json:"type" validate:"omitempty,oneof=super normal"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("school_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(NewPrincipal)
		if re, ok := idPatterns[in.Kind]; ok && in.ID != "" && !re.MatchString(in.ID) {
			sl.ReportError(in.ID, "ID", "u_id", "principal_id", string(in.Kind))
		}
		if in.Kind != KindAdmin && in.AdminType != "" {
			sl.ReportError(in.AdminType, "AdminType", "type", "admin_only", "")
		}
	}, NewPrincipal{})
	return v
}

var messages = map[string]string{
	"required":     "%s is required",
	"oneof":        "%s has an unsupported value",
	"person_name":  "%s must start with a letter and contain only letters, spaces and dots",
	"school_email": "%s is not a valid email address",
	"numeric":      "%s must contain digits only",
	"len":          "%s must be exactly 10 digits",
	"datetime":     "%s must be a date in YYYY-MM-DD form",
	"min":          "%s is too short",
	"max":          "%s is too long",
	"admin_only":   "%s is only valid for admins",
}

// Validate checks the input against the format rules and the calendar at now.
// It never touches storage.
func (in NewPrincipal) Validate(now time.Time) (time.Time, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return time.Time{}, fieldError(in.Kind, verrs[0])
		}
		return time.Time{}, apperr.Wrap(apperr.Validation, "invalid input", err)
	}
	dob, _ := time.Parse(DateLayout, in.DOB)
	today := Day(now)
	if !dob.Before(today) {
		return time.Time{}, apperr.New(apperr.Validation, "date of birth cannot be today or in the future").With("field", "dob")
	}
	if age(dob, today) < MinimumAge {
		return time.Time{}, apperr.Newf(apperr.Validation, "minimum age is %d years", MinimumAge).With("field", "dob")
	}
	return dob, nil
}

func fieldError(kind Kind, fe validator.FieldError) error {
	field := strings.ToLower(fe.Field())
	switch fe.Field() {
	case "ID":
		field = "u_id"
	case "AdminType":
		field = "type"
	case "DOB":
		field = "dob"
	}
	if fe.Tag() == "principal_id" {
		prefix := strings.ToUpper(string(kind[:1]))
		return apperr.Newf(apperr.Validation, "%s ID must be in format %s_XXX (e.g. %s_001)", kind, prefix, prefix).With("field", field)
	}
	format, ok := messages[fe.Tag()]
	if !ok {
		format = "%s is invalid"
	}
	return apperr.New(apperr.Validation, fmt.Sprintf(format, field)).With("field", field)
}

// ValidID reports whether id has the identifier format of kind.
func ValidID(kind Kind, id string) bool {
	re, ok := idPatterns[kind]
	return ok && re.MatchString(id)
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func age(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years
}
