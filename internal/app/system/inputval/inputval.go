// internal/app/system/inputval/inputval.go
//
// Package inputval validates group and user input.
//
// Struct validation uses go-playground/validator with `validate` tags and a
// `label` tag for human-readable messages:
//
//	type input struct {
//	    Course string `validate:"required,course" label:"Course"`
//	}
//	res := inputval.Validate(in)
//	if res.HasErrors() { ... res.All() ... }
//
// Custom rules registered here: location, course, clock, date, grouptype,
// notnumeric, objectid.
package inputval

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Locations is the fixed set of campus meeting places.
var Locations = []string{
	"Edwin A. Stevens",
	"Library",
	"Gateway South",
	"Gateway North",
	"North Building",
	"Babbio",
	"ABS",
	"Burchard",
	"Carnegie",
	"Davidson",
	"Altorfer",
	"Kidde",
	"McLean",
	"Morton",
	"Nicoll",
	"Pierce",
	"Rocco",
	"TBD",
}

// GroupTypes lists accepted group types.
var GroupTypes = []string{"study-group", "project-group"}

var (
	courseRE  = regexp.MustCompile(`^[A-Za-z]{2,3}[-\s]?\d{3}$`)
	clockRE   = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)
	dateRE    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numericRE = regexp.MustCompile(`^\d+$`)
)

// IsValidLocation reports whether s is one of Locations (exact match).
func IsValidLocation(s string) bool {
	for _, l := range Locations {
		if s == l {
			return true
		}
	}
	return false
}

// IsValidCourse reports whether s looks like a course code: two or three
// letters, an optional dash or space, then three digits ("CS 115", "MA-221").
func IsValidCourse(s string) bool {
	return courseRE.MatchString(strings.TrimSpace(s))
}

// IsValidClock reports whether s is a 24-hour "HH:MM" time.
func IsValidClock(s string) bool {
	return clockRE.MatchString(s)
}

// IsValidDate reports whether s is a real calendar date in YYYY-MM-DD form
// with a year between 1900 and ten years after now.
func IsValidDate(s string, now time.Time) bool {
	if !dateRE.MatchString(s) {
		return false
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return false
	}
	return d.Year() >= 1900 && d.Year() <= now.Year()+10
}

// IsValidGroupType reports whether s is an accepted group type.
func IsValidGroupType(s string) bool {
	for _, t := range GroupTypes {
		if s == t {
			return true
		}
	}
	return false
}

// IsNumeric reports whether s consists only of digits.
func IsNumeric(s string) bool {
	return numericRE.MatchString(s)
}

// IsValidObjectID reports whether s is a 24-character hex ObjectID.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Result collects field errors from Validate.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any rule failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Messages returns every message in field order.
func (r *Result) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

var (
	vOnce sync.Once
	v     *validator.Validate
)

func engine() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
		must(v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
			return IsValidLocation(fl.Field().String())
		}))
		must(v.RegisterValidation("course", func(fl validator.FieldLevel) bool {
			return IsValidCourse(fl.Field().String())
		}))
		must(v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			return IsValidClock(fl.Field().String())
		}))
		must(v.RegisterValidationCtx("date", func(ctx context.Context, fl validator.FieldLevel) bool {
			return IsValidDate(fl.Field().String(), clockFrom(ctx))
		}))
		must(v.RegisterValidation("grouptype", func(fl validator.FieldLevel) bool {
			return IsValidGroupType(fl.Field().String())
		}))
		must(v.RegisterValidation("notnumeric", func(fl validator.FieldLevel) bool {
			return !IsNumeric(fl.Field().String())
		}))
		must(v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
			return IsValidObjectID(fl.Field().String())
		}))
	})
	return v
}

type nowKey struct{}

// clockFrom returns the reference time stored by ValidateAt.
func clockFrom(ctx context.Context) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now
	}
	return time.Now()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate runs the struct's validate tags against the wall clock and
// returns every failure.
func Validate(s any) *Result {
	return ValidateAt(s, time.Now())
}

// ValidateAt is Validate with now as the reference time for date rules.
func ValidateAt(s any, now time.Time) *Result {
	res := &Result{}
	err := engine().StructCtx(context.WithValue(context.Background(), nowKey{}, now), s)
	if err == nil {
		return res
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s.", label, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s.", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, fe.Param())
	case "location":
		return label + " must be one of the campus locations."
	case "course":
		return label + " must be 2-3 letters followed by 3 digits (e.g. CS 115)."
	case "clock":
		return label + " must be a 24-hour time (HH:MM)."
	case "date":
		return label + " must be a valid date (YYYY-MM-DD)."
	case "grouptype":
		return label + " must be study-group or project-group."
	case "notnumeric":
		return label + " cannot be only numbers."
	case "objectid":
		return label + " must be a valid id."
	default:
		return label + " is invalid."
	}
}
