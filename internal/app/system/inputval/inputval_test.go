package inputval

import (
	"testing"
	"time"
)

func TestIsValidCourse(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"CS115", true},
		{"CS 115", true},
		{"CS-115", true},
		{"MGT 103", true},
		{"cs 115", true},
		{"C 115", false},
		{"CSEE 115", false},
		{"CS 11", false},
		{"CS 1155", false},
		{"CS_115", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsValidCourse(tt.in); got != tt.want {
				t.Errorf("IsValidCourse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidDate(t *testing.T) {
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want bool
	}{
		{"2030-05-01", true},
		{"2031-02-28", true},
		{"2032-02-29", true}, // leap year
		{"2031-02-29", false},
		{"2030-13-01", false},
		{"2030-04-31", false},
		{"1899-12-31", false},
		{"2041-01-01", false},
		{"2040-12-31", true},
		{"2030-5-1", false},
		{"05/01/2030", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsValidDate(tt.in, now); got != tt.want {
				t.Errorf("IsValidDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidLocationAndType(t *testing.T) {
	if !IsValidLocation("Library") || !IsValidLocation("TBD") {
		t.Error("expected known locations to be valid")
	}
	if IsValidLocation("library") || IsValidLocation("Moon Base") {
		t.Error("expected unknown or miscased locations to be invalid")
	}
	if !IsValidGroupType("study-group") || !IsValidGroupType("project-group") {
		t.Error("expected group types to be valid")
	}
	if IsValidGroupType("party") {
		t.Error("expected unknown group type to be invalid")
	}
}

func TestIsValidObjectID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"507f1f77bcf86cd799439011", true},
		{"  507f1f77bcf86cd799439011  ", true},
		{"", false},
		{"507f1f77bcf86cd79943901", false},
		{"507f1f77bcf86cd79943901g", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsValidObjectID(tt.id); got != tt.want {
				t.Errorf("IsValidObjectID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	type input struct {
		Name     string `validate:"required,max=10,notnumeric" label:"Group name"`
		Capacity int    `validate:"min=2,max=15" label:"Capacity"`
		Location string `validate:"required,location" label:"Location"`
		Course   string `validate:"required,course" label:"Course"`
		Start    string `validate:"required,clock" label:"Start time"`
		Type     string `validate:"required,grouptype" label:"Group type"`
	}
	valid := input{Name: "Calc", Capacity: 5, Location: "Library", Course: "MA 221", Start: "14:00", Type: "study-group"}

	tests := []struct {
		name      string
		mutate    func(*input)
		wantFirst string
	}{
		{"valid", func(*input) {}, ""},
		{"missing name", func(in *input) { in.Name = "" }, "Group name is required."},
		{"name too long", func(in *input) { in.Name = "VeryLongGroupName" }, "Group name must be at most 10 characters."},
		{"numeric name", func(in *input) { in.Name = "12345" }, "Group name cannot be only numbers."},
		{"capacity low", func(in *input) { in.Capacity = 1 }, "Capacity must be at least 2."},
		{"capacity high", func(in *input) { in.Capacity = 16 }, "Capacity must be at most 15."},
		{"bad location", func(in *input) { in.Location = "Mars" }, "Location must be one of the campus locations."},
		{"bad course", func(in *input) { in.Course = "Calculus" }, "Course must be 2-3 letters followed by 3 digits (e.g. CS 115)."},
		{"bad clock", func(in *input) { in.Start = "2pm" }, "Start time must be a 24-hour time (HH:MM)."},
		{"bad type", func(in *input) { in.Type = "party" }, "Group type must be study-group or project-group."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			res := Validate(in)
			if tt.wantFirst == "" {
				if res.HasErrors() {
					t.Fatalf("unexpected errors: %s", res.All())
				}
				return
			}
			if res.First() != tt.wantFirst {
				t.Errorf("First() = %q, want %q", res.First(), tt.wantFirst)
			}
		})
	}
}

func TestValidateAt_UsesGivenClock(t *testing.T) {
	type input struct {
		Date string `validate:"required,date" label:"Meeting date"`
	}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		date string
		ok   bool
	}{
		{"2035-12-31", true},
		{"2036-01-10", false},
		{"2040-05-01", false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			res := ValidateAt(input{Date: tt.date}, now)
			if res.HasErrors() == tt.ok {
				t.Errorf("ValidateAt(%q) errors = %v, want ok=%v", tt.date, res.All(), tt.ok)
			}
		})
	}

	// A later clock widens the window.
	if res := ValidateAt(input{Date: "2036-01-10"}, now.AddDate(2, 0, 0)); res.HasErrors() {
		t.Errorf("2036-01-10 at 2027: %s", res.All())
	}
}

func TestResult(t *testing.T) {
	r := &Result{}
	if r.HasErrors() || r.First() != "" || r.All() != "" {
		t.Error("empty result should report nothing")
	}
	r.Errors = []FieldError{{Message: "Error 1"}, {Message: "Error 2"}}
	if r.First() != "Error 1" {
		t.Errorf("First() = %q", r.First())
	}
	if r.All() != "Error 1; Error 2" {
		t.Errorf("All() = %q", r.All())
	}
	if len(r.Messages()) != 2 {
		t.Errorf("Messages() = %v", r.Messages())
	}
}
