// internal/app/studygroups/input.go
package studygroups

import (
	"strings"
	"time"

	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/htmlsanitize"
	"github.com/dalemusser/coflow/internal/app/system/inputval"
	"github.com/dalemusser/coflow/internal/app/system/normalize"
	"github.com/dalemusser/coflow/internal/app/system/timeslot"
	"github.com/dalemusser/coflow/internal/domain/models"
)

// GroupInput is the full set of fields for a new group.
type GroupInput struct {
	GroupName   string   `validate:"required,max=100,notnumeric" label:"Group name"`
	Description string   `validate:"max=1000" label:"Description"`
	Capacity    int      `validate:"min=2,max=15" label:"Capacity"`
	Location    string   `validate:"required,location" label:"Location"`
	Course      string   `validate:"required,course" label:"Course"`
	MeetingDate string   `validate:"required,date" label:"Meeting date"`
	StartTime   string   `validate:"required,clock" label:"Start time"`
	EndTime     string   `validate:"required,clock" label:"End time"`
	GroupType   string   `validate:"required,grouptype" label:"Group type"`
	Tags        []string `validate:"max=20,dive,required,max=40" label:"Tags"`
}

// GroupChanges lists the fields an update touches. Nil fields (and a nil
// Tags slice) are left as they are; an empty non-nil Tags clears the tags.
type GroupChanges struct {
	GroupName   *string
	Description *string
	Capacity    *int
	Location    *string
	Course      *string
	MeetingDate *string
	StartTime   *string
	EndTime     *string
	GroupType   *string
	Tags        []string
}

// clean strips markup and normalizes whitespace.
func (in GroupInput) clean() GroupInput {
	in.GroupName = normalize.Name(htmlsanitize.PlainText(in.GroupName))
	in.Description = htmlsanitize.PlainText(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Course = normalize.Name(htmlsanitize.PlainText(in.Course))
	in.MeetingDate = strings.TrimSpace(in.MeetingDate)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.GroupType = strings.TrimSpace(in.GroupType)
	if in.Tags != nil {
		tags := make([]string, len(in.Tags))
		for i, t := range in.Tags {
			tags[i] = htmlsanitize.PlainText(t)
		}
		in.Tags = normalize.Tags(tags)
	}
	return in
}

// validate checks every field against now and reports all failures at
// once. With checkDate the meeting date must also be today or later.
func (in GroupInput) validate(now time.Time, today string, checkDate bool) error {
	res := inputval.ValidateAt(in, now)
	msgs := res.Messages()

	bad := make(map[string]bool, len(res.Errors))
	for _, fe := range res.Errors {
		bad[fe.Field] = true
	}
	if !bad["Start time"] && !bad["End time"] {
		if _, err := timeslot.New(in.MeetingDate, in.StartTime, in.EndTime); err != nil {
			msgs = append(msgs, "End time must be later than start time.")
		}
	}
	if checkDate && !bad["Meeting date"] && in.MeetingDate < today {
		msgs = append(msgs, "Meeting date cannot be in the past.")
	}
	return apperr.Messages(msgs)
}

func inputFromGroup(g models.Group) GroupInput {
	return GroupInput{
		GroupName:   g.GroupName,
		Description: g.Description,
		Capacity:    g.Capacity,
		Location:    g.Location,
		Course:      g.Course,
		MeetingDate: g.MeetingDate,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		GroupType:   g.GroupType,
		Tags:        append([]string(nil), g.Tags...),
	}
}

// apply overlays c on in.
func (c GroupChanges) apply(in GroupInput) GroupInput {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&in.GroupName, c.GroupName)
	set(&in.Description, c.Description)
	set(&in.Location, c.Location)
	set(&in.Course, c.Course)
	set(&in.MeetingDate, c.MeetingDate)
	set(&in.StartTime, c.StartTime)
	set(&in.EndTime, c.EndTime)
	set(&in.GroupType, c.GroupType)
	if c.Capacity != nil {
		in.Capacity = *c.Capacity
	}
	if c.Tags != nil {
		in.Tags = c.Tags
	}
	return in
}

// diff returns the update that turns g into in, plus the changed field names.
func diff(g models.Group, in GroupInput) (models.GroupUpdate, []string) {
	var (
		u      models.GroupUpdate
		fields []string
	)
	str := func(name, old, v string, dst **string) {
		if old != v {
			*dst = &v
			fields = append(fields, name)
		}
	}
	str("group_name", g.GroupName, in.GroupName, &u.GroupName)
	str("description", g.Description, in.Description, &u.Description)
	str("location", g.Location, in.Location, &u.Location)
	str("course", g.Course, in.Course, &u.Course)
	str("meeting_date", g.MeetingDate, in.MeetingDate, &u.MeetingDate)
	str("start_time", g.StartTime, in.StartTime, &u.StartTime)
	str("end_time", g.EndTime, in.EndTime, &u.EndTime)
	str("group_type", g.GroupType, in.GroupType, &u.GroupType)
	if g.Capacity != in.Capacity {
		c := in.Capacity
		u.Capacity = &c
		fields = append(fields, "capacity")
	}
	if !sameStrings(g.Tags, in.Tags) {
		u.Tags = append([]string{}, in.Tags...)
		fields = append(fields, "tags")
	}
	return u, fields
}

// revert returns the update restoring g's values for every field u sets.
func revert(g models.Group, u models.GroupUpdate) models.GroupUpdate {
	var r models.GroupUpdate
	pick := func(changed *string, old string, dst **string) {
		if changed != nil {
			v := old
			*dst = &v
		}
	}
	pick(u.GroupName, g.GroupName, &r.GroupName)
	pick(u.Description, g.Description, &r.Description)
	pick(u.Location, g.Location, &r.Location)
	pick(u.Course, g.Course, &r.Course)
	pick(u.MeetingDate, g.MeetingDate, &r.MeetingDate)
	pick(u.StartTime, g.StartTime, &r.StartTime)
	pick(u.EndTime, g.EndTime, &r.EndTime)
	pick(u.GroupType, g.GroupType, &r.GroupType)
	if u.Capacity != nil {
		c := g.Capacity
		r.Capacity = &c
	}
	if u.Tags != nil {
		r.Tags = append([]string{}, g.Tags...)
	}
	return r
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
