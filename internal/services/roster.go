package services

import "github.com/coursepulse/peerfeedback/internal/models"

// CourseRoster is an immutable snapshot of a course's membership, indexed
// for the lookups visibility evaluation needs. Build one per request from
// the roster store; it never reaches back into storage.
type CourseRoster struct {
	studentsByEmail   map[string]*models.Student
	instructorByEmail map[string]*models.Instructor
	studentsByTeam    map[string][]*models.Student
}

func NewCourseRoster(students []*models.Student, instructors []*models.Instructor) *CourseRoster {
	r := &CourseRoster{
		studentsByEmail:   make(map[string]*models.Student, len(students)),
		instructorByEmail: make(map[string]*models.Instructor, len(instructors)),
		studentsByTeam:    map[string][]*models.Student{},
	}
	for _, s := range students {
		r.studentsByEmail[s.Email] = s
		r.studentsByTeam[s.Team] = append(r.studentsByTeam[s.Team], s)
	}
	for _, i := range instructors {
		r.instructorByEmail[i.Email] = i
	}
	return r
}

// StudentForEmail returns nil for emails not on the roster, e.g. a
// participant who has since left the course.
func (r *CourseRoster) StudentForEmail(email string) *models.Student {
	return r.studentsByEmail[email]
}

func (r *CourseRoster) InstructorForEmail(email string) *models.Instructor {
	return r.instructorByEmail[email]
}

// TeamOfStudent returns the team name, or "" when the email does not
// resolve to a current student.
func (r *CourseRoster) TeamOfStudent(email string) string {
	if s := r.studentsByEmail[email]; s != nil {
		return s.Team
	}
	return ""
}

// IsStudentInTeam resolves membership of email in the named team.
func (r *CourseRoster) IsStudentInTeam(email, team string) bool {
	s := r.studentsByEmail[email]
	return s != nil && s.Team == team
}

// AreInSameTeam reports whether both emails resolve to students on one team.
func (r *CourseRoster) AreInSameTeam(emailA, emailB string) bool {
	a := r.studentsByEmail[emailA]
	b := r.studentsByEmail[emailB]
	return a != nil && b != nil && a.Team == b.Team
}

func (r *CourseRoster) StudentsInTeam(team string) []*models.Student {
	return r.studentsByTeam[team]
}
