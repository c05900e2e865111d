package models

import "time"

// ParticipantType enumerates who can give, receive, or view feedback.
// The same enumeration doubles as the visibility audience of a question.
type ParticipantType string

const (
	ParticipantSelf                ParticipantType = "SELF"
	ParticipantStudents            ParticipantType = "STUDENTS"
	ParticipantInstructors         ParticipantType = "INSTRUCTORS"
	ParticipantTeams               ParticipantType = "TEAMS"
	ParticipantOwnTeam             ParticipantType = "OWN_TEAM"
	ParticipantOwnTeamMembers      ParticipantType = "OWN_TEAM_MEMBERS"
	ParticipantReceiver            ParticipantType = "RECEIVER"
	ParticipantReceiverTeamMembers ParticipantType = "RECEIVER_TEAM_MEMBERS"
	ParticipantNone                ParticipantType = "NONE"
	ParticipantGeneral             ParticipantType = "GENERAL"
)

// IsTeam reports whether the participant slot holds a team name rather
// than an individual email.
func (t ParticipantType) IsTeam() bool {
	return t == ParticipantTeams || t == ParticipantOwnTeam
}

// IsTeamSemantic reports whether a question side with this type encodes a
// team relationship, i.e. the response becomes stale once the giver or
// recipient moves to a different team.
func (t ParticipantType) IsTeamSemantic() bool {
	switch t {
	case ParticipantTeams, ParticipantOwnTeam, ParticipantOwnTeamMembers, ParticipantReceiverTeamMembers:
		return true
	default:
		return false
	}
}

// Role of a user requesting feedback data.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// SectionDetail selects which side of a response a section filter applies to.
type SectionDetail string

const (
	SectionGiver     SectionDetail = "GIVER"
	SectionRecipient SectionDetail = "RECIPIENT"
	SectionBoth      SectionDetail = "BOTH"
	SectionEither    SectionDetail = "EITHER"
)

// FeedbackQuestion belongs to one feedback session of a course.
type FeedbackQuestion struct {
	ID                  string
	CourseID            string
	SessionName         string
	QuestionNumber      int
	GiverType           ParticipantType
	RecipientType       ParticipantType
	ShowResponsesTo     []ParticipantType
	ShowGiverNameTo     []ParticipantType
	ShowRecipientNameTo []ParticipantType
}

func containsType(types []ParticipantType, t ParticipantType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

// ShowsResponsesTo reports whether t may see response bodies.
func (q *FeedbackQuestion) ShowsResponsesTo(t ParticipantType) bool {
	return containsType(q.ShowResponsesTo, t)
}

// ShowsGiverNameTo reports whether t may see the giver identity unmasked.
func (q *FeedbackQuestion) ShowsGiverNameTo(t ParticipantType) bool {
	return containsType(q.ShowGiverNameTo, t)
}

// ShowsRecipientNameTo reports whether t may see the recipient identity unmasked.
func (q *FeedbackQuestion) ShowsRecipientNameTo(t ParticipantType) bool {
	return containsType(q.ShowRecipientNameTo, t)
}

// FeedbackResponse is one submitted answer. Giver and Recipient each hold
// an email or a team name depending on the question's participant types.
// (QuestionID, Giver, Recipient) is unique among live responses.
type FeedbackResponse struct {
	ID               string
	QuestionID       string
	CourseID         string
	SessionName      string
	Giver            string
	GiverSection     string
	Recipient        string
	RecipientSection string
	Details          string // opaque answer payload, question-type dependent
	SubmittedAt      time.Time
	UpdatedAt        time.Time
}

// ResponseComment is attached to exactly one response. GiverSection and
// ReceiverSection are denormalized copies of the parent response's
// sections and must always match them.
type ResponseComment struct {
	ID              string
	ResponseID      string
	QuestionID      string
	CourseID        string
	SessionName     string
	GiverEmail      string
	Text            string
	FromParticipant bool // true when left by the giver of the response itself
	GiverSection    string
	ReceiverSection string
	CreatedAt       time.Time
}

// FeedbackSession identifies one feedback collection round of a course.
// Respondent membership is tracked by the session store.
type FeedbackSession struct {
	Name      string
	CourseID  string
	CreatedAt time.Time
}

// Student is a roster row; not owned by this module.
type Student struct {
	Email    string
	Name     string
	CourseID string
	Team     string
	Section  string
}

// Instructor is a roster row; not owned by this module.
type Instructor struct {
	Email    string
	Name     string
	CourseID string
}
