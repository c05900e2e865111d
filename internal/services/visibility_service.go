package services

import "github.com/coursepulse/peerfeedback/internal/models"

// VisibilityStore abstracts the reads visibility evaluation needs.
type VisibilityStore interface {
	ListResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error)
	ListStudentsForCourse(courseID string) ([]*models.Student, error)
	ListInstructorsForCourse(courseID string) ([]*models.Instructor, error)
}

// VisibilityService decides which responses a viewer may see and whether
// giver/recipient identities are unmasked for them. The decision logic is
// pure; the service only touches storage to scan a question's responses
// and to snapshot the course roster.
type VisibilityService struct {
	store VisibilityStore
}

func NewVisibilityService(store VisibilityStore) *VisibilityService {
	return &VisibilityService{store: store}
}

// RosterForCourse snapshots the current course membership.
func (s *VisibilityService) RosterForCourse(courseID string) (*CourseRoster, error) {
	students, err := s.store.ListStudentsForCourse(courseID)
	if err != nil {
		return nil, err
	}
	instructors, err := s.store.ListInstructorsForCourse(courseID)
	if err != nil {
		return nil, err
	}
	return NewCourseRoster(students, instructors), nil
}

// ViewableResponsesForQuestionInSection returns the responses of a question
// that the viewer is allowed to see, optionally restricted to a section.
// sectionFilter == "" means no section restriction; detail selects whether
// the giver side, recipient side, either, or both must match. Participants
// that no longer resolve on the roster are skipped silently.
func (s *VisibilityService) ViewableResponsesForQuestionInSection(
	question *models.FeedbackQuestion, viewerEmail string, role models.Role,
	sectionFilter string, detail models.SectionDetail,
) ([]*models.FeedbackResponse, error) {
	if role != models.RoleStudent && role != models.RoleInstructor {
		return nil, NewPreconditionError("the role of the requesting user has to be Student or Instructor")
	}
	if question == nil {
		return nil, NewInvalidError("question required")
	}

	responses, err := s.store.ListResponsesForQuestion(question.ID)
	if err != nil {
		return nil, err
	}
	roster, err := s.RosterForCourse(question.CourseID)
	if err != nil {
		return nil, err
	}

	viewable := make([]*models.FeedbackResponse, 0, len(responses))
	for _, r := range responses {
		if !matchesSection(r, sectionFilter, detail) {
			continue
		}
		if s.IsResponseVisibleTo(question, r, viewerEmail, role, roster) {
			viewable = append(viewable, r)
		}
	}
	return viewable, nil
}

func matchesSection(r *models.FeedbackResponse, section string, detail models.SectionDetail) bool {
	if section == "" {
		return true
	}
	giverMatch := r.GiverSection == section
	recipientMatch := r.RecipientSection == section
	switch detail {
	case models.SectionGiver:
		return giverMatch
	case models.SectionRecipient:
		return recipientMatch
	case models.SectionBoth:
		return giverMatch && recipientMatch
	default: // SectionEither and legacy callers passing no detail
		return giverMatch || recipientMatch
	}
}

// IsResponseVisibleTo applies the question's response visibility settings
// to a single response for the given viewer.
func (s *VisibilityService) IsResponseVisibleTo(
	question *models.FeedbackQuestion, response *models.FeedbackResponse,
	viewerEmail string, role models.Role, roster *CourseRoster,
) bool {
	if question == nil || response == nil {
		return false
	}
	if response.Giver == viewerEmail {
		return true
	}

	if role == models.RoleInstructor {
		return question.ShowsResponsesTo(models.ParticipantInstructors)
	}

	// Student viewer from here on.
	if question.ShowsResponsesTo(models.ParticipantStudents) {
		return true
	}
	if question.ShowsResponsesTo(models.ParticipantReceiver) && response.Recipient == viewerEmail {
		return true
	}

	viewer := roster.StudentForEmail(viewerEmail)
	if viewer == nil {
		return false
	}
	if question.ShowsResponsesTo(models.ParticipantReceiverTeamMembers) &&
		viewerInRecipientTeam(question, response, viewer, roster) {
		return true
	}
	if question.GiverType.IsTeam() && viewerInGiverTeam(response, viewer, roster) {
		return true
	}
	return false
}

// viewerInRecipientTeam resolves "is the viewer on the recipient's team".
// When the recipient slot holds a team name the check is direct membership;
// otherwise the recipient email must resolve to a roster student, and
// unresolvable recipients fail the check rather than erroring.
func viewerInRecipientTeam(question *models.FeedbackQuestion, response *models.FeedbackResponse,
	viewer *models.Student, roster *CourseRoster) bool {
	if question.RecipientType.IsTeam() {
		return viewer.Team == response.Recipient
	}
	recipient := roster.StudentForEmail(response.Recipient)
	return recipient != nil && recipient.Team == viewer.Team
}

// viewerInGiverTeam handles team-level giving, where the giver slot may hold
// either the team name itself or the email of the member who answered.
func viewerInGiverTeam(response *models.FeedbackResponse, viewer *models.Student, roster *CourseRoster) bool {
	if giver := roster.StudentForEmail(response.Giver); giver != nil {
		return giver.Team == viewer.Team
	}
	return response.Giver == viewer.Team
}

// IsNameVisibleTo decides whether the giver name (isGiverName) or recipient
// name of a response is unmasked for the viewer. A nil question hides
// everything: without question context nothing is visible.
func (s *VisibilityService) IsNameVisibleTo(
	question *models.FeedbackQuestion, response *models.FeedbackResponse,
	viewerEmail string, role models.Role, isGiverName bool, roster *CourseRoster,
) bool {
	if question == nil || response == nil {
		return false
	}

	// The giver always knows both identities; an individual recipient knows
	// their own counterpart, and a team recipient extends that to members.
	if response.Giver == viewerEmail {
		return true
	}
	if question.RecipientType.IsTeam() {
		if roster.IsStudentInTeam(viewerEmail, response.Recipient) {
			return true
		}
	} else if response.Recipient == viewerEmail {
		return true
	}

	showNameTo := question.ShowGiverNameTo
	if !isGiverName {
		showNameTo = question.ShowRecipientNameTo
	}
	for _, audience := range showNameTo {
		switch audience {
		case models.ParticipantInstructors:
			if role == models.RoleInstructor && roster.InstructorForEmail(viewerEmail) != nil {
				return true
			}
		case models.ParticipantStudents:
			if role == models.RoleStudent && roster.StudentForEmail(viewerEmail) != nil {
				return true
			}
		case models.ParticipantReceiver:
			if question.RecipientType.IsTeam() {
				if roster.IsStudentInTeam(viewerEmail, response.Recipient) {
					return true
				}
			} else if response.Recipient == viewerEmail {
				return true
			}
		case models.ParticipantReceiverTeamMembers:
			if question.RecipientType.IsTeam() {
				if roster.IsStudentInTeam(viewerEmail, response.Recipient) {
					return true
				}
			} else if roster.AreInSameTeam(response.Recipient, viewerEmail) {
				return true
			}
		case models.ParticipantOwnTeamMembers, models.ParticipantOwnTeam:
			if question.GiverType.IsTeam() {
				if roster.IsStudentInTeam(viewerEmail, response.Giver) {
					return true
				}
			} else if roster.AreInSameTeam(response.Giver, viewerEmail) {
				return true
			}
		}
	}
	return false
}
