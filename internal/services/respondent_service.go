package services

import "github.com/coursepulse/peerfeedback/internal/models"

// SessionStore persists feedback sessions and their respondent sets.
// Add operations are idempotent set insertions; removals of an absent
// member are no-ops.
type SessionStore interface {
	GetSession(sessionName, courseID string) (*models.FeedbackSession, error)
	AddStudentRespondent(email, sessionName, courseID string) error
	AddInstructorRespondent(email, sessionName, courseID string) error
	RemoveStudentRespondent(email, sessionName, courseID string) error
	RemoveInstructorRespondent(email, sessionName, courseID string) error
	ListRespondingStudents(sessionName, courseID string) ([]string, error)
	ListRespondingInstructors(sessionName, courseID string) ([]string, error)
}

// RespondentService tracks which students and instructors have submitted
// at least one response in a session, for response-rate reporting.
type RespondentService struct {
	store SessionStore
}

func NewRespondentService(store SessionStore) *RespondentService {
	return &RespondentService{store: store}
}

func (s *RespondentService) session(sessionName, courseID string) (*models.FeedbackSession, error) {
	sess, err := s.store.GetSession(sessionName, courseID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("feedback session not found")
	}
	return sess, nil
}

func (s *RespondentService) AddStudentRespondent(email, sessionName, courseID string) error {
	if _, err := s.session(sessionName, courseID); err != nil {
		return err
	}
	return s.store.AddStudentRespondent(email, sessionName, courseID)
}

func (s *RespondentService) AddInstructorRespondent(email, sessionName, courseID string) error {
	if _, err := s.session(sessionName, courseID); err != nil {
		return err
	}
	return s.store.AddInstructorRespondent(email, sessionName, courseID)
}

func (s *RespondentService) RemoveStudentRespondent(email, sessionName, courseID string) error {
	if _, err := s.session(sessionName, courseID); err != nil {
		return err
	}
	return s.store.RemoveStudentRespondent(email, sessionName, courseID)
}

func (s *RespondentService) RemoveInstructorRespondent(email, sessionName, courseID string) error {
	if _, err := s.session(sessionName, courseID); err != nil {
		return err
	}
	return s.store.RemoveInstructorRespondent(email, sessionName, courseID)
}

func (s *RespondentService) RespondingStudents(sessionName, courseID string) ([]string, error) {
	if _, err := s.session(sessionName, courseID); err != nil {
		return nil, err
	}
	return s.store.ListRespondingStudents(sessionName, courseID)
}

func (s *RespondentService) RespondingInstructors(sessionName, courseID string) ([]string, error) {
	if _, err := s.session(sessionName, courseID); err != nil {
		return nil, err
	}
	return s.store.ListRespondingInstructors(sessionName, courseID)
}

// ResponseRate is the combined number of responding students and
// instructors for the session.
func (s *RespondentService) ResponseRate(sessionName, courseID string) (int, error) {
	students, err := s.RespondingStudents(sessionName, courseID)
	if err != nil {
		return 0, err
	}
	instructors, err := s.RespondingInstructors(sessionName, courseID)
	if err != nil {
		return 0, err
	}
	return len(students) + len(instructors), nil
}
