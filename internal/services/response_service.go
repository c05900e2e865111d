package services

import (
	"strings"
	"time"

	"github.com/coursepulse/peerfeedback/internal/models"
)

// ResponseStore abstracts response persistence. InsertResponse must
// reject a duplicate (question, giver, recipient) triple with a conflict
// error so that at most one creator wins under concurrency.
type ResponseStore interface {
	GetResponse(id string) (*models.FeedbackResponse, error)
	GetResponseForTriple(questionID, giver, recipient string) (*models.FeedbackResponse, error)
	ListResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error)
	ListResponsesForSession(sessionName, courseID string) ([]*models.FeedbackResponse, error)
	ListResponsesFromGiverForCourse(courseID, giver string) ([]*models.FeedbackResponse, error)
	ListResponsesForReceiverForCourse(courseID, recipient string) ([]*models.FeedbackResponse, error)
	ListResponsesFromGiverForQuestion(questionID, giver string) ([]*models.FeedbackResponse, error)
	ListResponsesForReceiverForQuestion(questionID, recipient string) ([]*models.FeedbackResponse, error)
	InsertResponse(r *models.FeedbackResponse) (*models.FeedbackResponse, error)
	UpdateResponse(r *models.FeedbackResponse) error
	DeleteResponse(id string) error
	DeleteResponses(q ResponseDeletionQuery) ([]string, error)
}

// QuestionStore provides question configuration to the cascades.
type QuestionStore interface {
	GetQuestion(id string) (*models.FeedbackQuestion, error)
}

// ResponseUpdate addresses an existing response; nil fields keep their
// prior values.
type ResponseUpdate struct {
	ID               string
	Giver            *string
	GiverSection     *string
	Recipient        *string
	RecipientSection *string
	Details          *string
}

// ResponseDeletionQuery filters bulk deletion. Zero-value fields are
// ignored; at least one must be set.
type ResponseDeletionQuery struct {
	CourseID    string
	SessionName string
	QuestionID  string
}

func (q ResponseDeletionQuery) IsEmpty() bool {
	return q.CourseID == "" && q.SessionName == "" && q.QuestionID == ""
}

// Matches reports whether the response falls under the query.
func (q ResponseDeletionQuery) Matches(r *models.FeedbackResponse) bool {
	if q.CourseID != "" && r.CourseID != q.CourseID {
		return false
	}
	if q.SessionName != "" && r.SessionName != q.SessionName {
		return false
	}
	if q.QuestionID != "" && r.QuestionID != q.QuestionID {
		return false
	}
	return true
}

// ResponseService is the cascade engine: every mutation of a response, and
// every roster-driven rewrite or deletion, goes through here so that
// comments and session respondent sets stay consistent.
type ResponseService struct {
	responses ResponseStore
	comments  CommentStore
	questions QuestionStore
	sessions  SessionStore
	now       func() time.Time
	newID     func() string
}

func NewResponseService(responses ResponseStore, comments CommentStore,
	questions QuestionStore, sessions SessionStore) *ResponseService {
	return &ResponseService{
		responses: responses,
		comments:  comments,
		questions: questions,
		sessions:  sessions,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return shortID(12) },
	}
}

// CreateResponse stores a newly submitted response. A live response with
// the same (question, giver, recipient) triple makes this a conflict.
func (s *ResponseService) CreateResponse(r *models.FeedbackResponse) (*models.FeedbackResponse, error) {
	if r == nil {
		return nil, NewInvalidError("response required")
	}
	if strings.TrimSpace(r.QuestionID) == "" || strings.TrimSpace(r.Giver) == "" || strings.TrimSpace(r.Recipient) == "" {
		return nil, NewInvalidError("question_id, giver and recipient are required")
	}

	stored := *r
	if stored.ID == "" {
		stored.ID = s.newID()
	}
	stored.SubmittedAt = s.now()
	stored.UpdatedAt = stored.SubmittedAt

	created, err := s.responses.InsertResponse(&stored)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return &stored, nil
	}
	return created, nil
}

func (s *ResponseService) GetResponse(id string) (*models.FeedbackResponse, error) {
	return s.responses.GetResponse(id)
}

func (s *ResponseService) GetResponseForTriple(questionID, giver, recipient string) (*models.FeedbackResponse, error) {
	return s.responses.GetResponseForTriple(questionID, giver, recipient)
}

func (s *ResponseService) ResponsesForSession(sessionName, courseID string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesForSession(sessionName, courseID)
}

func (s *ResponseService) ResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesForQuestion(questionID)
}

func (s *ResponseService) ResponsesFromGiverForCourse(courseID, giver string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesFromGiverForCourse(courseID, giver)
}

func (s *ResponseService) ResponsesForReceiverForCourse(courseID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesForReceiverForCourse(courseID, recipient)
}

func (s *ResponseService) ResponsesFromGiverForQuestion(questionID, giver string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesFromGiverForQuestion(questionID, giver)
}

func (s *ResponseService) ResponsesForReceiverForQuestion(questionID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.responses.ListResponsesForReceiverForQuestion(questionID, recipient)
}

func (s *ResponseService) AreThereResponsesForQuestion(questionID string) (bool, error) {
	responses, err := s.responses.ListResponsesForQuestion(questionID)
	if err != nil {
		return false, err
	}
	return len(responses) > 0, nil
}

// UpdateResponseCascade applies an in-place update. Changing the giver or
// recipient must not collide with another live response's triple. A change
// of either section is re-propagated to every comment on the response;
// comments themselves are never deleted by a plain update.
func (s *ResponseService) UpdateResponseCascade(upd ResponseUpdate) (*models.FeedbackResponse, error) {
	old, err := s.responses.GetResponse(upd.ID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NewNotFoundError("trying to update a feedback response that does not exist")
	}

	next := *old
	if upd.Giver != nil {
		next.Giver = *upd.Giver
	}
	if upd.GiverSection != nil {
		next.GiverSection = *upd.GiverSection
	}
	if upd.Recipient != nil {
		next.Recipient = *upd.Recipient
	}
	if upd.RecipientSection != nil {
		next.RecipientSection = *upd.RecipientSection
	}
	if upd.Details != nil {
		next.Details = *upd.Details
	}

	if next.Giver != old.Giver || next.Recipient != old.Recipient {
		dup, err := s.responses.GetResponseForTriple(next.QuestionID, next.Giver, next.Recipient)
		if err != nil {
			return nil, err
		}
		if dup != nil && dup.ID != old.ID {
			return nil, NewConflictError("trying to create a feedback response that already exists")
		}
	}

	next.UpdatedAt = s.now()
	if err := s.responses.UpdateResponse(&next); err != nil {
		return nil, err
	}

	if next.GiverSection != old.GiverSection || next.RecipientSection != old.RecipientSection {
		if err := s.comments.UpdateCommentSections(next.ID, next.GiverSection, next.RecipientSection); err != nil {
			return nil, err
		}
	}
	return &next, nil
}

// UpdateResponsesForChangingTeam handles a student moving teams. Responses
// tied to the old team relationship no longer describe anything valid and
// are deleted with their comments; a plain individual response survives.
// If a deleted response was the student's last in its session, the student
// drops out of that session's respondent set.
func (s *ResponseService) UpdateResponsesForChangingTeam(courseID, email, oldTeam, newTeam string) error {
	given, err := s.responses.ListResponsesFromGiverForCourse(courseID, email)
	if err != nil {
		return err
	}
	received, err := s.responses.ListResponsesForReceiverForCourse(courseID, email)
	if err != nil {
		return err
	}

	affectedSessions := map[string]bool{}
	deleted := map[string]bool{}
	deleteStale := func(r *models.FeedbackResponse, receivedOnly bool) error {
		if deleted[r.ID] {
			return nil
		}
		q, err := s.questions.GetQuestion(r.QuestionID)
		if err != nil {
			return err
		}
		if q == nil {
			return nil
		}
		stale := q.RecipientType.IsTeamSemantic()
		if !receivedOnly {
			stale = stale || q.GiverType.IsTeamSemantic()
		}
		if !stale {
			return nil
		}
		if err := s.deleteResponseAndComments(r.ID); err != nil {
			return err
		}
		deleted[r.ID] = true
		affectedSessions[r.SessionName] = true
		return nil
	}

	for _, r := range given {
		if err := deleteStale(r, false); err != nil {
			return err
		}
	}
	for _, r := range received {
		if err := deleteStale(r, true); err != nil {
			return err
		}
	}

	// Respondent removal is computed from the store after the deletes are
	// durable, never from an in-memory before-image.
	for sessionName := range affectedSessions {
		if err := s.removeRespondentIfLast(email, sessionName, courseID, false); err != nil {
			return err
		}
	}
	return nil
}

// UpdateResponsesForChangingEmail substitutes a new identity into every
// response, comment, and respondent set of the course. Unlike a team
// change this never invalidates a response, so nothing is deleted.
func (s *ResponseService) UpdateResponsesForChangingEmail(courseID, oldEmail, newEmail string) error {
	given, err := s.responses.ListResponsesFromGiverForCourse(courseID, oldEmail)
	if err != nil {
		return err
	}
	received, err := s.responses.ListResponsesForReceiverForCourse(courseID, oldEmail)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	affectedSessions := map[string]bool{}
	for _, r := range append(given, received...) {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		affectedSessions[r.SessionName] = true
		next := *r
		if next.Giver == oldEmail {
			next.Giver = newEmail
		}
		if next.Recipient == oldEmail {
			next.Recipient = newEmail
		}
		next.UpdatedAt = s.now()
		if err := s.responses.UpdateResponse(&next); err != nil {
			return err
		}
	}
	if err := s.comments.UpdateCommentGiverEmail(courseID, oldEmail, newEmail); err != nil {
		return err
	}

	for sessionName := range affectedSessions {
		if err := s.renameRespondent(sessionName, courseID, oldEmail, newEmail); err != nil {
			return err
		}
	}
	return nil
}

// renameRespondent carries respondent set membership over to the new email.
func (s *ResponseService) renameRespondent(sessionName, courseID, oldEmail, newEmail string) error {
	students, err := s.sessions.ListRespondingStudents(sessionName, courseID)
	if err != nil {
		return err
	}
	for _, email := range students {
		if email == oldEmail {
			if err := s.sessions.RemoveStudentRespondent(oldEmail, sessionName, courseID); err != nil {
				return err
			}
			if err := s.sessions.AddStudentRespondent(newEmail, sessionName, courseID); err != nil {
				return err
			}
			break
		}
	}
	instructors, err := s.sessions.ListRespondingInstructors(sessionName, courseID)
	if err != nil {
		return err
	}
	for _, email := range instructors {
		if email == oldEmail {
			if err := s.sessions.RemoveInstructorRespondent(oldEmail, sessionName, courseID); err != nil {
				return err
			}
			if err := s.sessions.AddInstructorRespondent(newEmail, sessionName, courseID); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// DeleteResponseCascade removes a response and its comments. Deleting an
// unknown id is a silent no-op, which makes the operation safe to retry.
func (s *ResponseService) DeleteResponseCascade(id string) error {
	return s.deleteResponseAndComments(id)
}

func (s *ResponseService) deleteResponseAndComments(id string) error {
	if _, err := s.comments.DeleteCommentsForResponse(id); err != nil {
		return err
	}
	return s.responses.DeleteResponse(id)
}

// DeleteResponsesForQuestionCascade removes every response of a question.
// Each giver whose last session response disappeared is dropped from the
// respondent set matching the question's giver type; the other role's set
// is never touched.
func (s *ResponseService) DeleteResponsesForQuestionCascade(questionID string) error {
	responses, err := s.responses.ListResponsesForQuestion(questionID)
	if err != nil {
		return err
	}
	for _, r := range responses {
		if err := s.deleteResponseAndComments(r.ID); err != nil {
			return err
		}
	}
	if len(responses) == 0 {
		return nil
	}

	q, err := s.questions.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}
	asInstructor := giverIsInstructor(q)
	seen := map[string]bool{}
	for _, r := range responses {
		key := r.Giver + "\x00" + r.SessionName
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.removeRespondentIfLast(r.Giver, r.SessionName, r.CourseID, asInstructor); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResponsesInvolvedStudentOfCourseCascade removes every response in
// the course where the student participates individually, as giver or
// recipient. Only student respondent sets are adjusted.
func (s *ResponseService) DeleteResponsesInvolvedStudentOfCourseCascade(courseID, studentEmail string) error {
	return s.deleteResponsesInvolvedPerson(courseID, studentEmail, false)
}

// DeleteResponsesInvolvedInstructorOfCourseCascade is the instructor
// counterpart; only instructor respondent sets are adjusted.
func (s *ResponseService) DeleteResponsesInvolvedInstructorOfCourseCascade(courseID, instructorEmail string) error {
	return s.deleteResponsesInvolvedPerson(courseID, instructorEmail, true)
}

func (s *ResponseService) deleteResponsesInvolvedPerson(courseID, email string, asInstructor bool) error {
	given, err := s.responses.ListResponsesFromGiverForCourse(courseID, email)
	if err != nil {
		return err
	}
	received, err := s.responses.ListResponsesForReceiverForCourse(courseID, email)
	if err != nil {
		return err
	}

	deleted := map[string]bool{}
	var affected []*models.FeedbackResponse
	for _, r := range append(given, received...) {
		if deleted[r.ID] {
			continue
		}
		deleted[r.ID] = true
		if err := s.deleteResponseAndComments(r.ID); err != nil {
			return err
		}
		affected = append(affected, r)
	}

	seen := map[string]bool{}
	for _, r := range affected {
		key := r.Giver + "\x00" + r.SessionName
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.removeRespondentIfLast(r.Giver, r.SessionName, r.CourseID, asInstructor); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResponsesInvolvedTeamOfCourseCascade removes responses given or
// received by the team as a participant. Respondent sets follow the
// last-response rule per individual giver; when the stored giver is the
// team name itself the removal is a harmless no-op on the sets.
func (s *ResponseService) DeleteResponsesInvolvedTeamOfCourseCascade(courseID, teamName string) error {
	given, err := s.responses.ListResponsesFromGiverForCourse(courseID, teamName)
	if err != nil {
		return err
	}
	received, err := s.responses.ListResponsesForReceiverForCourse(courseID, teamName)
	if err != nil {
		return err
	}

	deleted := map[string]bool{}
	var affected []*models.FeedbackResponse
	for _, r := range append(given, received...) {
		if deleted[r.ID] {
			continue
		}
		deleted[r.ID] = true
		if err := s.deleteResponseAndComments(r.ID); err != nil {
			return err
		}
		affected = append(affected, r)
	}

	seen := map[string]bool{}
	for _, r := range affected {
		key := r.Giver + "\x00" + r.SessionName
		if seen[key] {
			continue
		}
		seen[key] = true
		q, err := s.questions.GetQuestion(r.QuestionID)
		if err != nil {
			return err
		}
		asInstructor := q != nil && giverIsInstructor(q)
		if err := s.removeRespondentIfLast(r.Giver, r.SessionName, r.CourseID, asInstructor); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResponses bulk-deletes by attribute query, cascading comments.
// Respondent sets are left alone: whole-course teardown discards session
// state wholesale.
func (s *ResponseService) DeleteResponses(query ResponseDeletionQuery) error {
	if query.IsEmpty() {
		return NewInvalidError("deletion query must carry at least one filter")
	}
	ids, err := s.responses.DeleteResponses(query)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.comments.DeleteCommentsForResponse(id); err != nil {
			return err
		}
	}
	return nil
}

func giverIsInstructor(q *models.FeedbackQuestion) bool {
	return q.GiverType == models.ParticipantInstructors || q.GiverType == models.ParticipantSelf
}

// removeRespondentIfLast drops the giver from the session's respondent set
// when no responses from them remain in that session.
func (s *ResponseService) removeRespondentIfLast(giver, sessionName, courseID string, asInstructor bool) error {
	remaining, err := s.responses.ListResponsesFromGiverForCourse(courseID, giver)
	if err != nil {
		return err
	}
	for _, r := range remaining {
		if r.SessionName == sessionName {
			return nil
		}
	}
	if asInstructor {
		return s.sessions.RemoveInstructorRespondent(giver, sessionName, courseID)
	}
	return s.sessions.RemoveStudentRespondent(giver, sessionName, courseID)
}
