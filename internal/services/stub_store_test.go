package services

import (
	"sort"

	"github.com/coursepulse/peerfeedback/internal/models"
)

// stubEngineStore backs the service tests with plain maps. It implements
// every store interface the services declare.
type stubEngineStore struct {
	questions   map[string]*models.FeedbackQuestion
	responses   map[string]*models.FeedbackResponse
	comments    map[string]*models.ResponseComment
	sessions    map[string]*models.FeedbackSession
	students    []*models.Student
	instructors []*models.Instructor

	respondingStudents    map[string]map[string]bool
	respondingInstructors map[string]map[string]bool
}

func newStubEngineStore() *stubEngineStore {
	return &stubEngineStore{
		questions:             map[string]*models.FeedbackQuestion{},
		responses:             map[string]*models.FeedbackResponse{},
		comments:              map[string]*models.ResponseComment{},
		sessions:              map[string]*models.FeedbackSession{},
		respondingStudents:    map[string]map[string]bool{},
		respondingInstructors: map[string]map[string]bool{},
	}
}

func stubSessionKey(sessionName, courseID string) string {
	return courseID + "|" + sessionName
}

func (s *stubEngineStore) addSession(name, courseID string) {
	key := stubSessionKey(name, courseID)
	s.sessions[key] = &models.FeedbackSession{Name: name, CourseID: courseID}
	s.respondingStudents[key] = map[string]bool{}
	s.respondingInstructors[key] = map[string]bool{}
}

func (s *stubEngineStore) GetQuestion(id string) (*models.FeedbackQuestion, error) {
	if q, ok := s.questions[id]; ok {
		copied := *q
		return &copied, nil
	}
	return nil, nil
}

func (s *stubEngineStore) ListStudentsForCourse(courseID string) ([]*models.Student, error) {
	out := []*models.Student{}
	for _, st := range s.students {
		if st.CourseID == courseID {
			copied := *st
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubEngineStore) ListInstructorsForCourse(courseID string) ([]*models.Instructor, error) {
	out := []*models.Instructor{}
	for _, in := range s.instructors {
		if in.CourseID == courseID {
			copied := *in
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubEngineStore) GetSession(sessionName, courseID string) (*models.FeedbackSession, error) {
	if sess, ok := s.sessions[stubSessionKey(sessionName, courseID)]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, nil
}

func (s *stubEngineStore) AddStudentRespondent(email, sessionName, courseID string) error {
	if set, ok := s.respondingStudents[stubSessionKey(sessionName, courseID)]; ok {
		set[email] = true
	}
	return nil
}

func (s *stubEngineStore) AddInstructorRespondent(email, sessionName, courseID string) error {
	if set, ok := s.respondingInstructors[stubSessionKey(sessionName, courseID)]; ok {
		set[email] = true
	}
	return nil
}

func (s *stubEngineStore) RemoveStudentRespondent(email, sessionName, courseID string) error {
	delete(s.respondingStudents[stubSessionKey(sessionName, courseID)], email)
	return nil
}

func (s *stubEngineStore) RemoveInstructorRespondent(email, sessionName, courseID string) error {
	delete(s.respondingInstructors[stubSessionKey(sessionName, courseID)], email)
	return nil
}

func sortedStubKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *stubEngineStore) ListRespondingStudents(sessionName, courseID string) ([]string, error) {
	return sortedStubKeys(s.respondingStudents[stubSessionKey(sessionName, courseID)]), nil
}

func (s *stubEngineStore) ListRespondingInstructors(sessionName, courseID string) ([]string, error) {
	return sortedStubKeys(s.respondingInstructors[stubSessionKey(sessionName, courseID)]), nil
}

func (s *stubEngineStore) InsertResponse(r *models.FeedbackResponse) (*models.FeedbackResponse, error) {
	for _, existing := range s.responses {
		if existing.QuestionID == r.QuestionID && existing.Giver == r.Giver && existing.Recipient == r.Recipient {
			return nil, NewConflictError("trying to create a feedback response that already exists")
		}
	}
	copied := *r
	s.responses[r.ID] = &copied
	out := copied
	return &out, nil
}

func (s *stubEngineStore) GetResponse(id string) (*models.FeedbackResponse, error) {
	if r, ok := s.responses[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (s *stubEngineStore) GetResponseForTriple(questionID, giver, recipient string) (*models.FeedbackResponse, error) {
	for _, r := range s.responses {
		if r.QuestionID == questionID && r.Giver == giver && r.Recipient == recipient {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubEngineStore) listResponses(match func(*models.FeedbackResponse) bool) []*models.FeedbackResponse {
	out := []*models.FeedbackResponse{}
	for _, r := range s.responses {
		if match(r) {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubEngineStore) ListResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID
	}), nil
}

func (s *stubEngineStore) ListResponsesForSession(sessionName, courseID string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.SessionName == sessionName && r.CourseID == courseID
	}), nil
}

func (s *stubEngineStore) ListResponsesFromGiverForCourse(courseID, giver string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.CourseID == courseID && r.Giver == giver
	}), nil
}

func (s *stubEngineStore) ListResponsesForReceiverForCourse(courseID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.CourseID == courseID && r.Recipient == recipient
	}), nil
}

func (s *stubEngineStore) ListResponsesFromGiverForQuestion(questionID, giver string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID && r.Giver == giver
	}), nil
}

func (s *stubEngineStore) ListResponsesForReceiverForQuestion(questionID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.listResponses(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID && r.Recipient == recipient
	}), nil
}

func (s *stubEngineStore) UpdateResponse(r *models.FeedbackResponse) error {
	if _, ok := s.responses[r.ID]; !ok {
		return NewNotFoundError("trying to update a feedback response that does not exist")
	}
	copied := *r
	s.responses[r.ID] = &copied
	return nil
}

func (s *stubEngineStore) DeleteResponse(id string) error {
	delete(s.responses, id)
	return nil
}

func (s *stubEngineStore) DeleteResponses(q ResponseDeletionQuery) ([]string, error) {
	var ids []string
	for id, r := range s.responses {
		if q.Matches(r) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.responses, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *stubEngineStore) InsertComment(c *models.ResponseComment) (*models.ResponseComment, error) {
	copied := *c
	s.comments[c.ID] = &copied
	out := copied
	return &out, nil
}

func (s *stubEngineStore) ListCommentsForResponse(responseID string) ([]*models.ResponseComment, error) {
	out := []*models.ResponseComment{}
	for _, c := range s.comments {
		if c.ResponseID == responseID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubEngineStore) DeleteCommentsForResponse(responseID string) (int, error) {
	var ids []string
	for id, c := range s.comments {
		if c.ResponseID == responseID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.comments, id)
	}
	return len(ids), nil
}

func (s *stubEngineStore) UpdateCommentSections(responseID, giverSection, receiverSection string) error {
	for _, c := range s.comments {
		if c.ResponseID == responseID {
			c.GiverSection = giverSection
			c.ReceiverSection = receiverSection
		}
	}
	return nil
}

func (s *stubEngineStore) UpdateCommentGiverEmail(courseID, oldEmail, newEmail string) error {
	for _, c := range s.comments {
		if c.CourseID == courseID && c.GiverEmail == oldEmail {
			c.GiverEmail = newEmail
		}
	}
	return nil
}

var (
	_ ResponseStore   = (*stubEngineStore)(nil)
	_ CommentStore    = (*stubEngineStore)(nil)
	_ QuestionStore   = (*stubEngineStore)(nil)
	_ SessionStore    = (*stubEngineStore)(nil)
	_ VisibilityStore = (*stubEngineStore)(nil)
)
