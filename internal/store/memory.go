// Package store provides the storage backends for the feedback engine.
// MemoryStore is the mutex-guarded in-memory implementation used in tests
// and single-process deployments; the sqlite-backed store lives in
// internal/db.
package store

import (
	"sort"
	"sync"

	"github.com/coursepulse/peerfeedback/internal/models"
	"github.com/coursepulse/peerfeedback/internal/services"
)

type sessionRecord struct {
	session               models.FeedbackSession
	studentRespondents    map[string]bool
	instructorRespondents map[string]bool
}

// MemoryStore keeps all entities in maps guarded by a single mutex.
// Returned entities are copies; mutating them does not affect the store.
type MemoryStore struct {
	mu          sync.Mutex
	questions   map[string]models.FeedbackQuestion
	responses   map[string]models.FeedbackResponse
	comments    map[string]models.ResponseComment
	sessions    map[string]*sessionRecord
	students    map[string]map[string]models.Student    // courseID -> email
	instructors map[string]map[string]models.Instructor // courseID -> email
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions:   map[string]models.FeedbackQuestion{},
		responses:   map[string]models.FeedbackResponse{},
		comments:    map[string]models.ResponseComment{},
		sessions:    map[string]*sessionRecord{},
		students:    map[string]map[string]models.Student{},
		instructors: map[string]map[string]models.Instructor{},
	}
}

func sessionKey(sessionName, courseID string) string {
	return courseID + "\x00" + sessionName
}

// --- questions ---

func (m *MemoryStore) AddQuestion(q *models.FeedbackQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = *q
	return nil
}

func (m *MemoryStore) GetQuestion(id string) (*models.FeedbackQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	out := q
	return &out, nil
}

// --- roster ---

func (m *MemoryStore) AddStudent(s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.students[s.CourseID] == nil {
		m.students[s.CourseID] = map[string]models.Student{}
	}
	m.students[s.CourseID][s.Email] = *s
	return nil
}

func (m *MemoryStore) AddInstructor(i *models.Instructor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instructors[i.CourseID] == nil {
		m.instructors[i.CourseID] = map[string]models.Instructor{}
	}
	m.instructors[i.CourseID][i.Email] = *i
	return nil
}

func (m *MemoryStore) ListStudentsForCourse(courseID string) ([]*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Student, 0, len(m.students[courseID]))
	for _, s := range m.students[courseID] {
		copied := s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryStore) ListInstructorsForCourse(courseID string) ([]*models.Instructor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Instructor, 0, len(m.instructors[courseID]))
	for _, i := range m.instructors[courseID] {
		copied := i
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// --- sessions and respondents ---

func (m *MemoryStore) AddSession(s *models.FeedbackSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.Name, s.CourseID)
	if _, exists := m.sessions[key]; exists {
		return services.NewConflictError("feedback session already exists")
	}
	m.sessions[key] = &sessionRecord{
		session:               *s,
		studentRespondents:    map[string]bool{},
		instructorRespondents: map[string]bool{},
	}
	return nil
}

func (m *MemoryStore) GetSession(sessionName, courseID string) (*models.FeedbackSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(sessionName, courseID)]
	if !ok {
		return nil, nil
	}
	out := rec.session
	return &out, nil
}

func (m *MemoryStore) AddStudentRespondent(email, sessionName, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionKey(sessionName, courseID)]; ok {
		rec.studentRespondents[email] = true
	}
	return nil
}

func (m *MemoryStore) AddInstructorRespondent(email, sessionName, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionKey(sessionName, courseID)]; ok {
		rec.instructorRespondents[email] = true
	}
	return nil
}

func (m *MemoryStore) RemoveStudentRespondent(email, sessionName, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionKey(sessionName, courseID)]; ok {
		delete(rec.studentRespondents, email)
	}
	return nil
}

func (m *MemoryStore) RemoveInstructorRespondent(email, sessionName, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionKey(sessionName, courseID)]; ok {
		delete(rec.instructorRespondents, email)
	}
	return nil
}

func (m *MemoryStore) ListRespondingStudents(sessionName, courseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(sessionName, courseID)]
	if !ok {
		return nil, nil
	}
	return sortedKeys(rec.studentRespondents), nil
}

func (m *MemoryStore) ListRespondingInstructors(sessionName, courseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionKey(sessionName, courseID)]
	if !ok {
		return nil, nil
	}
	return sortedKeys(rec.instructorRespondents), nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// --- responses ---

func (m *MemoryStore) InsertResponse(r *models.FeedbackResponse) (*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.responses {
		if existing.QuestionID == r.QuestionID && existing.Giver == r.Giver && existing.Recipient == r.Recipient {
			return nil, services.NewConflictError("trying to create a feedback response that already exists")
		}
	}
	m.responses[r.ID] = *r
	out := *r
	return &out, nil
}

func (m *MemoryStore) GetResponse(id string) (*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.responses[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (m *MemoryStore) GetResponseForTriple(questionID, giver, recipient string) (*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.responses {
		if r.QuestionID == questionID && r.Giver == giver && r.Recipient == recipient {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) listResponsesLocked(match func(*models.FeedbackResponse) bool) []*models.FeedbackResponse {
	var out []*models.FeedbackResponse
	for _, r := range m.responses {
		copied := r
		if match(&copied) {
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ListResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID
	}), nil
}

func (m *MemoryStore) ListResponsesForSession(sessionName, courseID string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.SessionName == sessionName && r.CourseID == courseID
	}), nil
}

func (m *MemoryStore) ListResponsesFromGiverForCourse(courseID, giver string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.CourseID == courseID && r.Giver == giver
	}), nil
}

func (m *MemoryStore) ListResponsesForReceiverForCourse(courseID, recipient string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.CourseID == courseID && r.Recipient == recipient
	}), nil
}

func (m *MemoryStore) ListResponsesFromGiverForQuestion(questionID, giver string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID && r.Giver == giver
	}), nil
}

func (m *MemoryStore) ListResponsesForReceiverForQuestion(questionID, recipient string) ([]*models.FeedbackResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResponsesLocked(func(r *models.FeedbackResponse) bool {
		return r.QuestionID == questionID && r.Recipient == recipient
	}), nil
}

func (m *MemoryStore) UpdateResponse(r *models.FeedbackResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.responses[r.ID]; !ok {
		return services.NewNotFoundError("trying to update a feedback response that does not exist")
	}
	m.responses[r.ID] = *r
	return nil
}

func (m *MemoryStore) DeleteResponse(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responses, id)
	return nil
}

func (m *MemoryStore) DeleteResponses(q services.ResponseDeletionQuery) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, r := range m.responses {
		copied := r
		if q.Matches(&copied) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(m.responses, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- comments ---

func (m *MemoryStore) InsertComment(c *models.ResponseComment) (*models.ResponseComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ID] = *c
	out := *c
	return &out, nil
}

func (m *MemoryStore) ListCommentsForResponse(responseID string) ([]*models.ResponseComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ResponseComment
	for _, c := range m.comments {
		if c.ResponseID == responseID {
			copied := c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteCommentsForResponse(responseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, c := range m.comments {
		if c.ResponseID == responseID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(m.comments, id)
	}
	return len(ids), nil
}

func (m *MemoryStore) UpdateCommentSections(responseID, giverSection, receiverSection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.comments {
		if c.ResponseID == responseID {
			c.GiverSection = giverSection
			c.ReceiverSection = receiverSection
			m.comments[id] = c
		}
	}
	return nil
}

func (m *MemoryStore) UpdateCommentGiverEmail(courseID, oldEmail, newEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.comments {
		if c.CourseID == courseID && c.GiverEmail == oldEmail {
			c.GiverEmail = newEmail
			m.comments[id] = c
		}
	}
	return nil
}

var (
	_ services.ResponseStore   = (*MemoryStore)(nil)
	_ services.CommentStore    = (*MemoryStore)(nil)
	_ services.QuestionStore   = (*MemoryStore)(nil)
	_ services.SessionStore    = (*MemoryStore)(nil)
	_ services.VisibilityStore = (*MemoryStore)(nil)
)
