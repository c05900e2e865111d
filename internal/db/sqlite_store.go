// Package db provides the sqlite-backed store and its migrations.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursepulse/peerfeedback/internal/logger"
	"github.com/coursepulse/peerfeedback/internal/models"
	"github.com/coursepulse/peerfeedback/internal/services"
)

// SQLiteStore implements the service store interfaces on a sqlite
// database. Visibility sets and respondent sets are stored as JSON text
// columns; timestamps are RFC3339Nano strings.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTypes(types []models.ParticipantType) (sql.NullString, error) {
	if len(types) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(types)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeTypes(ns sql.NullString) []models.ParticipantType {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []models.ParticipantType
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		logger.Log.Warn("sqlite store: decode participant types", zap.Error(err))
		return nil
	}
	return out
}

func encodeEmails(emails []string) (sql.NullString, error) {
	if len(emails) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(emails)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeEmails(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		logger.Log.Warn("sqlite store: decode email list", zap.Error(err))
		return nil
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- questions ---

func (s *SQLiteStore) AddQuestion(q *models.FeedbackQuestion) error {
	if q == nil {
		return errors.New("nil question")
	}
	showResponses, err := encodeTypes(q.ShowResponsesTo)
	if err != nil {
		return fmt.Errorf("encode show_responses_to: %w", err)
	}
	showGiver, err := encodeTypes(q.ShowGiverNameTo)
	if err != nil {
		return fmt.Errorf("encode show_giver_name_to: %w", err)
	}
	showRecipient, err := encodeTypes(q.ShowRecipientNameTo)
	if err != nil {
		return fmt.Errorf("encode show_recipient_name_to: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO feedback_questions
      (id, course_id, session_name, question_number, giver_type, recipient_type,
       show_responses_to, show_giver_name_to, show_recipient_name_to)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
      ON CONFLICT(id) DO UPDATE SET
        giver_type = excluded.giver_type,
        recipient_type = excluded.recipient_type,
        show_responses_to = excluded.show_responses_to,
        show_giver_name_to = excluded.show_giver_name_to,
        show_recipient_name_to = excluded.show_recipient_name_to`,
		q.ID, q.CourseID, q.SessionName, q.QuestionNumber,
		string(q.GiverType), string(q.RecipientType),
		showResponses, showGiver, showRecipient)
	return err
}

func (s *SQLiteStore) GetQuestion(id string) (*models.FeedbackQuestion, error) {
	row := s.db.QueryRow(`SELECT id, course_id, session_name, question_number,
      giver_type, recipient_type, show_responses_to, show_giver_name_to, show_recipient_name_to
      FROM feedback_questions WHERE id = ?`, id)
	var q models.FeedbackQuestion
	var giverType, recipientType string
	var showResponses, showGiver, showRecipient sql.NullString
	if err := row.Scan(&q.ID, &q.CourseID, &q.SessionName, &q.QuestionNumber,
		&giverType, &recipientType, &showResponses, &showGiver, &showRecipient); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	q.GiverType = models.ParticipantType(giverType)
	q.RecipientType = models.ParticipantType(recipientType)
	q.ShowResponsesTo = decodeTypes(showResponses)
	q.ShowGiverNameTo = decodeTypes(showGiver)
	q.ShowRecipientNameTo = decodeTypes(showRecipient)
	return &q, nil
}

// --- roster ---

func (s *SQLiteStore) AddStudent(st *models.Student) error {
	if st == nil {
		return errors.New("nil student")
	}
	_, err := s.db.Exec(`INSERT INTO students (course_id, email, name, team, section)
      VALUES (?, ?, ?, ?, ?)
      ON CONFLICT(course_id, email) DO UPDATE SET
        name = excluded.name, team = excluded.team, section = excluded.section`,
		st.CourseID, st.Email, toNullString(st.Name), toNullString(st.Team), toNullString(st.Section))
	return err
}

func (s *SQLiteStore) AddInstructor(in *models.Instructor) error {
	if in == nil {
		return errors.New("nil instructor")
	}
	_, err := s.db.Exec(`INSERT INTO instructors (course_id, email, name)
      VALUES (?, ?, ?)
      ON CONFLICT(course_id, email) DO UPDATE SET name = excluded.name`,
		in.CourseID, in.Email, toNullString(in.Name))
	return err
}

func (s *SQLiteStore) ListStudentsForCourse(courseID string) ([]*models.Student, error) {
	rows, err := s.db.Query(`SELECT course_id, email, name, team, section
      FROM students WHERE course_id = ? ORDER BY email ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListStudentsForCourse")
	var out []*models.Student
	for rows.Next() {
		var st models.Student
		var name, team, section sql.NullString
		if err := rows.Scan(&st.CourseID, &st.Email, &name, &team, &section); err != nil {
			return nil, err
		}
		st.Name = name.String
		st.Team = team.String
		st.Section = section.String
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListInstructorsForCourse(courseID string) ([]*models.Instructor, error) {
	rows, err := s.db.Query(`SELECT course_id, email, name
      FROM instructors WHERE course_id = ? ORDER BY email ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListInstructorsForCourse")
	var out []*models.Instructor
	for rows.Next() {
		var in models.Instructor
		var name sql.NullString
		if err := rows.Scan(&in.CourseID, &in.Email, &name); err != nil {
			return nil, err
		}
		in.Name = name.String
		out = append(out, &in)
	}
	return out, rows.Err()
}

// --- sessions and respondents ---

func (s *SQLiteStore) AddSession(sess *models.FeedbackSession) error {
	if sess == nil {
		return errors.New("nil session")
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO feedback_sessions (course_id, name, created_at)
      VALUES (?, ?, ?)`, sess.CourseID, sess.Name, formatTime(created))
	if isUniqueViolation(err) {
		return services.NewConflictError("feedback session already exists")
	}
	return err
}

func (s *SQLiteStore) GetSession(sessionName, courseID string) (*models.FeedbackSession, error) {
	row := s.db.QueryRow(`SELECT course_id, name, created_at
      FROM feedback_sessions WHERE course_id = ? AND name = ?`, courseID, sessionName)
	var sess models.FeedbackSession
	var created string
	if err := row.Scan(&sess.CourseID, &sess.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.CreatedAt = parseTime(created)
	return &sess, nil
}

func (s *SQLiteStore) mutateRespondents(sessionName, courseID, column, email string, add bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRow(`SELECT `+column+` FROM feedback_sessions
      WHERE course_id = ? AND name = ?`, courseID, sessionName)
	var current sql.NullString
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	set := map[string]bool{}
	for _, e := range decodeEmails(current) {
		set[e] = true
	}
	if add {
		set[email] = true
	} else {
		delete(set, email)
	}
	emails := make([]string, 0, len(set))
	for e := range set {
		emails = append(emails, e)
	}
	encoded, err := encodeEmails(emails)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE feedback_sessions SET `+column+` = ?
      WHERE course_id = ? AND name = ?`, encoded, courseID, sessionName); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddStudentRespondent(email, sessionName, courseID string) error {
	return s.mutateRespondents(sessionName, courseID, "responding_students", email, true)
}

func (s *SQLiteStore) AddInstructorRespondent(email, sessionName, courseID string) error {
	return s.mutateRespondents(sessionName, courseID, "responding_instructors", email, true)
}

func (s *SQLiteStore) RemoveStudentRespondent(email, sessionName, courseID string) error {
	return s.mutateRespondents(sessionName, courseID, "responding_students", email, false)
}

func (s *SQLiteStore) RemoveInstructorRespondent(email, sessionName, courseID string) error {
	return s.mutateRespondents(sessionName, courseID, "responding_instructors", email, false)
}

func (s *SQLiteStore) listRespondents(sessionName, courseID, column string) ([]string, error) {
	row := s.db.QueryRow(`SELECT `+column+` FROM feedback_sessions
      WHERE course_id = ? AND name = ?`, courseID, sessionName)
	var current sql.NullString
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	emails := decodeEmails(current)
	sort.Strings(emails)
	return emails, nil
}

func (s *SQLiteStore) ListRespondingStudents(sessionName, courseID string) ([]string, error) {
	return s.listRespondents(sessionName, courseID, "responding_students")
}

func (s *SQLiteStore) ListRespondingInstructors(sessionName, courseID string) ([]string, error) {
	return s.listRespondents(sessionName, courseID, "responding_instructors")
}

// --- responses ---

const responseColumns = `id, question_id, course_id, session_name,
      giver, giver_section, recipient, recipient_section, details, submitted_at, updated_at`

func scanResponse(scan func(dest ...any) error) (*models.FeedbackResponse, error) {
	var r models.FeedbackResponse
	var giverSection, recipientSection, details sql.NullString
	var submitted, updated string
	if err := scan(&r.ID, &r.QuestionID, &r.CourseID, &r.SessionName,
		&r.Giver, &giverSection, &r.Recipient, &recipientSection, &details,
		&submitted, &updated); err != nil {
		return nil, err
	}
	r.GiverSection = giverSection.String
	r.RecipientSection = recipientSection.String
	r.Details = details.String
	r.SubmittedAt = parseTime(submitted)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (s *SQLiteStore) InsertResponse(r *models.FeedbackResponse) (*models.FeedbackResponse, error) {
	if r == nil {
		return nil, errors.New("nil response")
	}
	_, err := s.db.Exec(`INSERT INTO feedback_responses (`+responseColumns+`)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.QuestionID, r.CourseID, r.SessionName,
		r.Giver, toNullString(r.GiverSection), r.Recipient, toNullString(r.RecipientSection),
		toNullString(r.Details), formatTime(r.SubmittedAt), formatTime(r.UpdatedAt))
	if isUniqueViolation(err) {
		return nil, services.NewConflictError("trying to create a feedback response that already exists")
	}
	if err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *SQLiteStore) GetResponse(id string) (*models.FeedbackResponse, error) {
	row := s.db.QueryRow(`SELECT `+responseColumns+` FROM feedback_responses WHERE id = ?`, id)
	r, err := scanResponse(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) GetResponseForTriple(questionID, giver, recipient string) (*models.FeedbackResponse, error) {
	row := s.db.QueryRow(`SELECT `+responseColumns+` FROM feedback_responses
      WHERE question_id = ? AND giver = ? AND recipient = ?`, questionID, giver, recipient)
	r, err := scanResponse(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) queryResponses(where string, args ...any) ([]*models.FeedbackResponse, error) {
	rows, err := s.db.Query(`SELECT `+responseColumns+` FROM feedback_responses
      WHERE `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "queryResponses")
	var out []*models.FeedbackResponse
	for rows.Next() {
		r, err := scanResponse(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListResponsesForQuestion(questionID string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("question_id = ?", questionID)
}

func (s *SQLiteStore) ListResponsesForSession(sessionName, courseID string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("session_name = ? AND course_id = ?", sessionName, courseID)
}

func (s *SQLiteStore) ListResponsesFromGiverForCourse(courseID, giver string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("course_id = ? AND giver = ?", courseID, giver)
}

func (s *SQLiteStore) ListResponsesForReceiverForCourse(courseID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("course_id = ? AND recipient = ?", courseID, recipient)
}

func (s *SQLiteStore) ListResponsesFromGiverForQuestion(questionID, giver string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("question_id = ? AND giver = ?", questionID, giver)
}

func (s *SQLiteStore) ListResponsesForReceiverForQuestion(questionID, recipient string) ([]*models.FeedbackResponse, error) {
	return s.queryResponses("question_id = ? AND recipient = ?", questionID, recipient)
}

func (s *SQLiteStore) UpdateResponse(r *models.FeedbackResponse) error {
	if r == nil {
		return errors.New("nil response")
	}
	res, err := s.db.Exec(`UPDATE feedback_responses SET
      giver = ?, giver_section = ?, recipient = ?, recipient_section = ?,
      details = ?, updated_at = ? WHERE id = ?`,
		r.Giver, toNullString(r.GiverSection), r.Recipient, toNullString(r.RecipientSection),
		toNullString(r.Details), formatTime(r.UpdatedAt), r.ID)
	if isUniqueViolation(err) {
		return services.NewConflictError("trying to create a feedback response that already exists")
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return services.NewNotFoundError("trying to update a feedback response that does not exist")
	}
	return nil
}

func (s *SQLiteStore) DeleteResponse(id string) error {
	_, err := s.db.Exec(`DELETE FROM feedback_responses WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteResponses(q services.ResponseDeletionQuery) ([]string, error) {
	var clauses []string
	var args []any
	if q.CourseID != "" {
		clauses = append(clauses, "course_id = ?")
		args = append(args, q.CourseID)
	}
	if q.SessionName != "" {
		clauses = append(clauses, "session_name = ?")
		args = append(args, q.SessionName)
	}
	if q.QuestionID != "" {
		clauses = append(clauses, "question_id = ?")
		args = append(args, q.QuestionID)
	}
	if len(clauses) == 0 {
		return nil, errors.New("empty deletion query")
	}
	where := strings.Join(clauses, " AND ")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.Query(`SELECT id FROM feedback_responses WHERE `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM feedback_responses WHERE `+where, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- comments ---

func (s *SQLiteStore) InsertComment(c *models.ResponseComment) (*models.ResponseComment, error) {
	if c == nil {
		return nil, errors.New("nil comment")
	}
	_, err := s.db.Exec(`INSERT INTO response_comments
      (id, response_id, question_id, course_id, session_name, giver_email, text,
       from_participant, giver_section, receiver_section, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ResponseID, c.QuestionID, c.CourseID, c.SessionName, c.GiverEmail, c.Text,
		boolToInt64(c.FromParticipant), toNullString(c.GiverSection), toNullString(c.ReceiverSection),
		formatTime(c.CreatedAt))
	if err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

func (s *SQLiteStore) ListCommentsForResponse(responseID string) ([]*models.ResponseComment, error) {
	rows, err := s.db.Query(`SELECT id, response_id, question_id, course_id, session_name,
      giver_email, text, from_participant, giver_section, receiver_section, created_at
      FROM response_comments WHERE response_id = ? ORDER BY id ASC`, responseID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListCommentsForResponse")
	var out []*models.ResponseComment
	for rows.Next() {
		var c models.ResponseComment
		var fromParticipant int64
		var giverSection, receiverSection sql.NullString
		var created string
		if err := rows.Scan(&c.ID, &c.ResponseID, &c.QuestionID, &c.CourseID, &c.SessionName,
			&c.GiverEmail, &c.Text, &fromParticipant, &giverSection, &receiverSection, &created); err != nil {
			return nil, err
		}
		c.FromParticipant = fromParticipant != 0
		c.GiverSection = giverSection.String
		c.ReceiverSection = receiverSection.String
		c.CreatedAt = parseTime(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCommentsForResponse(responseID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM response_comments WHERE response_id = ?`, responseID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

func (s *SQLiteStore) UpdateCommentSections(responseID, giverSection, receiverSection string) error {
	_, err := s.db.Exec(`UPDATE response_comments SET giver_section = ?, receiver_section = ?
      WHERE response_id = ?`, toNullString(giverSection), toNullString(receiverSection), responseID)
	return err
}

func (s *SQLiteStore) UpdateCommentGiverEmail(courseID, oldEmail, newEmail string) error {
	_, err := s.db.Exec(`UPDATE response_comments SET giver_email = ?
      WHERE course_id = ? AND giver_email = ?`, newEmail, courseID, oldEmail)
	return err
}

func closeRows(rows *sql.Rows, prefix string) {
	if err := rows.Close(); err != nil {
		logger.Log.Warn("sqlite store: rows close", zap.String("op", prefix), zap.Error(err))
	}
}

var (
	_ services.ResponseStore   = (*SQLiteStore)(nil)
	_ services.CommentStore    = (*SQLiteStore)(nil)
	_ services.QuestionStore   = (*SQLiteStore)(nil)
	_ services.SessionStore    = (*SQLiteStore)(nil)
	_ services.VisibilityStore = (*SQLiteStore)(nil)
)
