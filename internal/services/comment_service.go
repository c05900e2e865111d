package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursepulse/peerfeedback/internal/models"
)

// CommentStore persists comments attached to responses.
type CommentStore interface {
	InsertComment(c *models.ResponseComment) (*models.ResponseComment, error)
	ListCommentsForResponse(responseID string) ([]*models.ResponseComment, error)
	DeleteCommentsForResponse(responseID string) (int, error)
	UpdateCommentSections(responseID, giverSection, receiverSection string) error
	UpdateCommentGiverEmail(courseID, oldEmail, newEmail string) error
}

type commentResponseReader interface {
	GetResponse(id string) (*models.FeedbackResponse, error)
}

// CommentService creates and reads comments. Section fields are copied
// from the parent response at creation time; keeping them in sync on
// response updates is the cascade engine's job.
type CommentService struct {
	comments  CommentStore
	responses commentResponseReader
	now       func() time.Time
}

func NewCommentService(comments CommentStore, responses commentResponseReader) *CommentService {
	return &CommentService{
		comments:  comments,
		responses: responses,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func (s *CommentService) CreateComment(c *models.ResponseComment) (*models.ResponseComment, error) {
	if c == nil {
		return nil, NewInvalidError("comment required")
	}
	if strings.TrimSpace(c.ResponseID) == "" {
		return nil, NewInvalidError("response_id required")
	}
	parent, err := s.responses.GetResponse(c.ResponseID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, NewNotFoundError("trying to comment on a feedback response that does not exist")
	}

	stored := *c
	if stored.ID == "" {
		stored.ID = shortID(12)
	}
	stored.QuestionID = parent.QuestionID
	stored.CourseID = parent.CourseID
	stored.SessionName = parent.SessionName
	stored.GiverSection = parent.GiverSection
	stored.ReceiverSection = parent.RecipientSection
	stored.CreatedAt = s.now()

	created, err := s.comments.InsertComment(&stored)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return &stored, nil
	}
	return created, nil
}

func (s *CommentService) CommentsForResponse(responseID string) ([]*models.ResponseComment, error) {
	return s.comments.ListCommentsForResponse(responseID)
}
