package services

import (
	"testing"

	"github.com/coursepulse/peerfeedback/internal/models"
)

const visCourse = "crs-vis"

func newVisibilityFixture() (*stubEngineStore, *VisibilityService) {
	store := newStubEngineStore()
	store.students = []*models.Student{
		{Email: "student1@example.com", CourseID: visCourse, Team: "Team 1.1", Section: "Section 1"},
		{Email: "student2@example.com", CourseID: visCourse, Team: "Team 1.1", Section: "Section 1"},
		{Email: "student3@example.com", CourseID: visCourse, Team: "Team 1.1", Section: "Section 2"},
		{Email: "student4@example.com", CourseID: visCourse, Team: "Team 1.1", Section: "Section 2"},
		{Email: "student5@example.com", CourseID: visCourse, Team: "Team 1.2", Section: "Section 2"},
	}
	store.instructors = []*models.Instructor{
		{Email: "instructor1@example.com", CourseID: visCourse},
		{Email: "instructor2@example.com", CourseID: visCourse},
	}
	return store, NewVisibilityService(store)
}

func addQuestion(store *stubEngineStore, q *models.FeedbackQuestion) {
	store.questions[q.ID] = q
}

func addResponse(store *stubEngineStore, r *models.FeedbackResponse) {
	store.responses[r.ID] = r
}

func peerQuestion(id string, showTo ...models.ParticipantType) *models.FeedbackQuestion {
	return &models.FeedbackQuestion{
		ID:              id,
		CourseID:        visCourse,
		SessionName:     "First session",
		GiverType:       models.ParticipantStudents,
		RecipientType:   models.ParticipantStudents,
		ShowResponsesTo: showTo,
	}
}

func peerResponse(id, questionID, giver, giverSection, recipient, recipientSection string) *models.FeedbackResponse {
	return &models.FeedbackResponse{
		ID:               id,
		QuestionID:       questionID,
		CourseID:         visCourse,
		SessionName:      "First session",
		Giver:            giver,
		GiverSection:     giverSection,
		Recipient:        recipient,
		RecipientSection: recipientSection,
	}
}

func seedPeerResponses(store *stubEngineStore, questionID string) {
	addResponse(store, peerResponse("r1", questionID, "student1@example.com", "Section 1", "student2@example.com", "Section 1"))
	addResponse(store, peerResponse("r2", questionID, "student2@example.com", "Section 1", "student1@example.com", "Section 1"))
	addResponse(store, peerResponse("r3", questionID, "student3@example.com", "Section 2", "student2@example.com", "Section 1"))
}

func TestViewableResponsesRejectsUnknownRole(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn1", models.ParticipantInstructors)
	addQuestion(store, q)

	_, err := svc.ViewableResponsesForQuestionInSection(q, "admin@example.com", models.RoleAdmin, "", models.SectionEither)
	if err == nil {
		t.Fatalf("expected error for admin role")
	}
	if !IsCode(err, ErrorPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestViewableResponsesForInstructorBySection(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn2", models.ParticipantInstructors)
	addQuestion(store, q)
	seedPeerResponses(store, "qn2")

	cases := []struct {
		name    string
		section string
		detail  models.SectionDetail
		want    int
	}{
		{"no filter", "", models.SectionEither, 3},
		{"section 1 either", "Section 1", models.SectionEither, 3},
		{"section 1 both", "Section 1", models.SectionBoth, 2},
		{"section 2 both", "Section 2", models.SectionBoth, 0},
		{"section 2 giver", "Section 2", models.SectionGiver, 1},
		{"section 1 recipient", "Section 1", models.SectionRecipient, 3},
	}
	for _, tc := range cases {
		got, err := svc.ViewableResponsesForQuestionInSection(q, "instructor1@example.com", models.RoleInstructor, tc.section, tc.detail)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: got %d responses, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestViewableResponsesForStudent(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn2", models.ParticipantInstructors)
	addQuestion(store, q)
	seedPeerResponses(store, "qn2")

	// Givers always see their own responses; nothing else is shared with students.
	got, err := svc.ViewableResponsesForQuestionInSection(q, "student1@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("student1 should see only own response, got %d", len(got))
	}

	got, err = svc.ViewableResponsesForQuestionInSection(q, "student4@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("uninvolved student should see nothing, got %d", len(got))
	}
}

func TestResponseVisibleToReceiverTeamMembers(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn4", models.ParticipantReceiverTeamMembers)
	addQuestion(store, q)
	addResponse(store, peerResponse("r10", "qn4", "student5@example.com", "Section 2", "student2@example.com", "Section 1"))

	roster, err := svc.RosterForCourse(visCourse)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	r, _ := store.GetResponse("r10")

	if !svc.IsResponseVisibleTo(q, r, "student1@example.com", models.RoleStudent, roster) {
		t.Fatalf("teammate of recipient should see the response")
	}
	if !svc.IsResponseVisibleTo(q, r, "student5@example.com", models.RoleStudent, roster) {
		t.Fatalf("giver should always see own response")
	}
}

func TestResponseWithMissingRecipientIsSkippedSafely(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn5", models.ParticipantReceiverTeamMembers)
	addQuestion(store, q)
	addResponse(store, peerResponse("r11", "qn5", "student2@example.com", "Section 1", "", ""))

	got, err := svc.ViewableResponsesForQuestionInSection(q, "student1@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unresolvable recipient must fail the team check, got %d", len(got))
	}

	got, err = svc.ViewableResponsesForQuestionInSection(q, "student2@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("giver still sees the response, got %d", len(got))
	}
}

func TestResponseVisibleForTeamRecipient(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := &models.FeedbackQuestion{
		ID:              "qn3",
		CourseID:        visCourse,
		SessionName:     "First session",
		GiverType:       models.ParticipantSelf,
		RecipientType:   models.ParticipantTeams,
		ShowResponsesTo: []models.ParticipantType{models.ParticipantReceiver, models.ParticipantReceiverTeamMembers},
	}
	addQuestion(store, q)
	addResponse(store, peerResponse("r20", "qn3", "instructor1@example.com", "", "Team 1.1", ""))

	got, err := svc.ViewableResponsesForQuestionInSection(q, "student3@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("team member should see exactly 1 response, got %d", len(got))
	}

	got, err = svc.ViewableResponsesForQuestionInSection(q, "student5@example.com", models.RoleStudent, "", models.SectionEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("member of another team should see nothing, got %d", len(got))
	}
}

func TestNameVisibility(t *testing.T) {
	store, svc := newVisibilityFixture()
	q := peerQuestion("qn2", models.ParticipantInstructors)
	q.ShowGiverNameTo = []models.ParticipantType{models.ParticipantInstructors}
	q.ShowRecipientNameTo = []models.ParticipantType{models.ParticipantInstructors}
	addQuestion(store, q)
	seedPeerResponses(store, "qn2")

	roster, err := svc.RosterForCourse(visCourse)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	r1, _ := store.GetResponse("r1")

	if !svc.IsNameVisibleTo(q, r1, "instructor1@example.com", models.RoleInstructor, true, roster) {
		t.Fatalf("instructor should see giver name")
	}
	if svc.IsNameVisibleTo(q, r1, "student4@example.com", models.RoleStudent, true, roster) {
		t.Fatalf("uninvolved student must not see giver name")
	}
	if !svc.IsNameVisibleTo(q, r1, "student2@example.com", models.RoleStudent, true, roster) {
		t.Fatalf("recipient should always see giver name")
	}
	if !svc.IsNameVisibleTo(q, r1, "student1@example.com", models.RoleStudent, false, roster) {
		t.Fatalf("giver should always see recipient name")
	}
	if svc.IsNameVisibleTo(nil, r1, "instructor1@example.com", models.RoleInstructor, true, roster) {
		t.Fatalf("nil question must hide names")
	}
}

func TestNameVisibilityForTeamAudiences(t *testing.T) {
	store, svc := newVisibilityFixture()
	qReceiverTeam := peerQuestion("qn6")
	qReceiverTeam.ShowGiverNameTo = []models.ParticipantType{models.ParticipantReceiverTeamMembers}
	addQuestion(store, qReceiverTeam)
	addResponse(store, peerResponse("r30", "qn6", "student5@example.com", "Section 2", "student2@example.com", "Section 1"))

	qOwnTeam := peerQuestion("qn7")
	qOwnTeam.ShowGiverNameTo = []models.ParticipantType{models.ParticipantOwnTeamMembers}
	addQuestion(store, qOwnTeam)
	addResponse(store, peerResponse("r31", "qn7", "student1@example.com", "Section 1", "student5@example.com", "Section 2"))

	roster, err := svc.RosterForCourse(visCourse)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}

	r30, _ := store.GetResponse("r30")
	if !svc.IsNameVisibleTo(qReceiverTeam, r30, "student3@example.com", models.RoleStudent, true, roster) {
		t.Fatalf("recipient teammate should see giver name")
	}
	if svc.IsNameVisibleTo(qReceiverTeam, r30, "instructor1@example.com", models.RoleInstructor, true, roster) {
		t.Fatalf("instructor not in audience must not see giver name")
	}

	r31, _ := store.GetResponse("r31")
	if !svc.IsNameVisibleTo(qOwnTeam, r31, "student2@example.com", models.RoleStudent, true, roster) {
		t.Fatalf("giver teammate should see giver name")
	}
	if svc.IsNameVisibleTo(qOwnTeam, r31, "instructor2@example.com", models.RoleInstructor, true, roster) {
		t.Fatalf("instructor not in audience must not see giver name")
	}
}
