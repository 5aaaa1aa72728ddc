package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/opencourse/exam-service/internal/events"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitForEvents polls the mock publisher until at least want events landed.
// Notification dispatch is asynchronous, so assertions have to wait for it.
func waitForEvents(t *testing.T, publisher *events.MockEventPublisher, want int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := publisher.GetPublishedEvents()
		if len(got) >= want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d published events, got %d", want, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// settle gives asynchronous dispatch a moment to run before asserting that
// nothing more was published.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

// mockRepository is an in-memory repositories.Repository. It emulates the
// storage invariants the services rely on: the partial unique index on
// in_progress submissions, conditional status transitions, and serialized
// transactions standing in for row locks.
type mockRepository struct {
	mu   sync.Mutex
	txMu sync.Mutex

	exams       map[uint]*models.Exam
	submissions map[uint]*models.Submission
	courses     map[uint]*models.Course
	enrollments []models.Enrollment
	users       map[string]*models.User

	nextExamID       uint
	nextSubmissionID uint
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exams:       make(map[uint]*models.Exam),
		submissions: make(map[uint]*models.Submission),
		courses:     make(map[uint]*models.Course),
		users:       make(map[string]*models.User),
	}
}

// Seeding helpers

func (m *mockRepository) addCourse(course *models.Course) *models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[course.ID] = course
	return course
}

func (m *mockRepository) addEnrollment(courseID uint, studentID string, status models.EnrollmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments = append(m.enrollments, models.Enrollment{
		CourseID:  courseID,
		StudentID: studentID,
		Status:    status,
	})
}

func (m *mockRepository) addExam(exam *models.Exam) *models.Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exam.ID == 0 {
		m.nextExamID++
		exam.ID = m.nextExamID
	} else if exam.ID > m.nextExamID {
		m.nextExamID = exam.ID
	}
	m.exams[exam.ID] = exam
	return exam
}

func (m *mockRepository) addUser(user *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user
}

// Repository interface

func (m *mockRepository) Exam() repositories.ExamRepository             { return (*mockExamRepo)(m) }
func (m *mockRepository) Question() repositories.QuestionRepository     { return (*mockQuestionRepo)(m) }
func (m *mockRepository) Submission() repositories.SubmissionRepository { return (*mockSubmissionRepo)(m) }
func (m *mockRepository) Course() repositories.CourseRepository         { return (*mockCourseRepo)(m) }
func (m *mockRepository) Enrollment() repositories.EnrollmentRepository { return (*mockEnrollmentRepo)(m) }
func (m *mockRepository) User() repositories.UserRepository             { return (*mockUserRepo)(m) }

// WithTransaction serializes callers, which is how the row lock taken by
// the attempt count behaves against competing start transactions.
func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== EXAMS =====

type mockExamRepo mockRepository

func (r *mockExamRepo) Create(ctx context.Context, exam *models.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextExamID++
	exam.ID = r.nextExamID
	for i := range exam.Questions {
		exam.Questions[i].ID = exam.ID*100 + uint(i) + 1
		exam.Questions[i].ExamID = exam.ID
	}
	r.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return exam, nil
}

func (r *mockExamRepo) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	return r.GetByID(ctx, id)
}

func (r *mockExamRepo) Update(ctx context.Context, exam *models.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[exam.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.exams, id)
	return nil
}

func (r *mockExamRepo) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Exam
	for _, exam := range r.exams {
		if filters.CourseID != nil && exam.CourseID != *filters.CourseID {
			continue
		}
		if filters.IsPublished != nil && exam.IsPublished != *filters.IsPublished {
			continue
		}
		if filters.CreatedBy != nil && exam.CreatedBy != *filters.CreatedBy {
			continue
		}
		if v := filters.VisibleTo; v != nil && !r.visibleToOrg(exam, v) {
			continue
		}
		out = append(out, exam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := int64(len(out))
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			out = nil
		} else {
			out = out[filters.Offset:]
		}
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *mockExamRepo) visibleToOrg(exam *models.Exam, v *repositories.ExamVisibility) bool {
	if exam.IsPublished || exam.CreatedBy == v.ActorID || exam.Targets(v.OrgID) {
		return true
	}
	course, ok := r.courses[exam.CourseID]
	return ok && course.InstructorID == v.ActorID
}

func (r *mockExamRepo) ListByCourse(ctx context.Context, courseID uint, publishedOnly bool) ([]*models.Exam, error) {
	return r.listCourses(map[uint]bool{courseID: true}, publishedOnly), nil
}

func (r *mockExamRepo) ListByCourses(ctx context.Context, courseIDs []uint, publishedOnly bool) ([]*models.Exam, error) {
	set := make(map[uint]bool, len(courseIDs))
	for _, id := range courseIDs {
		set[id] = true
	}
	return r.listCourses(set, publishedOnly), nil
}

func (r *mockExamRepo) listCourses(courseIDs map[uint]bool, publishedOnly bool) []*models.Exam {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Exam
	for _, exam := range r.exams {
		if !courseIDs[exam.CourseID] {
			continue
		}
		if publishedOnly && !exam.IsPublished {
			continue
		}
		out = append(out, exam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *mockExamRepo) ListAuthoritySlots(ctx context.Context, courseID uint) ([]*models.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Exam
	for _, exam := range r.exams {
		if exam.CourseID == courseID && exam.AuthoredByAuthority() {
			out = append(out, exam)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockExamRepo) ReplaceQuestions(ctx context.Context, examID uint, questions []models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[examID]
	if !ok {
		return repositories.ErrNotFound
	}
	for i := range questions {
		questions[i].ID = examID*100 + uint(i) + 1
		questions[i].ExamID = examID
	}
	exam.Questions = questions
	return nil
}

// ===== QUESTIONS =====

type mockQuestionRepo mockRepository

func (r *mockQuestionRepo) GetByExam(ctx context.Context, examID uint) ([]*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exam, ok := r.exams[examID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := make([]*models.Question, 0, len(exam.Questions))
	for i := range exam.Questions {
		out = append(out, &exam.Questions[i])
	}
	return out, nil
}

// ===== SUBMISSIONS =====

type mockSubmissionRepo mockRepository

// detach returns a copy, matching the real repository where every read
// hydrates a fresh struct. Callers mutating a fetched submission must not
// reach the stored row until a conditional transition commits it.
func detach(s *models.Submission) *models.Submission {
	out := *s
	return &out
}

func (r *mockSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if submission.Status == models.SubmissionInProgress {
		for _, existing := range r.submissions {
			if existing.ExamID == submission.ExamID &&
				existing.StudentID == submission.StudentID &&
				existing.Status == models.SubmissionInProgress {
				return repositories.ErrDuplicate
			}
		}
	}
	r.nextSubmissionID++
	submission.ID = r.nextSubmissionID
	r.submissions[submission.ID] = submission
	return nil
}

func (r *mockSubmissionRepo) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return detach(sub), nil
}

func (r *mockSubmissionRepo) GetActive(ctx context.Context, examID uint, studentID string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.submissions {
		if sub.ExamID == examID && sub.StudentID == studentID && sub.Status == models.SubmissionInProgress {
			return detach(sub), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockSubmissionRepo) GetLatest(ctx context.Context, examID uint, studentID string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Submission
	for _, sub := range r.submissions {
		if sub.ExamID != examID || sub.StudentID != studentID {
			continue
		}
		if latest == nil || sub.AttemptNumber > latest.AttemptNumber {
			latest = sub
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	return detach(latest), nil
}

func (r *mockSubmissionRepo) CountByExamAndStudent(ctx context.Context, examID uint, studentID string, forUpdate bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sub := range r.submissions {
		if sub.ExamID == examID && sub.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (r *mockSubmissionRepo) MarkSubmitted(ctx context.Context, submission *models.Submission, answers []models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.submissions[submission.ID]
	if !ok || stored.Status != models.SubmissionInProgress {
		return repositories.ErrNotFound
	}
	stored.Status = submission.Status
	stored.SubmittedAt = submission.SubmittedAt
	stored.TimeSpent = submission.TimeSpent
	stored.Score = submission.Score
	stored.Percentage = submission.Percentage
	stored.Passed = submission.Passed
	for i := range answers {
		answers[i].SubmissionID = submission.ID
	}
	stored.Answers = answers
	return nil
}

func (r *mockSubmissionRepo) MarkExpired(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.submissions[id]
	if !ok || stored.Status != models.SubmissionInProgress {
		return repositories.ErrNotFound
	}
	stored.Status = models.SubmissionExpired
	return nil
}

func (r *mockSubmissionRepo) ListByStudent(ctx context.Context, examID uint, studentID string) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, sub := range r.submissions {
		if sub.ExamID == examID && sub.StudentID == studentID {
			out = append(out, detach(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber > out[j].AttemptNumber })
	return out, nil
}

func (r *mockSubmissionRepo) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, sub := range r.submissions {
		if sub.ExamID != examID {
			continue
		}
		if filters.Status != nil && sub.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && sub.StudentID != *filters.StudentID {
			continue
		}
		out = append(out, detach(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *mockSubmissionRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.submissions, id)
	return nil
}

// ===== COURSES AND ENROLLMENTS =====

type mockCourseRepo mockRepository

func (r *mockCourseRepo) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return course, nil
}

func (r *mockCourseRepo) ListByInstructor(ctx context.Context, instructorID string) ([]*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Course
	for _, course := range r.courses {
		if course.InstructorID == instructorID {
			out = append(out, course)
		}
	}
	return out, nil
}

type mockEnrollmentRepo mockRepository

func (r *mockEnrollmentRepo) ActiveStudents(ctx context.Context, courseID uint) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.enrollments {
		if e.CourseID == courseID && e.Status == models.EnrollmentActive {
			out = append(out, e.StudentID)
		}
	}
	return out, nil
}

func (r *mockEnrollmentRepo) ActiveCourses(ctx context.Context, studentID string) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint
	for _, e := range r.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentActive {
			out = append(out, e.CourseID)
		}
	}
	return out, nil
}

type mockUserRepo mockRepository

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return user, nil
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}
