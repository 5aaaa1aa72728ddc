package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opencourse/exam-service/internal/events"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

func newSubmissionServiceForTest(repo *mockRepository) (SubmissionService, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()
	notification := NewNotificationEventService(repo, publisher, logger, v)
	svc := NewSubmissionService(repo, v, NewGradingEngine(), notification, logger)
	return svc, publisher
}

// seedOpenExam stores a published exam whose window opened an hour ago, with
// one 10-point multiple-choice question, and enrolls the student.
func seedOpenExam(repo *mockRepository, maxAttempts int) *models.Exam {
	repo.addCourse(&models.Course{ID: 10, Title: "Algebra", InstructorID: "org-a"})
	repo.addEnrollment(10, "s1", models.EnrollmentActive)
	q := mcq(1, 10, "Paris", "London")
	return repo.addExam(&models.Exam{
		Title:        "Final",
		CourseID:     10,
		Duration:     30,
		TotalPoints:  10,
		PassingScore: 70,
		MaxAttempts:  maxAttempts,
		ScheduledAt:  time.Now().Add(-time.Hour),
		IsPublished:  true,
		CreatedBy:    "org-a",
		CreatorRole:  models.RoleOrganization,
		Questions:    []models.Question{*q},
	})
}

func TestSubmissionService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("opens first attempt", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		resp, err := svc.Start(ctx, exam.ID, "s1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if resp.Submission.AttemptNumber != 1 {
			t.Errorf("expected attempt 1, got %d", resp.Submission.AttemptNumber)
		}
		if resp.Submission.Status != models.SubmissionInProgress {
			t.Errorf("expected in_progress, got %s", resp.Submission.Status)
		}
		if resp.Resumed {
			t.Error("first start must not be a resume")
		}
		if !resp.CanSubmit {
			t.Error("active submission should accept a submit")
		}
		if resp.RemainingSeconds <= 0 {
			t.Errorf("expected positive remaining time, got %d", resp.RemainingSeconds)
		}
	})

	t.Run("second start resumes the open attempt", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		first, err := svc.Start(ctx, exam.ID, "s1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		second, err := svc.Start(ctx, exam.ID, "s1")
		if err != nil {
			t.Fatalf("second Start failed: %v", err)
		}
		if !second.Resumed {
			t.Error("second start should resume")
		}
		if second.Submission.ID != first.Submission.ID {
			t.Errorf("resume returned a different submission: %d != %d", second.Submission.ID, first.Submission.ID)
		}
		if count, _ := repo.Submission().CountByExamAndStudent(ctx, exam.ID, "s1", false); count != 1 {
			t.Errorf("expected 1 stored submission, got %d", count)
		}
	})

	t.Run("requires enrollment", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		_, err := svc.Start(ctx, exam.ID, "stranger")
		if !errors.Is(err, ErrStudentNotEnrolled) {
			t.Fatalf("expected ErrStudentNotEnrolled, got %v", err)
		}
	})

	t.Run("requires published exam", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		exam.IsPublished = false
		svc, _ := newSubmissionServiceForTest(repo)

		_, err := svc.Start(ctx, exam.ID, "s1")
		if !errors.Is(err, ErrExamNotPublished) {
			t.Fatalf("expected ErrExamNotPublished, got %v", err)
		}
	})

	t.Run("window not open yet", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		exam.ScheduledAt = time.Now().Add(time.Hour)
		svc, _ := newSubmissionServiceForTest(repo)

		_, err := svc.Start(ctx, exam.ID, "s1")
		if !errors.Is(err, ErrExamNotAvailable) {
			t.Fatalf("expected ErrExamNotAvailable, got %v", err)
		}
	})

	t.Run("deadline passed", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		deadline := time.Now().Add(-time.Minute)
		exam.Deadline = &deadline
		svc, _ := newSubmissionServiceForTest(repo)

		_, err := svc.Start(ctx, exam.ID, "s1")
		if !errors.Is(err, ErrExamNotAvailable) {
			t.Fatalf("expected ErrExamNotAvailable, got %v", err)
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 1)
		svc, _ := newSubmissionServiceForTest(repo)

		submitted := time.Now().Add(-10 * time.Minute)
		repo.Submission().Create(ctx, &models.Submission{
			ExamID:        exam.ID,
			StudentID:     "s1",
			AttemptNumber: 1,
			Status:        models.SubmissionSubmitted,
			StartedAt:     submitted,
			SubmittedAt:   &submitted,
		})

		_, err := svc.Start(ctx, exam.ID, "s1")
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
	})

	t.Run("overdue open attempt expires and burns a try", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		stale := &models.Submission{
			ExamID:        exam.ID,
			StudentID:     "s1",
			AttemptNumber: 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     time.Now().Add(-2 * time.Hour),
		}
		repo.Submission().Create(ctx, stale)

		resp, err := svc.Start(ctx, exam.ID, "s1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if resp.Submission.AttemptNumber != 2 {
			t.Errorf("expected attempt 2 after expiry, got %d", resp.Submission.AttemptNumber)
		}

		expired, _ := repo.Submission().GetByID(ctx, stale.ID)
		if expired.Status != models.SubmissionExpired {
			t.Errorf("stale submission should be expired, got %s", expired.Status)
		}
	})

	t.Run("overdue open attempt on the last try exhausts", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 1)
		svc, _ := newSubmissionServiceForTest(repo)

		repo.Submission().Create(ctx, &models.Submission{
			ExamID:        exam.ID,
			StudentID:     "s1",
			AttemptNumber: 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     time.Now().Add(-2 * time.Hour),
		})

		_, err := svc.Start(ctx, exam.ID, "s1")
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
	})

	t.Run("concurrent starts open exactly one attempt", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 1)
		svc, _ := newSubmissionServiceForTest(repo)

		const workers = 8
		var wg sync.WaitGroup
		ids := make([]uint, workers)
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := svc.Start(ctx, exam.ID, "s1")
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = resp.Submission.ID
			}(i)
		}
		wg.Wait()

		var submissionID uint
		for i := 0; i < workers; i++ {
			if errs[i] != nil {
				t.Fatalf("worker %d failed: %v", i, errs[i])
			}
			if submissionID == 0 {
				submissionID = ids[i]
			} else if ids[i] != submissionID {
				t.Fatalf("workers got different submissions: %d and %d", submissionID, ids[i])
			}
		}
		if count, _ := repo.Submission().CountByExamAndStudent(ctx, exam.ID, "s1", false); count != 1 {
			t.Errorf("expected 1 stored submission, got %d", count)
		}
	})
}

func TestSubmissionService_Submit(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T, svc SubmissionService, examID uint) *SubmissionResponse {
		t.Helper()
		resp, err := svc.Start(ctx, examID, "s1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		return resp
	}

	t.Run("grades and finalizes", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, publisher := newSubmissionServiceForTest(repo)
		start(t, svc, exam.ID)

		resp, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{
			Answers: []AnswerRequest{answer(1, "Paris")},
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		sub := resp.Submission
		if sub.Status != models.SubmissionSubmitted {
			t.Errorf("expected submitted, got %s", sub.Status)
		}
		if sub.Score != 10 || sub.Percentage != 100 || !sub.Passed {
			t.Errorf("expected 10/100%%/passed, got %d/%v/%v", sub.Score, sub.Percentage, sub.Passed)
		}
		if sub.SubmittedAt == nil {
			t.Error("submitted_at should be set")
		}
		if len(sub.Answers) != 1 {
			t.Errorf("expected 1 stored answer, got %d", len(sub.Answers))
		}
		if resp.CanSubmit {
			t.Error("finalized submission must not accept another submit")
		}

		// The stored row must carry the finalized state, not just the
		// returned copy.
		stored, err := repo.Submission().GetByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if stored.Status != models.SubmissionSubmitted {
			t.Errorf("stored submission should be submitted, got %s", stored.Status)
		}

		published := waitForEvents(t, publisher, 1)
		if published[0].Type != events.EventExamResult {
			t.Errorf("expected %s, got %s", events.EventExamResult, published[0].Type)
		}
	})

	t.Run("no active submission", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		_, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{})
		if !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
		}
	})

	t.Run("double submit", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)
		start(t, svc, exam.ID)

		if _, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		_, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{})
		if !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("expected ErrSubmissionNotFound after finalize, got %v", err)
		}
	})

	t.Run("expired window", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		stale := &models.Submission{
			ExamID:        exam.ID,
			StudentID:     "s1",
			AttemptNumber: 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     time.Now().Add(-2 * time.Hour),
		}
		repo.Submission().Create(ctx, stale)

		_, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{})
		if !errors.Is(err, ErrSubmissionExpired) {
			t.Fatalf("expected ErrSubmissionExpired, got %v", err)
		}

		expired, _ := repo.Submission().GetByID(ctx, stale.ID)
		if expired.Status != models.SubmissionExpired {
			t.Errorf("submission should be expired, got %s", expired.Status)
		}
	})

	t.Run("unknown question id", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)
		start(t, svc, exam.ID)

		_, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{
			Answers: []AnswerRequest{answer(99, "Paris")},
		})
		var validationErrors ValidationErrors
		if !errors.As(err, &validationErrors) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("duplicate answers rejected", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)
		start(t, svc, exam.ID)

		_, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{
			Answers: []AnswerRequest{answer(1, "Paris"), answer(1, "London")},
		})
		var validationErrors ValidationErrors
		if !errors.As(err, &validationErrors) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("failed attempt can retry until exhausted", func(t *testing.T) {
		repo := newMockRepository()
		exam := seedOpenExam(repo, 2)
		svc, _ := newSubmissionServiceForTest(repo)

		start(t, svc, exam.ID)
		resp, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{
			Answers: []AnswerRequest{answer(1, "London")},
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if resp.Submission.Passed {
			t.Error("wrong answer should fail")
		}

		second := start(t, svc, exam.ID)
		if second.Submission.AttemptNumber != 2 {
			t.Errorf("expected attempt 2, got %d", second.Submission.AttemptNumber)
		}

		if _, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, err := svc.Start(ctx, exam.ID, "s1"); !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
	})
}

func TestSubmissionService_Access(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	exam := seedOpenExam(repo, 2)
	svc, _ := newSubmissionServiceForTest(repo)

	started, err := svc.Start(ctx, exam.ID, "s1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	subID := started.Submission.ID

	t.Run("student reads own submission", func(t *testing.T) {
		if _, err := svc.GetByID(ctx, subID, &models.User{ID: "s1", Role: models.RoleStudent}); err != nil {
			t.Fatalf("owner read failed: %v", err)
		}
	})

	t.Run("other student denied", func(t *testing.T) {
		_, err := svc.GetByID(ctx, subID, &models.User{ID: "s2", Role: models.RoleStudent})
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
	})

	t.Run("exam owner organization reads", func(t *testing.T) {
		if _, err := svc.GetByID(ctx, subID, &models.User{ID: "org-a", Role: models.RoleOrganization}); err != nil {
			t.Fatalf("exam owner read failed: %v", err)
		}
	})

	t.Run("foreign organization denied submission list", func(t *testing.T) {
		_, err := svc.ListByExam(ctx, exam.ID, repositories.SubmissionFilters{Limit: 20}, &models.User{ID: "org-b", Role: models.RoleOrganization})
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
	})

	t.Run("authority lists submissions", func(t *testing.T) {
		out, err := svc.ListByExam(ctx, exam.ID, repositories.SubmissionFilters{Limit: 20}, &models.User{ID: "authority-1", Role: models.RoleAuthority})
		if err != nil {
			t.Fatalf("ListByExam failed: %v", err)
		}
		if out.Total != 1 {
			t.Errorf("expected 1 submission, got %d", out.Total)
		}
	})

	t.Run("list mine orders newest attempt first", func(t *testing.T) {
		if _, err := svc.Submit(ctx, exam.ID, "s1", &SubmitRequest{}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, err := svc.Start(ctx, exam.ID, "s1"); err != nil {
			t.Fatalf("second Start failed: %v", err)
		}

		mine, err := svc.ListMine(ctx, exam.ID, "s1")
		if err != nil {
			t.Fatalf("ListMine failed: %v", err)
		}
		if len(mine) != 2 {
			t.Fatalf("expected 2 attempts, got %d", len(mine))
		}
		if mine[0].Submission.AttemptNumber != 2 {
			t.Errorf("expected newest attempt first, got attempt %d", mine[0].Submission.AttemptNumber)
		}
	})
}
