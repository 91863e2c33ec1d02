package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/geo"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// TaskService is the application-facing API over the Record Store. Every
// mutation it makes is queued for sync by the store itself.
type TaskService struct {
	repo     domain.TaskRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewTaskService(repo domain.TaskRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *TaskService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TaskService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// NearbyTask is a task with its distance from the query point in meters.
type NearbyTask struct {
	Task     *models.Task `json:"task"`
	Distance float64      `json:"distance_m"`
}

func (s *TaskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	created, err := s.repo.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.publish(models.EventTaskCreated, created)
	return created, nil
}

// Get returns domain.ErrTaskNotFound when the id is unknown.
func (s *TaskService) Get(ctx context.Context, id int64) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrTaskNotFound, id)
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context) ([]*models.Task, error) {
	return s.repo.ListTasks(ctx)
}

// Update stores the task and returns the row as now persisted.
func (s *TaskService) Update(ctx context.Context, task *models.Task) (*models.Task, error) {
	rows, err := s.repo.UpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrTaskNotFound, task.ID)
	}
	updated, err := s.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	s.publish(models.EventTaskUpdated, updated)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	rows, err := s.repo.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", domain.ErrTaskNotFound, id)
	}
	s.publish(models.EventTaskDeleted, &models.Task{ID: id})
	return nil
}

// Complete marks the task done by the given person. Completing an already
// completed task changes nothing and queues nothing.
func (s *TaskService) Complete(ctx context.Context, id int64, by string) (*models.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return task, nil
	}
	task.MarkCompleted(by, s.now().UTC())
	return s.Update(ctx, task)
}

// Nearby returns tasks with a location within radius meters of the point,
// closest first.
func (s *TaskService) Nearby(ctx context.Context, lat, lon, radius float64) ([]NearbyTask, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range: %f, %f", domain.ErrConstraint, lat, lon)
	}
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var result []NearbyTask
	for _, task := range tasks {
		if !task.HasLocation() {
			continue
		}
		d := geo.Distance(lat, lon, *task.Latitude, *task.Longitude)
		if radius > 0 && d > radius {
			continue
		}
		result = append(result, NearbyTask{Task: task, Distance: d})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Distance < result[j].Distance
	})
	return result, nil
}

func (s *TaskService) publish(eventType string, task *models.Task) {
	if s.eventBus == nil {
		return
	}
	payload := events.TaskEventPayload{
		TaskID:    task.ID,
		Title:     task.Title,
		Priority:  string(task.Priority),
		Completed: task.Completed,
		ChangedAt: s.now().UTC(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("task_id", task.ID).Msg("failed to publish task event")
	}
}
