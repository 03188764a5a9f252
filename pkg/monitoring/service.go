package monitoring

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/solutionhub/platform/pkg/common/logger"
	"gorm.io/datatypes"
)

var ErrUnauthorized = errors.New("rule does not belong to user")

// CreateRuleInput carries the owner-editable fields of a rule.
type CreateRuleInput struct {
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Keywords        []string     `json:"keywords"`
	OrgFilters      OrgFilters   `json:"org_filters,omitempty"`
	ValueFilters    ValueFilters `json:"value_filters,omitempty"`
	TypeFilters     []string     `json:"type_filters,omitempty"`
	CategoryFilters []string     `json:"category_filters,omitempty"`
	Channels        []string     `json:"channels,omitempty"`
	NotifyStartHour *int         `json:"notify_start_hour,omitempty"`
	NotifyEndHour   *int         `json:"notify_end_hour,omitempty"`
	NotifyDays      []string     `json:"notify_days,omitempty"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, userID string, input CreateRuleInput) (*Rule, error) {
	channels := input.Channels
	if len(channels) == 0 {
		channels = []string{ChannelEmail}
	}

	rule := &Rule{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Description:     input.Description,
		UserID:          userID,
		Status:          StatusActive,
		Keywords:        datatypes.JSONSlice[string](input.Keywords),
		OrgFilters:      datatypes.NewJSONType(input.OrgFilters),
		ValueFilters:    datatypes.NewJSONType(input.ValueFilters),
		TypeFilters:     datatypes.JSONSlice[string](input.TypeFilters),
		CategoryFilters: datatypes.JSONSlice[string](input.CategoryFilters),
		Channels:        datatypes.JSONSlice[string](channels),
		NotifyStartHour: input.NotifyStartHour,
		NotifyEndHour:   input.NotifyEndHour,
		NotifyDays:      datatypes.JSONSlice[string](input.NotifyDays),
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"rule_id": rule.ID,
		"user_id": userID,
	}).Info("monitoring rule created")

	return rule, nil
}

func (s *Service) Update(ctx context.Context, id, userID string, input CreateRuleInput) (*Rule, error) {
	rule, err := s.ownedRule(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	rule.Name = input.Name
	rule.Description = input.Description
	rule.Keywords = datatypes.JSONSlice[string](input.Keywords)
	rule.OrgFilters = datatypes.NewJSONType(input.OrgFilters)
	rule.ValueFilters = datatypes.NewJSONType(input.ValueFilters)
	rule.TypeFilters = datatypes.JSONSlice[string](input.TypeFilters)
	rule.CategoryFilters = datatypes.JSONSlice[string](input.CategoryFilters)
	if len(input.Channels) > 0 {
		rule.Channels = datatypes.JSONSlice[string](input.Channels)
	}
	rule.NotifyStartHour = input.NotifyStartHour
	rule.NotifyEndHour = input.NotifyEndHour
	rule.NotifyDays = datatypes.JSONSlice[string](input.NotifyDays)

	if err := s.repo.Save(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Rule, error) {
	return s.repo.FindByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id, userID string) (*Rule, error) {
	return s.ownedRule(ctx, id, userID)
}

func (s *Service) Pause(ctx context.Context, id, userID string) (*Rule, error) {
	return s.transition(ctx, id, userID, StatusPaused)
}

func (s *Service) Resume(ctx context.Context, id, userID string) (*Rule, error) {
	return s.transition(ctx, id, userID, StatusActive)
}

func (s *Service) Stop(ctx context.Context, id, userID string) (*Rule, error) {
	return s.transition(ctx, id, userID, StatusStopped)
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.ownedRule(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Statistics(ctx context.Context, userID string) (map[string]int64, error) {
	total, active, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		"total":    total,
		"active":   active,
		"inactive": total - active,
	}, nil
}

func (s *Service) transition(ctx context.Context, id, userID, status string) (*Rule, error) {
	if _, err := s.ownedRule(ctx, id, userID); err != nil {
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ownedRule(ctx context.Context, id, userID string) (*Rule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.UserID != userID {
		return nil, ErrUnauthorized
	}
	return rule, nil
}
