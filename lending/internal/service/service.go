package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
	"github.com/Astemirdum/club-lending/lending/internal/repository"
	"github.com/Astemirdum/club-lending/lending/internal/workflow"
	"github.com/Astemirdum/club-lending/pkg/kafka"
)

const expireBatch = 100

type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	enqueuer Enqueuer
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(repo repository.Repository, enqueuer Enqueuer, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:      log,
		repo:     repo,
		enqueuer: enqueuer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enqueuer == nil {
		s.enqueuer = NopEnqueuer{}
	}
	return s
}

// SubmitRequest routes a new borrow request and persists it together with
// its department relay record, if any.
func (s *Service) SubmitRequest(ctx context.Context, actor model.Actor, req model.SubmitRequest) (model.Transaction, error) {
	if err := workflow.CheckRequester(actor); err != nil {
		return model.Transaction{}, err
	}
	item, err := s.repo.GetItem(ctx, req.InventoryID)
	if err != nil {
		return model.Transaction{}, err
	}
	avail, err := s.repo.Availability(ctx, item.ID)
	if err != nil {
		return model.Transaction{}, err
	}

	in := workflow.RouteInput{
		Actor:        actor,
		Item:         item,
		Availability: avail,
		Request:      req,
		Now:          s.now(),
		NewID:        s.newID,
	}
	if actor.Kind == model.ActorStudent {
		if in.Membership, err = s.repo.GetMembership(ctx, item.ClubID, actor.ID); err != nil {
			return model.Transaction{}, err
		}
		if in.Student, err = s.repo.GetStudent(ctx, actor.ID); err != nil {
			return model.Transaction{}, err
		}
	}

	t, dr, err := workflow.Route(in)
	if err != nil {
		return model.Transaction{}, err
	}
	created, err := s.repo.CreateTransaction(ctx, t, dr, workflow.CheckCapacity)
	if err != nil {
		return model.Transaction{}, err
	}

	s.log.Info("request submitted",
		zap.String("id", created.ID),
		zap.String("inventory_id", created.InventoryID),
		zap.String("status", string(created.Status)),
		zap.Bool("relayed", dr != nil))
	s.publish(actor, "", created)
	return created, nil
}

func (s *Service) Decide(ctx context.Context, id string, actor model.Actor, decision model.Action) (model.Transaction, error) {
	if decision != model.ActionApprove && decision != model.ActionReject {
		return model.Transaction{}, errs.Validation("unknown decision %q", decision)
	}
	return s.apply(ctx, id, actor, decision)
}

func (s *Service) MarkCollected(ctx context.Context, id string, actor model.Actor) (model.Transaction, error) {
	return s.apply(ctx, id, actor, model.ActionCollect)
}

func (s *Service) apply(ctx context.Context, id string, actor model.Actor, action model.Action) (model.Transaction, error) {
	details, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	return s.applyTo(ctx, details, actor, action)
}

func (s *Service) applyTo(ctx context.Context, details model.TransactionDetails, actor model.Actor, action model.Action) (model.Transaction, error) {
	item, err := s.repo.GetItem(ctx, details.InventoryID)
	if err != nil {
		return model.Transaction{}, err
	}
	now := s.now()
	step, err := workflow.Apply(actor, workflow.Subject{
		Transaction:       details.Transaction,
		OwnerClubID:       item.ClubID,
		DepartmentRequest: details.DepartmentRequest,
	}, action, now)
	if err != nil {
		return model.Transaction{}, err
	}

	ch := repository.StatusChange{
		ID:          details.ID,
		InventoryID: details.InventoryID,
		Quantity:    details.Quantity,
		Expected:    step.Expected,
		To:          step.To,
		Decision:    step.Decision,
		DecidedBy:   actor.ID,
		Now:         now,
	}
	if step.CheckCapacity {
		ch.Capacity = workflow.CheckCapacity
	}
	updated, err := s.repo.Transition(ctx, ch)
	if err != nil {
		return model.Transaction{}, err
	}

	s.log.Info("request transitioned",
		zap.String("id", updated.ID),
		zap.String("action", string(action)),
		zap.String("from", string(step.Expected)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", string(actor.Kind)+":"+actor.ID))
	s.publish(actor, step.Expected, updated)
	updated.Status = updated.EffectiveStatus(now)
	return updated, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (model.TransactionDetails, error) {
	details, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return model.TransactionDetails{}, err
	}
	details.Status = details.EffectiveStatus(s.now())
	return details, nil
}

func (s *Service) ListRequests(ctx context.Context, f model.Filter) ([]model.Transaction, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, errs.Validation("unknown status %q", f.Status)
	}
	f.Now = s.now()
	items, err := s.repo.ListTransactions(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(f.Now)
	}
	return items, nil
}

// Amend changes message and/or due date without a status transition.
func (s *Service) Amend(ctx context.Context, id string, actor model.Actor, a model.Amendment) (model.Transaction, error) {
	details, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	item, err := s.repo.GetItem(ctx, details.InventoryID)
	if err != nil {
		return model.Transaction{}, err
	}
	now := s.now()
	if err := workflow.CanAmend(actor, workflow.Subject{
		Transaction:       details.Transaction,
		OwnerClubID:       item.ClubID,
		DepartmentRequest: details.DepartmentRequest,
	}, a, now); err != nil {
		return model.Transaction{}, err
	}
	updated, err := s.repo.Amend(ctx, id, details.Status, a, now)
	if err != nil {
		return model.Transaction{}, err
	}
	updated.Status = updated.EffectiveStatus(now)
	return updated, nil
}

// ExpireOverdue moves collected requests past their due date to OVERDUE.
// Requests changed concurrently are skipped.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.now(), expireBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range expired {
		if _, err := s.applyTo(ctx, model.TransactionDetails{Transaction: t}, model.SystemActor, model.ActionExpire); err != nil {
			if errors.Is(err, errs.ErrConflict) || errors.Is(err, errs.ErrInvalidTransition) {
				continue
			}
			s.log.Error("expire", zap.String("id", t.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// RecordEvent used by kafka consumer.
func (s *Service) RecordEvent(ctx context.Context, ev model.TransactionEvent) error {
	return s.repo.RecordEvent(ctx, ev)
}

func (s *Service) publish(actor model.Actor, from model.Status, t model.Transaction) {
	ev := model.TransactionEvent{
		TransactionID: t.ID,
		From:          from,
		To:            t.Status,
		ActorKind:     actor.Kind,
		ActorID:       actor.ID,
		Timestamp:     t.UpdatedAt,
	}
	if err := s.enqueuer.Enqueue(kafka.TransactionTopic, t.ID, ev); err != nil {
		s.log.Warn("publish event", zap.String("id", t.ID), zap.Error(err))
	}
}
