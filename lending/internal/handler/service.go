package handler

import (
	"context"

	"github.com/Astemirdum/club-lending/lending/internal/model"
	"github.com/Astemirdum/club-lending/lending/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LendingService interface {
	SubmitRequest(ctx context.Context, actor model.Actor, req model.SubmitRequest) (model.Transaction, error)
	Decide(ctx context.Context, id string, actor model.Actor, decision model.Action) (model.Transaction, error)
	MarkCollected(ctx context.Context, id string, actor model.Actor) (model.Transaction, error)
	Amend(ctx context.Context, id string, actor model.Actor, a model.Amendment) (model.Transaction, error)
	GetRequest(ctx context.Context, id string) (model.TransactionDetails, error)
	ListRequests(ctx context.Context, f model.Filter) ([]model.Transaction, error)
	RecordEvent(ctx context.Context, ev model.TransactionEvent) error
}

var _ LendingService = (*service.Service)(nil)
