package handler

import (
	"context"

	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/circulation/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CirculationService interface {
	Checkout(ctx context.Context, patron, poolUID string, dm model.DeliveryMechanism) (model.Loan, error)
	Checkin(ctx context.Context, patron, poolUID string) error
	PlaceHold(ctx context.Context, patron, poolUID string) (model.Hold, error)
	ReleaseHold(ctx context.Context, patron, poolUID string) error
	Fulfill(ctx context.Context, patron, poolUID string, dm model.DeliveryMechanism) (model.Fulfillment, error)
	PatronActivity(ctx context.Context, patron string) ([]model.Loan, []model.Hold, error)
	UpdateLoan(ctx context.Context, loanUID string, doc model.StatusDocument) error
}

var _ CirculationService = (*service.Service)(nil)
