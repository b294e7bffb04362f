package service

import (
	"context"

	"wxsync/internal/domain"
	"wxsync/internal/models"

	"github.com/rs/zerolog"
)

// CustomerPage is one page of the customer listing plus the overall total.
type CustomerPage struct {
	Customers []models.Customer `json:"customers"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// CustomerService serves the read side of the synced customer data.
type CustomerService struct {
	customers   domain.CustomerStore
	credentials *CredentialService
	logger      *zerolog.Logger
}

func NewCustomerService(customers domain.CustomerStore, credentials *CredentialService, logger *zerolog.Logger) *CustomerService {
	return &CustomerService{
		customers:   customers,
		credentials: credentials,
		logger:      logger,
	}
}

// ListCustomers returns one page of the operator's customers, newest first.
func (s *CustomerService) ListCustomers(ctx context.Context, operatorID string, page, pageSize int) (*CustomerPage, error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = models.DefaultCustomerPageSize
	}

	total, err := s.customers.CountCustomers(ctx, operatorID, corpID)
	if err != nil {
		return nil, err
	}

	customers, err := s.customers.GetCustomers(ctx, operatorID, corpID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	return &CustomerPage{
		Customers: customers,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}
