package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prago-api/models"
	"prago-api/store"
	"prago-api/utils"
)

type SupportService struct {
	store store.Store
}

func NewSupportService(s store.Store) *SupportService {
	return &SupportService{store: s}
}

type NewTicket struct {
	Subject    string            `json:"subject" binding:"required,max=200"`
	Department models.Department `json:"department" binding:"omitempty,oneof=sales support billing technical"`
	Message    string            `json:"message"`
}

func (s *SupportService) List(ctx context.Context, userID int64) ([]models.Ticket, error) {
	tickets, err := s.store.Repos().Tickets.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// Open creates a ticket and, when given, its first message.
func (s *SupportService) Open(ctx context.Context, userID int64, in NewTicket) (*models.Ticket, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, validationError("subject is required")
	}
	if in.Department == "" {
		in.Department = models.DepartmentSupport
	}

	ticket := &models.Ticket{
		UserID:       userID,
		TicketNumber: utils.NewTicketNumber(),
		Subject:      subject,
		Department:   in.Department,
		Status:       models.TicketOpen,
	}
	err := s.store.WithTx(ctx, func(r *store.Repos) error {
		if err := r.Tickets.Create(ctx, ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		if msg := strings.TrimSpace(in.Message); msg != "" {
			return r.Tickets.AddMessage(ctx, &models.TicketMessage{TicketID: ticket.ID, SenderID: userID, Message: msg})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, s.store.Repos(), ticket)
}

func (s *SupportService) load(ctx context.Context, r *store.Repos, userID int64, number string) (*models.Ticket, error) {
	ticket, err := r.Tickets.GetByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "Ticket not found")
	}
	if ticket.UserID != userID {
		return nil, notFoundError("Ticket not found")
	}
	return ticket, nil
}

func (s *SupportService) detail(ctx context.Context, r *store.Repos, ticket *models.Ticket) (*models.Ticket, error) {
	msgs, err := r.Tickets.Messages(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.TicketMessage{}
	}
	ticket.Messages = msgs
	return ticket, nil
}

func (s *SupportService) Get(ctx context.Context, userID int64, number string) (*models.Ticket, error) {
	r := s.store.Repos()
	ticket, err := s.load(ctx, r, userID, number)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, r, ticket)
}

func (s *SupportService) Reply(ctx context.Context, userID int64, number, message string) (*models.Ticket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationError("message is required")
	}
	r := s.store.Repos()
	ticket, err := s.load(ctx, r, userID, number)
	if err != nil {
		return nil, err
	}
	if !ticket.AcceptsMessages() {
		return nil, validationError("Cannot add messages to a closed or resolved ticket.")
	}
	if err := r.Tickets.AddMessage(ctx, &models.TicketMessage{TicketID: ticket.ID, SenderID: userID, Message: message}); err != nil {
		return nil, err
	}
	// Reload for the bumped updated_at.
	ticket, err = r.Tickets.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, r, ticket)
}

func (s *SupportService) SetStatus(ctx context.Context, userID int64, number string, status models.TicketStatus) (*models.Ticket, error) {
	switch status {
	case models.TicketOpen, models.TicketInProgress, models.TicketAnswered, models.TicketClosed, models.TicketResolved:
	default:
		return nil, validationError("Invalid ticket status")
	}
	r := s.store.Repos()
	ticket, err := s.load(ctx, r, userID, number)
	if err != nil {
		return nil, err
	}
	if err := r.Tickets.UpdateStatus(ctx, ticket.ID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Ticket not found")
		}
		return nil, err
	}
	ticket.Status = status
	return s.detail(ctx, r, ticket)
}

func (s *SupportService) ActiveCount(ctx context.Context, userID int64) (int, error) {
	return s.store.Repos().Tickets.CountByStatus(ctx, userID, models.ActiveTicketStatuses)
}
