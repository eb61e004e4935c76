package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"prago-api/models"
	"prago-api/store"
)

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, t *models.Ticket) error {
	d, err := r.s.lock("tickets.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return fmt.Errorf("%w: ticket number", store.ErrDuplicate)
		}
	}
	t.ID = d.nextID()
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	stored := *t
	stored.Messages = nil
	d.tickets[t.ID] = stored
	return nil
}

func (r *ticketRepo) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, t := range d.tickets {
		if t.TicketNumber == number {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *ticketRepo) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Ticket
	for _, t := range d.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id int64, status models.TicketStatus) error {
	d, err := r.s.lock("tickets.update_status")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	t, ok := d.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = now()
	d.tickets[id] = t
	return nil
}

func (r *ticketRepo) AddMessage(ctx context.Context, m *models.TicketMessage) error {
	d, err := r.s.lock("tickets.add_message")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	t, ok := d.tickets[m.TicketID]
	if !ok {
		return store.ErrNotFound
	}
	m.ID = d.nextID()
	m.CreatedAt = now()
	d.messages[m.ID] = *m
	t.UpdatedAt = m.CreatedAt
	d.tickets[t.ID] = t
	return nil
}

func (r *ticketRepo) Messages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.TicketMessage
	for _, m := range d.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ticketRepo) CountByStatus(ctx context.Context, userID int64, statuses []models.TicketStatus) (int, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	n := 0
	for _, t := range d.tickets {
		if t.UserID == userID && slices.Contains(statuses, t.Status) {
			n++
		}
	}
	return n, nil
}

type postRepo struct{ s *Store }

func (r *postRepo) Create(ctx context.Context, p *models.Post) error {
	d, err := r.s.lock("posts.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.posts {
		if existing.Slug == p.Slug {
			return fmt.Errorf("%w: post slug", store.ErrDuplicate)
		}
	}
	p.ID = d.nextID()
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	d.posts[p.ID] = *p
	return nil
}

func (r *postRepo) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, p := range d.posts {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *postRepo) ListPublished(ctx context.Context, at time.Time, ordering store.PostOrdering) ([]models.Post, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Post
	for _, p := range d.posts {
		if p.IsPublishedAt(at) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch ordering {
		case store.OrderByPublishedAsc:
			return a.PublishedAt.Before(*b.PublishedAt)
		case store.OrderByViewsDesc:
			return a.ViewsCount > b.ViewsCount
		case store.OrderByViewsAsc:
			return a.ViewsCount < b.ViewsCount
		default:
			return a.PublishedAt.After(*b.PublishedAt)
		}
	})
	return out, nil
}

func (r *postRepo) IncrementViews(ctx context.Context, id int64) error {
	d, err := r.s.lock("posts.increment_views")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	p, ok := d.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	p.ViewsCount++
	d.posts[id] = p
	return nil
}
