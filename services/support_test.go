package services

import (
	"testing"

	"prago-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportTickets(t *testing.T) {
	e := newEnv(t)
	support := NewSupportService(e.store)
	u := e.user(t, "sara")
	stranger := e.user(t, "omid")

	ticket, err := support.Open(e.ctx, u.ID, NewTicket{Subject: "Cannot play video", Message: "Episode 3 is broken"})
	require.NoError(t, err)
	assert.Regexp(t, `^TCK-[0-9A-F]{8}$`, ticket.TicketNumber)
	assert.Equal(t, models.DepartmentSupport, ticket.Department)
	assert.Equal(t, models.TicketOpen, ticket.Status)
	require.Len(t, ticket.Messages, 1)

	_, err = support.Open(e.ctx, u.ID, NewTicket{Subject: "Refund", Department: models.DepartmentBilling})
	require.NoError(t, err)

	count, err := support.ActiveCount(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ticket, err = support.Reply(e.ctx, u.ID, ticket.TicketNumber, "Any update?")
	require.NoError(t, err)
	assert.Len(t, ticket.Messages, 2)

	_, err = support.Get(e.ctx, stranger.ID, ticket.TicketNumber)
	assertKind(t, err, KindNotFound)

	_, err = support.SetStatus(e.ctx, u.ID, ticket.TicketNumber, "archived")
	assertKind(t, err, KindValidation)

	ticket, err = support.SetStatus(e.ctx, u.ID, ticket.TicketNumber, models.TicketResolved)
	require.NoError(t, err)
	assert.Equal(t, models.TicketResolved, ticket.Status)

	_, err = support.Reply(e.ctx, u.ID, ticket.TicketNumber, "Thanks")
	assertKind(t, err, KindValidation)

	count, err = support.ActiveCount(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := support.List(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = support.Open(e.ctx, u.ID, NewTicket{Subject: "  "})
	assertKind(t, err, KindValidation)
}
