package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"prago-api/events"
	"prago-api/models"
	"prago-api/store"
	"prago-api/utils"
	"prago-api/zarinpal"

	"github.com/rs/zerolog/log"
)

// PaymentGateway is the subset of the Zarinpal client the services use.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, req zarinpal.PaymentRequest) (string, error)
	Verify(ctx context.Context, amount int64, authority string) (*zarinpal.VerifyResult, error)
	StartPayURL(authority string) string
}

type Payments struct {
	store       store.Store
	gateway     PaymentGateway
	events      events.Publisher
	siteURL     string
	frontendURL string
	now         func() time.Time
}

func NewPayments(s store.Store, gateway PaymentGateway, publisher events.Publisher, siteURL, frontendURL string) *Payments {
	return &Payments{
		store:       s,
		gateway:     gateway,
		events:      publisher,
		siteURL:     strings.TrimRight(siteURL, "/"),
		frontendURL: frontendURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PaymentFailure is attached to the error returned when the gateway refuses
// or cannot be reached after the order was already created.
type PaymentFailure struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	TransactionID string          `json:"transaction_id"`
	Gateway       json.RawMessage `json:"gateway,omitempty"`
}

type PaymentInit struct {
	Message       string `json:"message"`
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Authority     string `json:"authority"`
}

// Initiate starts a gateway payment for one of the user's orders.
func (p *Payments) Initiate(ctx context.Context, userID, orderID int64, callbackURL string) (*PaymentInit, error) {
	order, err := p.store.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	if order.UserID != userID {
		return nil, notFoundError("order not found")
	}
	return p.initiate(ctx, order, callbackURL, "")
}

func (p *Payments) initiate(ctx context.Context, order *models.Order, callbackURL, note string) (*PaymentInit, error) {
	switch order.Status {
	case models.OrderPaid:
		return nil, validationError("This order has already been paid")
	case models.OrderCanceled, models.OrderRefunded:
		return nil, validationError("This order can no longer be paid")
	}

	r := p.store.Repos()
	user, err := r.Users.GetByID(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}

	trx := &models.Transaction{
		OrderID:       order.ID,
		TransactionID: utils.NewTransactionID(),
		Amount:        order.FinalAmount,
		Status:        models.TransactionPending,
		PaymentMethod: models.PaymentMethodZarinpal,
		ExtraData:     models.ExtraData{},
	}
	if callbackURL != "" {
		trx.ExtraData["frontend_callback_url"] = callbackURL
	}
	if err := r.Transactions.Create(ctx, trx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	description, err := p.describe(ctx, r, order)
	if err != nil {
		return nil, err
	}
	if note != "" {
		description += " (" + note + ")"
	}

	authority, err := p.gateway.RequestPayment(ctx, zarinpal.PaymentRequest{
		Amount:      rials(order.FinalAmount),
		Description: description,
		CallbackURL: p.verifyURL(order.OrderNumber, trx.TransactionID),
		Email:       user.EmailOrEmpty(),
		Mobile:      user.PhoneOrEmpty(),
	})
	if err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("payment initiation failed")
		trx.MarkFailed(err.Error())
		if uErr := r.Transactions.Update(ctx, trx); uErr != nil {
			log.Error().Err(uErr).Str("transaction_id", trx.TransactionID).Msg("failed to record initiation failure")
		}
		// The order stays pending, so the caller needs its number to retry.
		details := PaymentFailure{OrderID: order.ID, OrderNumber: order.OrderNumber, TransactionID: trx.TransactionID}
		var gwErr *zarinpal.GatewayError
		if errors.As(err, &gwErr) {
			details.Gateway = gwErr.Details
			return nil, &Error{Kind: KindValidation, Message: "Payment gateway error", Details: details, Err: err}
		}
		return nil, upstreamError("Payment gateway is unavailable", details, err)
	}

	trx.PaymentGatewayReference = &authority
	trx.ExtraData["authority"] = authority
	if err := r.Transactions.Update(ctx, trx); err != nil {
		return nil, fmt.Errorf("store authority: %w", err)
	}

	return &PaymentInit{
		Message:       "Payment initiated successfully",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: trx.TransactionID,
		PaymentURL:    p.gateway.StartPayURL(authority),
		Authority:     authority,
	}, nil
}

func (p *Payments) describe(ctx context.Context, r *store.Repos, order *models.Order) (string, error) {
	switch {
	case order.OrderType == models.OrderTypeCourse && order.CourseID != nil:
		c, err := r.Courses.GetByID(ctx, *order.CourseID)
		if err != nil {
			return "", err
		}
		return "Payment for Course: " + c.Title, nil
	case order.OrderType == models.OrderTypeSubscription && order.PlanID != nil:
		plan, err := r.Plans.GetByID(ctx, *order.PlanID)
		if err != nil {
			return "", err
		}
		return "Payment for Subscription: " + plan.Name, nil
	}
	return "Payment for Order #" + order.OrderNumber, nil
}

func (p *Payments) verifyURL(orderNumber, transactionID string) string {
	q := url.Values{}
	q.Set("order_id", orderNumber)
	q.Set("transaction_id", transactionID)
	return p.siteURL + "/payment/zarinpal/verify/?" + q.Encode()
}

type VerifyParams struct {
	Authority     string
	Status        string
	OrderNumber   string
	TransactionID string
}

const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// VerifyOutcome is where the buyer is sent back to after the gateway callback.
type VerifyOutcome struct {
	Status        string
	Base          string
	TransactionID string
	RefID         string
	Message       string
}

func (o VerifyOutcome) RedirectURL() string {
	q := url.Values{}
	q.Set("status", o.Status)
	if o.TransactionID != "" {
		q.Set("transaction_id", o.TransactionID)
	}
	if o.RefID != "" {
		q.Set("ref_id", o.RefID)
	}
	if o.Message != "" {
		q.Set("message", o.Message)
	}
	sep := "?"
	if strings.Contains(o.Base, "?") {
		sep = "&"
	}
	return o.Base + sep + q.Encode()
}

func (p *Payments) errorOutcome(msg string) VerifyOutcome {
	return VerifyOutcome{Status: OutcomeError, Base: p.frontendURL, Message: msg}
}

func (p *Payments) findTransaction(ctx context.Context, params VerifyParams) (*models.Transaction, string) {
	r := p.store.Repos()
	switch {
	case params.TransactionID != "":
		trx, err := r.Transactions.GetByTransactionID(ctx, params.TransactionID)
		if err != nil {
			return nil, "Transaction not found"
		}
		return trx, ""
	case params.OrderNumber != "":
		order, err := r.Orders.GetByNumber(ctx, params.OrderNumber)
		if err != nil {
			return nil, "Order not found"
		}
		trx, err := r.Transactions.LatestForOrder(ctx, order.ID, models.PaymentMethodZarinpal)
		if err != nil {
			return nil, "Order not found"
		}
		return trx, ""
	}
	trx, err := r.Transactions.GetByAuthority(ctx, params.Authority)
	if err != nil {
		return nil, "Transaction not found"
	}
	return trx, ""
}

// Verify handles the gateway callback. Every path ends in a redirect, so the
// outcome carries failures instead of an error.
func (p *Payments) Verify(ctx context.Context, params VerifyParams) VerifyOutcome {
	if params.Authority == "" || params.Status == "" {
		return p.errorOutcome("Invalid payment verification request")
	}

	trx, msg := p.findTransaction(ctx, params)
	if trx == nil {
		log.Warn().Str("authority", params.Authority).Str("transaction_id", params.TransactionID).Msg(msg)
		return p.errorOutcome(msg)
	}

	// The gateway settles by authority alone, so a callback must carry the
	// authority issued for this transaction.
	if trx.PaymentGatewayReference == nil || *trx.PaymentGatewayReference != params.Authority {
		log.Warn().Str("authority", params.Authority).Str("transaction_id", trx.TransactionID).Msg("callback authority does not match transaction")
		return p.errorOutcome("Transaction not found")
	}
	authority := *trx.PaymentGatewayReference

	base := trx.ExtraData.Get("frontend_callback_url")
	if base == "" {
		base = p.frontendURL
	}
	outcome := VerifyOutcome{Base: base, TransactionID: trx.TransactionID}

	if trx.Status == models.TransactionSuccessful {
		outcome.Status = OutcomeSuccess
		outcome.RefID = trx.ExtraData.Get("ref_id")
		return outcome
	}

	r := p.store.Repos()
	if params.Status != "OK" {
		p.fail(ctx, r, trx, "Payment canceled by user")
		outcome.Status = OutcomeCanceled
		return outcome
	}

	res, err := p.gateway.Verify(ctx, rials(trx.Amount), authority)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", trx.TransactionID).Msg("payment verification request failed")
		outcome.Status = OutcomeError
		outcome.Message = "Payment verification failed"
		return outcome
	}

	if !res.Successful() {
		message := res.Message
		if !res.Rejected && (res.Code == zarinpal.CodeSuccess || res.Code == zarinpal.CodeAlreadyVerified) {
			message = "No reference ID"
		}
		if message == "" {
			message = fmt.Sprintf("verification failed with code %d", res.Code)
		}
		p.fail(ctx, r, trx, message)
		outcome.Status = OutcomeFailed
		outcome.Message = message
		return outcome
	}

	extra := models.ExtraData{
		"ref_id":    string(res.RefID),
		"card_pan":  res.CardPan,
		"card_hash": res.CardHash,
	}
	var paid *models.Order
	err = p.store.WithTx(ctx, func(tx *store.Repos) error {
		_, order, err := markTransactionSuccessful(ctx, tx, trx.ID, extra, p.now())
		paid = order
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("transaction_id", trx.TransactionID).Msg("failed to settle verified payment")
		outcome.Status = OutcomeError
		outcome.Message = "Payment verified but could not be recorded"
		return outcome
	}

	if paid != nil {
		if err := p.events.Publish(ctx, events.NewOrderEvent(events.OrderPaid, paid)); err != nil {
			log.Error().Err(err).Str("order_number", paid.OrderNumber).Msg("failed to publish order paid event")
		}
	}

	outcome.Status = OutcomeSuccess
	outcome.RefID = string(res.RefID)
	return outcome
}

func (p *Payments) fail(ctx context.Context, r *store.Repos, trx *models.Transaction, reason string) {
	trx.MarkFailed(reason)
	if err := r.Transactions.Update(ctx, trx); err != nil {
		log.Error().Err(err).Str("transaction_id", trx.TransactionID).Msg("failed to mark transaction failed")
	}
}
