// Package orchestrator routes each inbound message to exactly one flow: FAQ
// answer, order conversation, deposit pipeline or a free AI reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/deposit"
	"github.com/sungwon/wa-commerce/internal/inbound"
	"github.com/sungwon/wa-commerce/internal/orderflow"
	"github.com/sungwon/wa-commerce/internal/session"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// RetryMessage is sent when a step failed unexpectedly.
const RetryMessage = "Sorry, something went wrong on our side. Please try again."

// Route names the flow that handled a message.
type Route string

const (
	RouteFAQ     Route = "faq"
	RouteOrder   Route = "order"
	RouteDeposit Route = "deposit"
	RouteReply   Route = "reply"
	RouteDropped Route = "dropped"
	RouteFailed  Route = "failed"
)

var errNotOrder = errors.New("not an order message")

// UserDirectory resolves senders to registered users.
type UserDirectory interface {
	FindUserByPhone(ctx context.Context, phone string) (storage.User, error)
}

// FAQStore lists a merchant's FAQ entries.
type FAQStore interface {
	ListActiveFAQs(ctx context.Context, merchantID uuid.UUID) ([]storage.FAQ, error)
}

// Assistant is the subset of AI capabilities routing needs.
type Assistant interface {
	GenerateReply(ctx context.Context, text string) (string, error)
	ClassifyIsProductRequest(ctx context.Context, text string) (bool, error)
	MatchFAQ(ctx context.Context, text string, questions []string) (int, error)
}

// Sessions is the order session store.
type Sessions interface {
	Do(key session.Key, fn func(*session.Session) error) error
	Peek(key session.Key) session.State
}

// OrderFlow advances an order session by one message.
type OrderFlow interface {
	Handle(ctx context.Context, conv orderflow.Conversation, sess *session.Session, text string) error
}

// DepositPipeline handles deposit notices.
type DepositPipeline interface {
	Handle(ctx context.Context, in deposit.Input) (deposit.Result, error)
}

// Replier enqueues outbound text messages.
type Replier interface {
	SendText(credential, recipient, text string) error
}

// Deps are the collaborators of a Router.
type Deps struct {
	Users    UserDirectory
	FAQs     FAQStore
	AI       Assistant
	Sessions Sessions
	Orders   OrderFlow
	Deposits DepositPipeline
	Replies  Replier
}

// Router dispatches inbound messages.
type Router struct {
	Deps
	log zerolog.Logger
}

// NewRouter creates a Router.
func NewRouter(deps Deps, log zerolog.Logger) *Router {
	return &Router{Deps: deps, log: log}
}

type request struct {
	account    storage.Account
	msg        inbound.Message
	user       storage.User
	registered bool
	key        session.Key
	log        zerolog.Logger
}

// HandleInbound routes one message and returns the flow that took it.
// Unexpected failures are handled here: the session is reset and the sender
// gets a retry message.
func (r *Router) HandleInbound(ctx context.Context, account storage.Account, msg inbound.Message) Route {
	req := &request{
		account: account,
		msg:     msg,
		key:     session.Key{Phone: msg.Sender, AccountID: account.ID},
		log: r.log.With().
			Str("account_id", account.ID.String()).
			Str("message_id", msg.ProviderID).
			Str("kind", string(msg.Kind)).
			Logger(),
	}

	route, err := r.route(ctx, req)
	if err != nil {
		r.fail(req, route, err)
		route = RouteFailed
	}
	RoutesTotal.WithLabelValues(string(route)).Inc()
	req.log.Debug().Str("route", string(route)).Msg("inbound message routed")
	return route
}

func (r *Router) route(ctx context.Context, req *request) (Route, error) {
	user, err := r.Users.FindUserByPhone(ctx, req.msg.Sender)
	switch {
	case err == nil:
		req.user = user
		req.registered = true
	case !errors.Is(err, storage.ErrNotFound):
		return RouteFailed, fmt.Errorf("resolve sender: %w", err)
	}

	if req.msg.IsImage() {
		return r.routeImage(ctx, req)
	}

	if answered, err := r.answerFAQ(ctx, req); err != nil {
		return RouteFAQ, err
	} else if answered {
		return RouteFAQ, nil
	}

	if req.registered {
		handled, err := r.runOrder(ctx, req, true)
		if handled || err != nil {
			return RouteOrder, err
		}
		res, err := r.Deposits.Handle(ctx, r.depositInput(req))
		if err != nil {
			return RouteDeposit, err
		}
		if res.Handled() {
			return RouteDeposit, nil
		}
	}

	return r.reply(ctx, req), nil
}

func (r *Router) routeImage(ctx context.Context, req *request) (Route, error) {
	if !req.registered {
		return r.reply(ctx, req), nil
	}
	if req.msg.Text != "" && r.Sessions.Peek(req.key) != session.StateIdle {
		handled, err := r.runOrder(ctx, req, false)
		if handled || err != nil {
			return RouteOrder, err
		}
	}
	res, err := r.Deposits.Handle(ctx, r.depositInput(req))
	if err != nil {
		return RouteDeposit, err
	}
	if res.Handled() {
		return RouteDeposit, nil
	}
	return r.reply(ctx, req), nil
}

// runOrder hands the message to the order flow when the customer is
// mid-conversation, or when classify is set and the message asks for a
// product. The idle check and the step run under the session lock.
func (r *Router) runOrder(ctx context.Context, req *request, classify bool) (bool, error) {
	conv := orderflow.Conversation{
		Credential: req.account.Credential,
		MerchantID: req.account.MerchantID,
		Customer:   req.user,
		Phone:      req.msg.Sender,
	}
	err := r.Sessions.Do(req.key, func(sess *session.Session) error {
		if sess.State == session.StateIdle {
			if !classify {
				return errNotOrder
			}
			ok, err := r.AI.ClassifyIsProductRequest(ctx, req.msg.Text)
			if err != nil {
				req.log.Warn().Err(err).Msg("product request classification unavailable, passing message on")
				return errNotOrder
			}
			if !ok {
				return errNotOrder
			}
		}
		if err := r.Orders.Handle(ctx, conv, sess, req.msg.Text); err != nil {
			sess.Reset()
			return err
		}
		return nil
	})
	if errors.Is(err, errNotOrder) {
		return false, nil
	}
	return true, err
}

func (r *Router) depositInput(req *request) deposit.Input {
	return deposit.Input{
		Account:  req.account,
		Payer:    req.user,
		Phone:    req.msg.Sender,
		Text:     req.msg.Text,
		MediaURL: req.msg.MediaURL,
	}
}

// reply answers with a free AI reply. AI failures are logged and the
// message dropped.
func (r *Router) reply(ctx context.Context, req *request) Route {
	if req.msg.Text == "" {
		return RouteDropped
	}
	text, err := r.AI.GenerateReply(ctx, req.msg.Text)
	if err != nil {
		req.log.Error().Err(err).Msg("generic reply failed, dropping message")
		return RouteDropped
	}
	if text == "" {
		return RouteDropped
	}
	if err := r.Replies.SendText(req.account.Credential, req.msg.Sender, text); err != nil {
		req.log.Error().Err(err).Msg("failed to enqueue generic reply")
		return RouteDropped
	}
	return RouteReply
}

// fail is the boundary for unexpected errors.
func (r *Router) fail(req *request, route Route, err error) {
	req.log.Error().Err(err).Str("route", string(route)).Msg("inbound message handling failed")

	if route != RouteOrder {
		_ = r.Sessions.Do(req.key, func(sess *session.Session) error {
			if sess.State != session.StateIdle {
				sess.Reset()
			}
			return nil
		})
	}
	if err := r.Replies.SendText(req.account.Credential, req.msg.Sender, RetryMessage); err != nil {
		req.log.Error().Err(err).Msg("failed to enqueue retry message")
	}
}
