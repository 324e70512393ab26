package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type mongoRepository struct {
	client   *mongo.Client
	bookings *mongo.Collection
	sessions *mongo.Collection
	now      func() time.Time
}

// NewMongoRepository stores bookings and sessions in one database. Writes use
// multi-document transactions, so the deployment must be a replica set.
func NewMongoRepository(client *mongo.Client, db *mongo.Database) Repository {
	return &mongoRepository{
		client:   client,
		bookings: db.Collection("bookings"),
		sessions: db.Collection("sessions"),
		now:      time.Now,
	}
}

func (r *mongoRepository) GetBookingByID(ctx context.Context, id string) (*Booking, error) {
	var b Booking
	err := r.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *mongoRepository) CommitCancellation(ctx context.Context, c Cancellation) error {
	return r.inTx(ctx, func(sc mongo.SessionContext) error {
		set := bson.M{
			"status":             StatusCancelled,
			"payment_status":     c.PaymentStatus,
			"refund_amount":      c.RefundedAmount,
			"refund_percentage":  c.RefundPercentage,
			"refund_explanation": c.Explanation,
			"cancelled_at":       c.CancelledAt,
			"cancelled_by":       c.CancelledBy,
			"updated_at":         r.now().UTC(),
		}
		if c.RefundID != nil {
			set["refund_id"] = *c.RefundID
		}
		if c.Reason != "" {
			set["cancellation_reason"] = c.Reason
		}

		res, err := r.bookings.UpdateOne(sc,
			bson.M{"_id": c.BookingID, "status": StatusConfirmed, "payment_status": c.ExpectedPaymentStatus},
			bson.M{"$set": set, "$inc": bson.M{"refunded_amount": c.RefundedAmount}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrStateChanged
		}
		if err := r.applyChargeRefunds(sc, c.BookingID, c.ChargeRefunds); err != nil {
			return err
		}

		return r.releaseSeat(sc, c.SessionID)
	})
}

func (r *mongoRepository) CommitTransfer(ctx context.Context, t Transfer) error {
	return r.inTx(ctx, func(sc mongo.SessionContext) error {
		update := bson.M{
			"$set": bson.M{
				"session_id":                t.ToSessionID,
				"transferred_from":          t.FromSessionID,
				"transferred_at":            t.At,
				"transfer_price_difference": t.PriceDifference,
				"amount":                    t.NewAmount,
				"transfer_refund_amount":    nullAmount(t.RefundedAmount),
				"transfer_refund_id":        t.RefundID,
				"updated_at":                r.now().UTC(),
			},
		}
		if len(t.NewCharges) > 0 {
			update["$push"] = bson.M{"charges": bson.M{"$each": t.NewCharges}}
		}

		res, err := r.bookings.UpdateOne(sc,
			bson.M{"_id": t.BookingID, "session_id": t.FromSessionID, "status": StatusConfirmed, "payment_status": PaymentPaid},
			update,
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrStateChanged
		}

		res, err = r.sessions.UpdateOne(sc,
			bson.M{
				"_id":             t.ToSessionID,
				"is_force_closed": false,
				"start_date":      bson.M{"$gt": t.At},
				"$expr":           bson.M{"$lt": bson.A{"$enrolled", "$capacity"}},
			},
			bson.M{"$inc": bson.M{"enrolled": 1}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrSeatUnavailable
		}

		if err := r.releaseSeat(sc, t.FromSessionID); err != nil {
			return err
		}
		return r.applyChargeRefunds(sc, t.BookingID, t.ChargeRefunds)
	})
}

// MarkBalancePaid touches one document, so it needs no transaction.
func (r *mongoRepository) MarkBalancePaid(ctx context.Context, p BalancePayment) error {
	update := bson.M{"$set": bson.M{
		"payment_status":  PaymentPaid,
		"balance_due":     0,
		"balance_paid_at": p.At,
		"updated_at":      r.now().UTC(),
	}}
	if len(p.Charges) > 0 {
		update["$push"] = bson.M{"charges": bson.M{"$each": p.Charges}}
	}

	res, err := r.bookings.UpdateOne(ctx,
		bson.M{
			"_id":             p.BookingID,
			"status":          StatusConfirmed,
			"payment_status":  PaymentDepositPaid,
			"balance_paid_at": bson.M{"$exists": false},
		},
		update,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *mongoRepository) applyChargeRefunds(sc mongo.SessionContext, bookingID string, refunds []ChargeRefund) error {
	for _, cr := range refunds {
		_, err := r.bookings.UpdateOne(sc,
			bson.M{"_id": bookingID, "charges.charge_id": cr.ChargeID},
			bson.M{"$inc": bson.M{"charges.$.refunded": cr.Amount}},
		)
		if err != nil {
			return fmt.Errorf("apply refund to charge %s: %w", cr.ChargeID, err)
		}
	}
	return nil
}

// releaseSeat decrements enrolled but never below zero.
func (r *mongoRepository) releaseSeat(sc mongo.SessionContext, sessionID string) error {
	res, err := r.sessions.UpdateOne(sc,
		bson.M{"_id": sessionID, "enrolled": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"enrolled": -1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.sessions.CountDocuments(sc, bson.M{"_id": sessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("release seat on %s: %w", sessionID, session.ErrSessionNotFound)
	}
	return nil
}

func (r *mongoRepository) inTx(ctx context.Context, fn func(mongo.SessionContext) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
