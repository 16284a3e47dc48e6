package razorpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shieldauth"
	rzp "github.com/razorpay/razorpay-go"
)

var ErrMissingID = errors.New("razorpay: response has no subscription id")

type subscriptionAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Gateway creates recurring subscriptions through Razorpay.
type Gateway struct {
	subs subscriptionAPI
}

var _ shieldauth.PaymentGateway = (*Gateway)(nil)

func NewGateway(keyID, keySecret string) (*Gateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and secret required")
	}
	client := rzp.NewClient(keyID, keySecret)
	return &Gateway{subs: client.Subscription}, nil
}

// CreateSubscription asks Razorpay to notify the customer directly.
// The SDK does not accept a context; ctx is only checked before the call.
func (g *Gateway) CreateSubscription(ctx context.Context, planID string, totalCount int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if planID == "" || totalCount <= 0 {
		return "", fmt.Errorf("razorpay: invalid plan %q count %d", planID, totalCount)
	}

	resp, err := g.subs.Create(map[string]interface{}{
		"plan_id":         planID,
		"customer_notify": 1,
		"total_count":     totalCount,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay: create subscription: %w", err)
	}

	id, _ := resp["id"].(string)
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}
