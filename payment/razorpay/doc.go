// Package razorpay adapts the Razorpay subscriptions API to
// shieldauth.PaymentGateway.
package razorpay
