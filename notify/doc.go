// Package notify delivers one-time codes and account notices.
//
// A [Publisher] satisfies shieldauth.Notifier by queueing messages on a
// durable RabbitMQ queue. A [Consumer] drains that queue and hands each
// message to a [Dispatcher], which sends email through Resend and SMS
// through Twilio. [LogNotifier] is a development stand-in that only logs.
package notify
