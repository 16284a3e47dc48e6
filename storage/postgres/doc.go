// Package postgres is the PostgreSQL account store.
//
// [Store] implements shieldauth.AccountStore and subscription.Store over
// database/sql with the pgx driver. Webhook writes use a conditional UPDATE
// so a transition only lands if the row still holds the state it was
// computed from. Schema changes ship as embedded goose migrations; call
// [Migrate] at startup.
package postgres
