// Package storage owns the bot's SQLite database: opening, migrations and
// the delivery audit log. Domain stores (reminders, tasks) run their queries
// on the shared handle returned by DB.SQL().
package storage
