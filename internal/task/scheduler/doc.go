// Package scheduler turns cron and interval schedules into task engine
// submissions. It never runs work itself.
package scheduler
