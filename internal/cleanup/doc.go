// Package cleanup runs the periodic purge of the gateway's temp directory.
//
// Staged uploads and downloaded media accumulate under the temp root.
// The scheduler removes files older than a configured age on a cron
// schedule (six-field, seconds first). Overlapping runs are skipped.
package cleanup
