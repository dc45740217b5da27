package clinical

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by project so several
// projects can share one Redis server.
//
// Key pattern: ldew:{project}:{entity}:...
// Channel pattern: ldew:{project}:{event_type}_events

// RecordsKey returns the Redis key for the set of records that have data.
// Pattern: ldew:{project}:records
func RecordsKey(project string) string {
	return fmt.Sprintf("ldew:%s:records", project)
}

// StatusKey returns the Redis key for a record's single-instance statuses.
// Pattern: ldew:{project}:record:{record}:status
func StatusKey(project, record string) string {
	return fmt.Sprintf("ldew:%s:record:%s:status", project, record)
}

// RepeatKey returns the Redis key for a record's repeat-instance statuses.
// Pattern: ldew:{project}:record:{record}:repeat
func RepeatKey(project, record string) string {
	return fmt.Sprintf("ldew:%s:record:%s:repeat", project, record)
}

// DataKey returns the Redis key for a record's field values.
// Pattern: ldew:{project}:record:{record}:data
func DataKey(project, record string) string {
	return fmt.Sprintf("ldew:%s:record:%s:data", project, record)
}

// LocksKey returns the Redis key for a record's locked form instances.
// Pattern: ldew:{project}:record:{record}:locks
func LocksKey(project, record string) string {
	return fmt.Sprintf("ldew:%s:record:%s:locks", project, record)
}

// ConflictKey returns the Redis key where another module publishes the forms
// it denies for a record.
// Pattern: ldew:{project}:conflict:{arm}:{record}
func ConflictKey(project, arm, record string) string {
	return fmt.Sprintf("ldew:%s:conflict:%s:%s", project, arm, record)
}

// StatusEventsChannel returns the Pub/Sub channel name for status changes.
// Pattern: ldew:{project}:status_events
func StatusEventsChannel(project string) string {
	return fmt.Sprintf("ldew:%s:status_events", project)
}
