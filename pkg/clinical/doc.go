// Package clinical provides type-safe Go definitions and Redis schema patterns
// for the study data that drives linear data entry.
//
// # Overview
//
// A study is organised into arms. Each arm is an ordered timeline of events,
// and each event carries an ordered list of forms (instruments). A record is
// one subject enrolled in one arm. For every record, event and form the host
// application keeps a completion status, and repeating forms keep one status
// per instance.
//
// This package models that data, and its Client stores it in Redis so the
// workflow service can read completion state, copy field values between
// events, lock forms and merge denials computed by another module.
//
// # Core Concepts
//
// CompletionStatus mirrors the host's "<form>_complete" field. Only
// StatusComplete satisfies the sequential gate.
//
// FormState holds the status of one form in one event, including every
// repeat instance. A repeating form counts as completed only when all of
// its instances are complete.
//
// AccessMatrix maps record -> event -> form -> denied. Only denied entries
// are stored; a missing entry means the form is allowed.
//
// # Redis Schema
//
// All keys are namespaced by project: ldew:{project}:{entity}...
//
// Records index:       ldew:{project}:records
// Single statuses:     ldew:{project}:record:{record}:status   field {event}:{form}_complete
// Repeat statuses:     ldew:{project}:record:{record}:repeat   field {event}:{form}_complete:{instance}
// Field values:        ldew:{project}:record:{record}:data     field {event}:{instance}:{field}
// Locks:               ldew:{project}:record:{record}:locks    member {event}:{form}:{instance}
// External denials:    ldew:{project}:conflict:{arm}:{record}  member {event}:{form}
//
// Pub/Sub channel: ldew:{project}:status_events
//
// # Usage Example
//
//	client, err := clinical.NewClient(&redis.Options{Addr: "localhost:6379"}, "pid-13")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.SetStatus(ctx, "1001", "baseline", "demographics", clinical.StatusComplete)
//	data, err := client.FetchCompletion(ctx, []string{"1001"}, []string{"demographics", "vitals"})
package clinical
