package model

import "fmt"

const (
	StatusPending             = "pending"
	StatusCheckingDestination = "checking_destination"
	StatusFetching            = "fetching"
	StatusTranscoding         = "transcoding"
	StatusPublishing          = "publishing"
	StatusCleaningUp          = "cleaning_up"
	StatusDone                = "done"
	StatusSkippedExisting     = "skipped_existing"
	StatusFailed              = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusCheckingDestination: true,
		StatusFailed:              true, // output-name collision within the run
	},
	StatusCheckingDestination: {
		StatusSkippedExisting: true,
		StatusFetching:        true,
		StatusFailed:          true,
	},
	StatusFetching: {
		StatusTranscoding: true,
		StatusFailed:      true,
	},
	StatusTranscoding: {
		StatusPublishing: true,
		StatusCleaningUp: true, // destination integration disabled
		StatusFailed:     true,
	},
	StatusPublishing: {
		// Upload failures after a successful transcode still clean up.
		StatusCleaningUp: true,
	},
	StatusCleaningUp: {
		StatusDone: true,
	},
	StatusDone:            {},
	StatusSkippedExisting: {},
	StatusFailed:          {},
}

func IsTerminalStatus(status string) bool {
	return status == StatusDone || status == StatusSkippedExisting || status == StatusFailed
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionItemStatus(item *WorkItem, toStatus string) error {
	from := item.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid item status transition: %q -> %q (source_key=%s)", from, toStatus, item.SourceKey)
	}
	item.Status = toStatus
	return nil
}
