package metrics

// Status label values shared by the recorders below.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome maps an error to a status label.
func Outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RequestCreate records a verification request creation.
func RequestCreate(status string) {
	if !enabled {
		return
	}
	requestCreateTotal.WithLabelValues(status).Inc()
}

// RequestCancel records a verification request cancellation.
func RequestCancel(status string) {
	if !enabled {
		return
	}
	requestCancelTotal.WithLabelValues(status).Inc()
}

// Fulfillment records a fulfillment outcome: accepted, rejected or error.
func Fulfillment(result string) {
	if !enabled {
		return
	}
	fulfillmentTotal.WithLabelValues(result).Inc()
}

// Dispatch records an outbound oracle dispatch.
func Dispatch(status string) {
	if !enabled {
		return
	}
	dispatchTotal.WithLabelValues(status).Inc()
}

// AdminUpdate records an admin parameter update.
func AdminUpdate(param, status string) {
	if !enabled {
		return
	}
	adminUpdateTotal.WithLabelValues(param, status).Inc()
}

// EventPublish records an event delivery to a sink.
func EventPublish(sink, status string) {
	if !enabled {
		return
	}
	eventPublishTotal.WithLabelValues(sink, status).Inc()
}

// RateLimited records a request rejected by the limiter at scope.
func RateLimited(scope string) {
	if !enabled {
		return
	}
	rateLimitedTotal.WithLabelValues(scope).Inc()
}
