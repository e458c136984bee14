// Package policy maps a classified severity to the response-time advisory
// string shown to citizens and dispatch operators.
package policy

// ResponseTimeFor returns the response-time advisory for a severity.
// Unrecognized severities fall through to the 7-day default, so the
// function is total and never fails.
func ResponseTimeFor(severity string) string {
	switch severity {
	case "high":
		return "Task must be addressed within 1 day"
	case "medium":
		return "Task must be addressed within 3 days"
	default:
		return "Task must be addressed within 7 days"
	}
}
