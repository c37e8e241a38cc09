// contention.go: transient lock contention detection for bounded retries.
package datastore

import "strings"

// transientMarkers are substrings of driver error messages that indicate
// lock contention worth retrying. SQLite reports busy databases and tables,
// MySQL reports lock wait timeouts.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"could not obtain lock",
	"Lock wait timeout exceeded",
}

// IsTransientError reports whether an error looks like short-lived database
// contention. Callers use it to decide between a bounded retry and a hard
// failure.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
