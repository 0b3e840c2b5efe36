// Package health combines dependency checks into one status and JSON summary.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type Check struct {
	Name  string
	Check func(context.Context, bool) (int, string, error)
}

// CheckAll runs every check and reports 503 if any of them fails. A check whose message is
// itself a JSON object is nested as its dependencies.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	var (
		overallStatus = http.StatusOK
		messages      = make([]string, 0, len(checks))
	)

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}

		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}

		var msg string

		if json.Valid([]byte(message)) && strings.HasPrefix(message, "{") {
			msg = fmt.Sprintf(`{"resource": %s, "status": "%d", "error": %s, "dependencies": [%s]}`, quote(check.Name), status, quote(errMsg), message)
		} else {
			msg = fmt.Sprintf(`{"resource": %s, "status": "%d", "error": %s, "message": %s}`, quote(check.Name), status, quote(errMsg), quote(message))
		}

		messages = append(messages, msg)
	}

	return overallStatus, fmt.Sprintf(`{"status":"%d", "dependencies":[%s]}`, overallStatus, strings.Join(messages, ",\n")), nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
