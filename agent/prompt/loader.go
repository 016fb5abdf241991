package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/support.txt
var supportRaw string

// Support returns the system instruction for the support agent.
func Support() string {
	return strings.TrimSpace(supportRaw)
}
