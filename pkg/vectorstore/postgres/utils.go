package postgres

import (
	"fmt"
	"strings"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// buildWhereClause builds a WHERE clause from filters using $n placeholders
// starting at startArg. Metadata filters compare against the JSONB payload
// as text.
func buildWhereClause(filters *vectorstore.Filters, startArg int) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if filters == nil {
		return "", args
	}

	next := func() int { return startArg + len(args) }

	if filters.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", next()))
		args = append(args, filters.UserID)
	}
	if filters.AgentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", next()))
		args = append(args, filters.AgentID)
	}
	if filters.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", next()))
		args = append(args, filters.RunID)
	}
	for key, value := range filters.Metadata {
		conditions = append(conditions, fmt.Sprintf("metadata->>$%d = $%d", next(), next()+1))
		args = append(args, key, fmt.Sprintf("%v", value))
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
