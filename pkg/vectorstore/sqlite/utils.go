package sqlite

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// buildWhereClause builds a WHERE clause from scope filters.
// Metadata filters are applied in memory after scanning.
func buildWhereClause(filters *vectorstore.Filters) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if filters == nil {
		return "", args
	}

	if filters.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filters.RunID)
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// matchMetadata reports whether the payload metadata satisfies every
// exact-match filter entry.
func matchMetadata(metadata map[string]interface{}, want map[string]interface{}) bool {
	for key, expected := range want {
		actual, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// sortByScore orders points descending by score and truncates to limit.
func sortByScore(points []*vectorstore.Point, limit int) []*vectorstore.Point {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Score > points[j].Score
	})
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points
}
