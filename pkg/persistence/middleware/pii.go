package middleware

import (
	"context"
	"regexp"

	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/ports"
)

// piiMiddleware masks values of fields whose names match configured patterns
// before they are persisted. The in-memory state used by the engine is left
// untouched; only the stored copy is masked.
type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching
// the patterns. Patterns are compiled eagerly; invalid patterns panic.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	return m.next.Create(ctx, sessionID, workflowName, initialStage)
}

func (m *piiMiddleware) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	return m.next.GlobalState(ctx, sessionID)
}

func (m *piiMiddleware) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	return m.next.MergeGlobal(ctx, sessionID, m.mask(fields))
}

func (m *piiMiddleware) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	return m.next.StageState(ctx, sessionID, stage)
}

func (m *piiMiddleware) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return m.next.MergeStage(ctx, sessionID, stage, m.mask(fields))
}

func (m *piiMiddleware) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return m.next.ReplaceStage(ctx, sessionID, stage, m.mask(fields))
}

func (m *piiMiddleware) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	return m.next.SetCurrentStage(ctx, sessionID, stage)
}

func (m *piiMiddleware) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	return m.next.CurrentStage(ctx, sessionID)
}

func (m *piiMiddleware) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	return m.next.History(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) (bool, error) {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// mask deep-copies fields and replaces matching values, so the caller's map
// is never mutated.
func (m *piiMiddleware) mask(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		masked := false
		for _, p := range m.patterns {
			if p.MatchString(k) {
				out[k] = "***"
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			out[k] = m.mask(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}
