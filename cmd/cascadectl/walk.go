package main

import (
	"context"
	"fmt"

	cascade "github.com/goliatone/go-cascade"
	"github.com/spf13/cobra"
)

type walkStep struct {
	Level       string         `json:"level"`
	Label       string         `json:"label"`
	Query       string         `json:"query"`
	Suggestions int            `json:"suggestions"`
	Selected    cascade.Entity `json:"selected"`
}

type walkResult struct {
	Steps  []walkStep        `json:"steps"`
	Filter map[string]string `json:"filter"`
}

func newWalkCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "walk <name>...",
		Short: "Commit a path level by level, matching each name against suggestions",
		Example: `  cascadectl walk --fixture geo.json Argentina Cordoba "Rio Cuarto"
  cascadectl walk --config portal.yaml Chile Santiago`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open()
			if err != nil {
				return err
			}
			defer s.close()
			if len(args) > s.hierarchy.Len() {
				return fmt.Errorf("got %d names for %d levels", len(args), s.hierarchy.Len())
			}
			resolver, err := s.resolver()
			if err != nil {
				return err
			}
			defer resolver.Close()

			ctx, cancel := e.context(cmd)
			defer cancel()
			result, err := walk(ctx, resolver, args)
			if err != nil {
				return err
			}
			return writeWalk(cmd, s.format, result)
		},
	}
}

func walk(ctx context.Context, resolver *cascade.Resolver, names []string) (walkResult, error) {
	settled := make(chan cascade.Change, 64)
	unsubscribe := resolver.Subscribe(func(change cascade.Change) {
		if change.Reason == cascade.ReasonSuggestions || change.Reason == cascade.ReasonLookupFailed {
			select {
			case settled <- change:
			default:
			}
		}
	})
	defer unsubscribe()

	var result walkResult
	for i, name := range names {
		level := cascade.Level(i)
		spec, _ := resolver.Hierarchy().Spec(level)
		if err := resolver.TextChanged(level, name); err != nil {
			return result, err
		}
		change, err := awaitSuggestions(ctx, settled, level)
		if err != nil {
			return result, fmt.Errorf("%s %q: %w", spec.Name, name, err)
		}
		if change.Reason == cascade.ReasonLookupFailed {
			return result, fmt.Errorf("%s %q: lookup failed", spec.Name, name)
		}
		state := change.State
		chosen, ok := pick(state.Suggestions, name)
		if !ok {
			return result, fmt.Errorf("%s %q: no match", spec.Name, name)
		}
		if err := resolver.Select(level, chosen); err != nil {
			return result, err
		}
		result.Steps = append(result.Steps, walkStep{
			Level:       spec.Name,
			Label:       spec.Label,
			Query:       name,
			Suggestions: len(state.Suggestions),
			Selected:    chosen,
		})
	}
	result.Filter = resolver.Filter()
	return result, nil
}

func awaitSuggestions(ctx context.Context, settled <-chan cascade.Change, level cascade.Level) (cascade.Change, error) {
	for {
		select {
		case change := <-settled:
			if change.Level == level {
				return change, nil
			}
		case <-ctx.Done():
			return cascade.Change{}, ctx.Err()
		}
	}
}

// pick prefers an exact folded match and falls back to the first suggestion,
// which relevance ordering puts closest to the query.
func pick(suggestions []cascade.Entity, name string) (cascade.Entity, bool) {
	want := cascade.NormalizeQuery(name)
	for _, entity := range suggestions {
		if cascade.NormalizeQuery(entity.DisplayName) == want {
			return entity, true
		}
	}
	if len(suggestions) == 0 {
		return cascade.Entity{}, false
	}
	return suggestions[0], true
}

func writeWalk(cmd *cobra.Command, format string, result walkResult) error {
	out := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(out, result)
	}
	table := newTable(out, "LEVEL", "QUERY", "SUGGESTIONS", "SELECTED", "ID")
	for _, step := range result.Steps {
		table.Append([]string{step.Label, step.Query, fmt.Sprint(step.Suggestions), step.Selected.DisplayName, string(step.Selected.ID)})
	}
	table.Render()
	return nil
}
