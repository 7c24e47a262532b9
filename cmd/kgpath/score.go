package kgpath

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/scorer"
	"github.com/soundprediction/kgpath/pkg/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score candidate relations against a question",
	Long: `Score one or more candidate relation labels against a question and the
relations already taken, using the configured encoder. Scores are cosine
similarities in [-1, 1]; candidates are printed best first.`,
	Example: `  kgpath score -q "who is the author of the hitchhiker's guide?" -r author -r "instance of"
  kgpath score -q "where was the author born?" --prev author -r "place of birth" -r "date of birth"`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("question", "q", "", "question text")
	scoreCmd.Flags().StringArray("prev", nil, "previous relation label, in path order (repeatable)")
	scoreCmd.Flags().StringArrayP("relation", "r", nil, "candidate relation label (repeatable)")
	addEncoderFlags(scoreCmd)

	_ = scoreCmd.MarkFlagRequired("question")
	_ = scoreCmd.MarkFlagRequired("relation")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := setupLogging(cfg)
	defer closeLog()

	question, _ := cmd.Flags().GetString("question")
	prevLabels, _ := cmd.Flags().GetStringArray("prev")
	candidates, _ := cmd.Flags().GetStringArray("relation")

	prev, err := types.NewRelationHistory(prevLabels...)
	if err != nil {
		return err
	}

	enc, err := encoder.New(cfg.Encoder, logger)
	if err != nil {
		return err
	}
	cfg.Scorer.Cache.Store = "none"
	s, err := scorer.FromConfig(cmd.Context(), enc, cfg.Scorer, nil, false, logger)
	if err != nil {
		enc.Close()
		return err
	}
	defer s.Close()

	scores, err := s.ScoreBatch(cmd.Context(), question, prev, candidates)
	if err != nil {
		return err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tRELATION")
	for _, i := range order {
		fmt.Fprintf(w, "%.4f\t%s\n", scores[i], candidates[i])
	}
	return w.Flush()
}
