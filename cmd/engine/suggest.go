package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobmatch-engine/internal/match"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Rank stored jobs against a resume",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return suggest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	addProfileFlags(suggestCmd)
	suggestCmd.Flags().StringSlice("role", nil, "desired role titles")
	suggestCmd.Flags().StringSlice("location", nil, "acceptable locations (overrides matching.locations_allow)")
	suggestCmd.Flags().Bool("remote", true, "accept remote jobs (default matching.remote_ok)")
	suggestCmd.Flags().IntP("top", "n", 0, "results per page (default matching.top_k)")
	suggestCmd.Flags().Int("offset", 0, "results to skip")
	suggestCmd.Flags().Float64("min-score", 0, "drop results below this score (default matching.min_score)")
	suggestCmd.Flags().StringSlice("source", nil, "only rank jobs from these sources")
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("resume", "r", "", "resume file (.txt, .md, .html)")
	cmd.Flags().String("text", "", "resume text, instead of --resume")
	cmd.Flags().StringSlice("skill", nil, "skills to add to the ones found in the resume")
}

// profileFromFlags reads the flags shared by suggest and analyze.
func profileFromFlags(cmd *cobra.Command) (match.Profile, error) {
	var p match.Profile
	f := cmd.Flags()
	p.ResumeRef, _ = f.GetString("resume")
	p.ResumeText, _ = f.GetString("text")
	p.Skills, _ = f.GetStringSlice("skill")
	if p.ResumeRef == "" && p.ResumeText == "" {
		return p, errors.New("one of --resume or --text is required")
	}
	if f.Lookup("role") != nil {
		p.DesiredRoles, _ = f.GetStringSlice("role")
	}
	if f.Lookup("location") != nil {
		p.Locations, _ = f.GetStringSlice("location")
	}
	if f.Changed("remote") {
		remote, _ := f.GetBool("remote")
		p.RemoteOK = &remote
	}
	return p, nil
}

func suggest(cmd *cobra.Command) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	p, err := profileFromFlags(cmd)
	if err != nil {
		return err
	}
	var q match.Query
	f := cmd.Flags()
	q.TopK, _ = f.GetInt("top")
	q.Offset, _ = f.GetInt("offset")
	q.MinScore, _ = f.GetFloat64("min-score")
	q.Sources, _ = f.GetStringSlice("source")

	ctx := cmd.Context()
	st, closeStore, err := e.openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	eng, err := e.newEngine(ctx, st, match.FileResumes{})
	if err != nil {
		return err
	}
	res, err := eng.SuggestJobs(ctx, p, q)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
