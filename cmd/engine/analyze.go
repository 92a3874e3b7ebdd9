package main

import (
	"errors"

	"github.com/spf13/cobra"

	"jobmatch-engine/internal/match"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Explain how well a resume fits one stored job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	addProfileFlags(analyzeCmd)
	analyzeCmd.Flags().String("job", "", "job id, as printed by suggest")
}

func analyze(cmd *cobra.Command) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	p, err := profileFromFlags(cmd)
	if err != nil {
		return err
	}
	jobID, _ := cmd.Flags().GetString("job")
	if jobID == "" {
		return errors.New("--job is required")
	}

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
	var r match.Report
	if p.ResumeText == "" && len(p.Skills) == 0 {
		r, err = eng.AnalyzeResume(ctx, p.ResumeRef, jobID)
	} else {
		r, err = eng.Analyze(ctx, p, jobID)
	}
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), r)
}
