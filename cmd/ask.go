package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taste-trails/localguide/internal/model"
)

var (
	askUser      string
	askPlaceType string
)

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Get a recommendation for one question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Orchestrator.GetRecommendation(cmd.Context(), model.Query{
			Text:      args[0],
			PlaceType: model.PlaceType(askPlaceType),
		}, askUser)
		if err != nil {
			return err
		}

		if rec.Notice != "" {
			fmt.Printf("Note: %s\n\n", rec.Notice)
		}
		fmt.Println(strings.TrimSpace(rec.Summary))
		fmt.Println()
		for i, c := range rec.Candidates {
			fmt.Printf("%2d. %s (%s", i+1, c.Name, c.Category)
			if c.Neighborhood != "" {
				fmt.Printf(", %s", c.Neighborhood)
			}
			fmt.Printf(")  [%s]\n", strings.Join(c.Provenance, ", "))
		}
		fmt.Printf("\nSources: %s  Elapsed: %s\n", strings.Join(rec.Sources, ", "), rec.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user id for personalized results")
	askCmd.Flags().StringVar(&askPlaceType, "type", "", "place type filter (restaurant, cafe, attraction, shopping, nightlife)")
	rootCmd.AddCommand(askCmd)
}
