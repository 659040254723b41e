package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/equilibrium"
)

var (
	eqCapacity float64
	eqDemand   float64
	eqStresses []string
	eqPredict  string
	eqDays     int
)

var equilibriumCmd = &cobra.Command{
	Use:   "equilibrium",
	Short: "Model workload equilibrium under stress",
	Long: `Equilibrium models the program as a capacity/demand system. Stresses
shift the operating point (faculty loss subtracts capacity, demand
surges multiply demand) and the model reports coverage, state, burnout
risk, and compensation debt.

Each --stress is type:capacity_impact[:demand_impact], for example
faculty_loss:-1.0 or demand_surge:0:0.25. With --predict set, the named
stress type is simulated over --days without mutating the baseline.

Examples:
  schedcore equilibrium --capacity 10 --demand 9 --stress faculty_loss:-1.0
  schedcore equilibrium --capacity 10 --demand 9 --predict faculty_loss --days 45 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer := equilibrium.New(eqCapacity, eqDemand)

		var snap equilibrium.Snapshot
		for _, raw := range eqStresses {
			stress, err := parseStress(raw)
			if err != nil {
				return err
			}
			snap = analyzer.ApplyStress(stress)
		}
		if len(eqStresses) == 0 {
			snap = analyzer.Current()
		}

		if eqPredict != "" {
			pred := analyzer.PredictStressResponse(
				equilibrium.StressType(eqPredict), 1.0, eqDays, -1.0, 0)
			if flagJSON {
				return printJSON(pred)
			}
			fmt.Printf("Predicted coverage: %.2f (capacity %.2f)\n", pred.PredictedCoverage, pred.PredictedCapacity)
			fmt.Printf("Cost: %.1f/day, %.1f over %d days\n", pred.DailyCost, pred.TotalCost, eqDays)
			fmt.Printf("Sustainability: %s\n", pred.Sustainability)
			for _, rec := range pred.RecommendedActions {
				fmt.Printf("  action: %s\n", rec)
			}
			return nil
		}

		if flagJSON {
			return printJSON(snap)
		}
		fmt.Printf("State: %s (coverage %.2f)\n", snap.State, snap.CoverageRate)
		fmt.Printf("Capacity %.2f (effective %.2f), demand %.2f\n", snap.Capacity, snap.EffectiveCapacity, snap.Demand)
		fmt.Printf("Debt %.1f, burnout risk %.2f\n", snap.CompensationDebt, snap.BurnoutRisk)
		if snap.DaysUntilExhaustion >= 0 {
			fmt.Printf("Days until exhaustion: %d\n", snap.DaysUntilExhaustion)
		}
		return nil
	},
}

func parseStress(raw string) (equilibrium.Stress, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return equilibrium.Stress{}, fmt.Errorf("stress %q is not type:capacity_impact[:demand_impact]", raw)
	}
	capImpact, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return equilibrium.Stress{}, fmt.Errorf("stress %q: bad capacity impact: %w", raw, err)
	}
	var demImpact float64
	if len(parts) == 3 {
		demImpact, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return equilibrium.Stress{}, fmt.Errorf("stress %q: bad demand impact: %w", raw, err)
		}
	}
	return equilibrium.Stress{
		ID:             uuid.New(),
		Type:           equilibrium.StressType(parts[0]),
		Magnitude:      1.0,
		CapacityImpact: capImpact,
		DemandImpact:   demImpact,
	}, nil
}

func init() {
	equilibriumCmd.Flags().Float64Var(&eqCapacity, "capacity", 1.0, "baseline capacity (FTE-equivalents)")
	equilibriumCmd.Flags().Float64Var(&eqDemand, "demand", 1.0, "baseline demand")
	equilibriumCmd.Flags().StringSliceVar(&eqStresses, "stress", nil, "stress to apply, type:capacity_impact[:demand_impact]")
	equilibriumCmd.Flags().StringVar(&eqPredict, "predict", "", "predict response to a stress type instead of applying")
	equilibriumCmd.Flags().IntVar(&eqDays, "days", 30, "prediction horizon in days")
	rootCmd.AddCommand(equilibriumCmd)
}
