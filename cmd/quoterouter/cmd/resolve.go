package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ineyio/quoterouter"
)

var (
	resolveService     string
	resolveOrigin      string
	resolveDestination string
	resolveTier        string
	resolveParams      []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one quote request and print the result as JSON",
	Example: `  quoterouter resolve --service fcl --origin Shanghai --destination Rotterdam \
    --param container=40HC --param weight_kg=12000`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveService, "service", "s", "", "service: fcl, lcl or air [REQUIRED]")
	resolveCmd.Flags().StringVar(&resolveOrigin, "origin", "", "origin port or city [REQUIRED]")
	resolveCmd.Flags().StringVar(&resolveDestination, "destination", "", "destination port or city [REQUIRED]")
	resolveCmd.Flags().StringVar(&resolveTier, "tier", string(quoterouter.TierGuest), "subscription tier: pro, free or guest")
	resolveCmd.Flags().StringArrayVarP(&resolveParams, "param", "p", nil, "shipment parameter as key=value (repeatable)")

	_ = resolveCmd.MarkFlagRequired("service")
	_ = resolveCmd.MarkFlagRequired("origin")
	_ = resolveCmd.MarkFlagRequired("destination")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	svc, err := quoterouter.ParseService(resolveService)
	if err != nil {
		return err
	}
	params, err := parseParams(resolveParams)
	if err != nil {
		return err
	}
	req, err := quoterouter.NewQuoteRequest(svc, resolveOrigin, resolveDestination, params)
	if err != nil {
		return err
	}

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
		_ = a.Logger.Sync()
	}()

	res, err := a.Orchestrator.Resolve(cmd.Context(), req, quoterouter.Tier(strings.ToLower(resolveTier)))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// parseParams turns key=value pairs into request params. Values that parse as
// JSON (numbers, booleans, objects) keep their type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("param %q: want key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			params[k] = decoded
		} else {
			params[k] = v
		}
	}
	return params, nil
}
