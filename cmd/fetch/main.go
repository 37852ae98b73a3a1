package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"marketdash/internal/app"
	"marketdash/internal/cache"
	"marketdash/internal/config"
	"marketdash/internal/dashboard"
	"marketdash/internal/format"
	"marketdash/internal/insight"
	"marketdash/internal/logging"
	"marketdash/internal/provider"
	"marketdash/internal/provider/fallback"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is built once per invocation from the --config flag.
type env struct {
	chain *fallback.Chain
	dash  *dashboard.Service
	text  bool
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "fetch",
		Short:        "Query the market data providers from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			level := cfg.Logging.Level
			if debug {
				level = "debug"
			}
			log := slog.New(slog.NewTextHandler(logging.Writer(cmd.ErrOrStderr(), cfg.Logging.File), &slog.HandlerOptions{Level: logging.ParseLevel(level)}))

			providers := app.NewProviders(cfg)
			e.chain = providers.Chain(cfg, log)
			// One-shot runs never reuse aggregates, so the gate stays in memory.
			e.dash = providers.Dashboard(cache.NewMemory(), e.chain, cfg, log)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "Configuration file path (YAML or JSON)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every provider step")
	rootCmd.PersistentFlags().BoolVar(&e.text, "text", false, "Print a table instead of JSON where supported")

	rootCmd.AddCommand(newQuoteCmd(e))
	rootCmd.AddCommand(newHistoryCmd(e))
	rootCmd.AddCommand(newInsiderCmd(e))
	rootCmd.AddCommand(newNewsCmd(e))
	rootCmd.AddCommand(newOverviewCmd(e))
	rootCmd.AddCommand(newCryptoCmd(e))
	rootCmd.AddCommand(newMoversCmd(e))
	rootCmd.AddCommand(newFundamentalsCmd(e))

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newQuoteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Resolve quotes through the fallback chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quotes := e.chain.Quotes(cmd.Context(), args)
			if e.text {
				return printQuotes(cmd.OutOrStdout(), quotes)
			}
			return printJSON(cmd.OutOrStdout(), quotes)
		},
	}
}

func printQuotes(w io.Writer, quotes []provider.Quote) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tHIGH\tLOW\tSOURCE")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Symbol, format.Price(q.CurrentPrice), format.Percentage(q.ChangePercent),
			format.Price(q.High), format.Price(q.Low), q.Source)
	}
	return tw.Flush()
}

func newHistoryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Fetch an OHLCV series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("interval")
			points := e.chain.History(cmd.Context(), args[0], provider.ParseInterval(raw))
			if !e.text {
				return printJSON(cmd.OutOrStdout(), points)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Time,
					format.Price(p.Open), format.Price(p.High), format.Price(p.Low), format.Price(p.Close), format.Number(p.Volume))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("interval", string(provider.Daily), "daily, weekly or monthly")
	return cmd
}

func newInsiderCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "insider SYMBOL",
		Short: "List cleaned insider transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), e.chain.Insider(cmd.Context(), args[0]))
		},
	}
}

func newNewsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news [SYMBOL]",
		Short: "Print the curated market feed, or company news for SYMBOL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if len(args) == 1 {
				days, _ := cmd.Flags().GetInt("days")
				return printJSON(cmd.OutOrStdout(), e.chain.CompanyNews(cmd.Context(), args[0], days))
			}
			geo, _ := cmd.Flags().GetBool("geopolitical")
			var (
				news []provider.NewsArticle
				err  error
			)
			if geo {
				news, err = e.dash.GeopoliticalNews(cmd.Context(), limit)
			} else {
				news, err = e.dash.MarketNews(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), news)
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of articles")
	cmd.Flags().Int("days", fallback.DefaultNewsDays, "Company news lookback in days")
	cmd.Flags().Bool("geopolitical", false, "Only geopolitical headlines")
	return cmd
}

func newOverviewCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Score the overview basket and the index sentiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			overview, err := e.dash.MarketOverview(ctx)
			if err != nil {
				return fmt.Errorf("market overview: %w", err)
			}
			sentiment, err := e.dash.MarketSentiment(ctx)
			if err != nil {
				return fmt.Errorf("market sentiment: %w", err)
			}
			if e.text {
				return printOverview(cmd.OutOrStdout(), overview.SentimentScore, overview.FearGreed, sentiment.Overall, overview.Tickers)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"overview": overview, "sentiment": sentiment})
		},
	}
}

func printOverview(w io.Writer, score, fearGreed int, overall string, tickers []insight.OverviewTicker) error {
	fmt.Fprintf(w, "sentiment %d (%s), fear/greed %d\n", score, overall, fearGreed)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tMARKET CAP\tVOLUME")
	for _, t := range tickers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Symbol, format.Price(t.Price),
			format.Percentage(t.ChangesPercentage), format.Number(t.MarketCap), format.Number(t.Volume))
	}
	return tw.Flush()
}

func newCryptoCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crypto",
		Short: "Fetch the crypto overview, or the crypto news feed with --news",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if withNews, _ := cmd.Flags().GetBool("news"); withNews {
				limit, _ := cmd.Flags().GetInt("limit")
				news, err := e.dash.CryptoNews(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), news)
			}
			out, err := e.dash.CryptoOverview(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Bool("news", false, "Print crypto news instead of prices")
	cmd.Flags().Int("limit", 20, "Maximum number of articles with --news")
	return cmd
}

func newMoversCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "movers",
		Short: "Rank today's biggest gainers and losers in the movers basket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.dash.Movers(cmd.Context())
			if err != nil {
				return err
			}
			if !e.text {
				return printJSON(cmd.OutOrStdout(), m)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "gainers")
			if err := printMovers(w, m.Gainers); err != nil {
				return err
			}
			fmt.Fprintln(w, "losers")
			return printMovers(w, m.Losers)
		},
	}
}

func printMovers(w io.Writer, movers []dashboard.Mover) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range movers {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", m.Symbol, m.Name,
			format.Price(m.Quote.CurrentPrice), format.Percentage(m.Quote.ChangePercent))
	}
	return tw.Flush()
}

func newFundamentalsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "fundamentals SYMBOL",
		Short: "Fetch key metrics, analyst ratings, price target and recent earnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), e.chain.Fundamentals(cmd.Context(), args[0]))
		},
	}
}
