// Command report connects once, prints the commission summary per site and a
// chart of daily commission, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"commission-observer/src/config"
	"commission-observer/src/logger"
	"commission-observer/src/models"
	"commission-observer/src/session"
	"commission-observer/src/tokenstore"

	"github.com/guptarohit/asciigraph"
)

// -----------------------------------------------------------------------------

func main() {
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	days := flag.Int("days", 0, "profit table history in days (default: dashboard.history_days)")
	height := flag.Int("height", 12, "chart height")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *days <= 0 {
		*days = conf.Dashboard.HistoryDays
	}

	log := logger.NewLogger(conf.MConfig, "Report")
	if err := run(context.Background(), conf, log, *days, *height, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func run(ctx context.Context, conf *config.Config, log *logger.Logger, days, height int, out io.Writer) error {
	cc := conf.ConnectionConfig()
	if cc.AccessToken == "" && conf.TokenStore.Enabled {
		store, err := tokenstore.NewRedisTokenStore(conf.TokenStore, log.Named("TokenStore"))
		if err != nil {
			return err
		}
		defer store.Close()
		creds, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if creds != nil {
			cc.AccessToken = creds.AccessToken
		}
	}

	sess := session.NewSession(cc,
		session.WithLogger(log.Named("Session")),
		session.WithAuthorizeTimeout(conf.AuthorizeTimeout()),
		session.WithRequestTimeout(conf.RequestTimeout()),
	)
	defer sess.Disconnect()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if err := sess.Authorize(ctx); err != nil {
		return err
	}

	report, err := sess.GetCommissionSummary(ctx)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	points, err := sess.GetProfitTable(ctx, to.AddDate(0, 0, -days), to)
	if err != nil {
		log.Warning("Profit table unavailable: %v", err)
	} else if len(points) > 0 {
		report.ChartData = points
	}

	account := sess.Account()
	if account != nil {
		fmt.Fprintf(out, "Account %s (%s)\n\n", account.LoginID, account.Currency)
	}
	printReport(out, report)
	printChart(out, report.ChartData, days, height)
	return nil
}

// -----------------------------------------------------------------------------

func printReport(out io.Writer, report *models.MCommissionReport) {
	fmt.Fprintf(out, "Total commission  %.2f\n", report.TotalCommission)
	fmt.Fprintf(out, "Total trades      %d\n", report.TotalTrades)
	fmt.Fprintf(out, "Active sites      %d\n", report.ActiveSites)
	fmt.Fprintf(out, "Avg per trade     %.2f\n\n", report.AvgVolume)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SITE\tCOMMISSION\tTRADES\tSTATUS\tLAST UPDATE\t")
	for _, site := range report.Sites {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%s\t%s\t\n",
			site.Name, site.Commission, site.Trades, site.Status, site.LastUpdate.Format("2006-01-02"))
	}
	w.Flush()
	fmt.Fprintln(out)
}

// -----------------------------------------------------------------------------

func printChart(out io.Writer, points []models.MChartPoint, days, height int) {
	if len(points) < 2 {
		fmt.Fprintln(out, "Not enough daily data to chart.")
		return
	}
	series := make([]float64, len(points))
	for i, p := range points {
		series[i] = p.Commission
	}
	caption := fmt.Sprintf("Daily commission %s to %s (last %d days)", points[0].Date, points[len(points)-1].Date, days)
	fmt.Fprintln(out, asciigraph.Plot(series,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
	))
}
