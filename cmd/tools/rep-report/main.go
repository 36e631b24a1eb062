// Command rep-report renders an HTML report for a recorded training
// session: per-rep depth bar chart plus the coaching cues that were spoken.
package main

import (
	"flag"
	"fmt"
	"html"
	"log"
	"os"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rep.coach/internal/db"
)

func main() {
	dbFile := flag.String("db", "coach.db", "Path to the SQLite database file")
	sessionID := flag.String("session", "", "Session ID to report on (default: most recent)")
	output := flag.String("o", "report.html", "output path")
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.Sessions(1)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no sessions recorded")
		}
		id = sessions[0].SessionID
	}

	reps, err := database.Reps(id)
	if err != nil {
		log.Fatalf("failed to load reps: %v", err)
	}
	cues, err := database.Cues(id)
	if err != nil {
		log.Fatalf("failed to load cues: %v", err)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	x := make([]string, 0, len(reps))
	depths := make([]opts.BarData, 0, len(reps))
	for _, r := range reps {
		x = append(x, fmt.Sprintf("rep %d", r.RepNumber))
		depths = append(depths, opts.BarData{Value: r.Depth})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Report", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Rep Depths", Subtitle: fmt.Sprintf("session=%s reps=%d cues=%d", id, len(reps), len(cues))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "depth", Max: 1}),
	)
	bar.SetXAxis(x).
		AddSeries("depth", depths,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	if err := bar.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}

	// Append the cue log as plain HTML below the chart.
	var b strings.Builder
	b.WriteString("<h2>Coaching cues</h2><ul>")
	for _, c := range cues {
		fmt.Fprintf(&b, "<li>rep %d: [%s] %s</li>",
			c.RepNumber, html.EscapeString(c.Kind), html.EscapeString(c.Message))
	}
	if len(cues) == 0 {
		b.WriteString("<li>none — clean session</li>")
	}
	b.WriteString("</ul>")
	if _, err := f.WriteString(b.String()); err != nil {
		log.Fatalf("failed to write cue log: %v", err)
	}

	log.Printf("✓ Created: %s (%d reps, %d cues)", *output, len(reps), len(cues))
}
