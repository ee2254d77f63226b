// Benchmark tool for measuring Ringscope detection quality on synthetic ledgers.
//
// Usage:
//
//	go run ./cmd/benchmark -sizes 1000,10000 -seed 7
//
// This tool:
//  1. Generates ledgers of background traffic with planted cycles, fan-in
//     bursts and shell chains, plus merchant and payroll noise
//  2. Runs the analyzer in-process over each ledger
//  3. Compares flagged accounts with the planted ones
//  4. Prints precision, recall, F1-score and wall time per ledger size
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/pipeline"
)

// fanBurst matches the default fan-in window so a planted burst is caught whole.
var fanBurst = domain.DefaultAnalysisConfig().FanMinCount

// Ledger is a generated batch with the accounts planted as fraudulent.
type Ledger struct {
	Transactions []domain.Transaction
	Planted      map[string]domain.PatternType
}

// Metrics tracks benchmark results for one ledger
type Metrics struct {
	TruePositives  int // Planted account flagged
	FalsePositives int // Background account flagged
	FalseNegatives int // Planted account missed
	TrueNegatives  int

	Accounts     int
	Transactions int
	Rings        int
	MissedByKind map[domain.PatternType]int

	Duration time.Duration
}

func main() {
	sizes := flag.String("sizes", "1000,5000,10000", "Comma-separated background transaction counts")
	seed := flag.Uint64("seed", 1, "Random seed")
	rings := flag.Int("rings", 5, "Planted structures of each kind per ledger (shell chains past the first 10 fall outside the default shell candidate cap)")
	out := flag.String("out", "", "Write the largest ledger as CSV to this path")
	verbose := flag.Bool("verbose", false, "Print each missed planted account")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	counts, err := parseSizes(*sizes)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	analyzer, err := pipeline.NewAnalyzer(domain.DefaultAnalysisConfig())
	if err != nil {
		fmt.Printf("ERROR: failed to create analyzer: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|          RINGSCOPE BENCHMARK - Synthetic Ledgers              |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nSizes:       %s\n", *sizes)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Printf("Per kind:    %d\n", *rings)
	fmt.Println()

	var largest *Ledger
	for _, n := range counts {
		gen := newGenerator(*seed, n)
		ledger := gen.Generate(n, *rings)

		m, err := run(analyzer, ledger, *verbose)
		if err != nil {
			fmt.Printf("ERROR: analysis of %d transactions failed: %v\n", n, err)
			os.Exit(1)
		}
		printResults(n, m)
		largest = ledger
	}

	if *out != "" && largest != nil {
		if err := writeCSV(*out, largest.Transactions); err != nil {
			fmt.Printf("ERROR: failed to write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d transactions to %s\n", len(largest.Transactions), *out)
	}
}

func parseSizes(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid size %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func run(analyzer *pipeline.Analyzer, ledger *Ledger, verbose bool) (*Metrics, error) {
	start := time.Now()
	res, err := analyzer.Analyze(context.Background(), &domain.AnalysisRequest{
		TenantID:     "benchmark",
		Transactions: ledger.Transactions,
	})
	if err != nil {
		return nil, err
	}

	m := score(ledger, res.Report)
	m.Duration = time.Since(start)

	if verbose {
		flagged := make(map[string]bool, len(res.Report.SuspiciousAccounts))
		for _, a := range res.Report.SuspiciousAccounts {
			flagged[a.AccountID] = true
		}
		for id, kind := range ledger.Planted {
			if !flagged[id] {
				fmt.Printf("  missed %-14s (%s)\n", id, kind)
			}
		}
	}
	return m, nil
}

// score compares flagged accounts against the planted set.
func score(ledger *Ledger, report *domain.Report) *Metrics {
	m := &Metrics{
		Accounts:     report.Summary.TotalAccountsAnalyzed,
		Transactions: len(ledger.Transactions),
		Rings:        len(report.FraudRings),
		MissedByKind: make(map[domain.PatternType]int),
	}

	flagged := make(map[string]bool, len(report.SuspiciousAccounts))
	for _, a := range report.SuspiciousAccounts {
		flagged[a.AccountID] = true
		if _, planted := ledger.Planted[a.AccountID]; planted {
			m.TruePositives++
		} else {
			m.FalsePositives++
		}
	}
	for id, kind := range ledger.Planted {
		if !flagged[id] {
			m.FalseNegatives++
			m.MissedByKind[kind]++
		}
	}
	m.TrueNegatives = m.Accounts - m.TruePositives - m.FalsePositives - m.FalseNegatives
	return m
}

// generator builds ledgers from a seeded source so runs are repeatable.
type generator struct {
	rng  *rand.Rand
	base time.Time
	seq  int
}

func newGenerator(seed uint64, n int) *generator {
	return &generator{
		rng:  rand.New(rand.NewPCG(seed, uint64(n))),
		base: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *generator) tx(from, to string, amount float64, at time.Time) domain.Transaction {
	g.seq++
	return domain.Transaction{
		ID:         fmt.Sprintf("TX%08d", g.seq),
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  at,
	}
}

// at returns a random instant within the 30 day ledger span.
func (g *generator) at() time.Time {
	return g.base.Add(time.Duration(g.rng.Int64N(int64(30 * 24 * time.Hour))))
}

func (g *generator) amount(lo, hi float64) float64 {
	return float64(int((lo+g.rng.Float64()*(hi-lo))*100)) / 100
}

// Generate produces n background transactions and perKind planted
// structures of each pattern.
func (g *generator) Generate(n, perKind int) *Ledger {
	ledger := &Ledger{Planted: make(map[string]domain.PatternType)}

	customers := max(n/4, 10)
	merchants := max(customers/50, 2)
	customer := func() string { return fmt.Sprintf("CUST%06d", g.rng.IntN(customers)) }

	// Background: card spend at merchants, monthly payroll and sparse peer transfers,
	// each peer transfer moving from a lower to a higher customer number so noise
	// cannot close a loop.
	for i := 0; i < n; i++ {
		var tx domain.Transaction
		switch r := g.rng.IntN(10); {
		case r < 6:
			tx = g.tx(customer(), fmt.Sprintf("MERCHANT%03d", g.rng.IntN(merchants)), g.amount(5, 300), g.at())
		case r < 8:
			tx = g.tx("PAYROLL_CORP", customer(), g.amount(1500, 4000), g.at())
		default:
			a, b := g.rng.IntN(customers), g.rng.IntN(customers)
			if a == b {
				b = (b + 1) % customers
			}
			if a > b {
				a, b = b, a
			}
			tx = g.tx(fmt.Sprintf("CUST%06d", a), fmt.Sprintf("CUST%06d", b), g.amount(10, 500), g.at())
		}
		ledger.Transactions = append(ledger.Transactions, tx)
	}

	for k := 0; k < perKind; k++ {
		g.plantCycle(ledger, k)
		g.plantFanIn(ledger, k)
	}

	g.rng.Shuffle(len(ledger.Transactions), func(i, j int) {
		ledger.Transactions[i], ledger.Transactions[j] = ledger.Transactions[j], ledger.Transactions[i]
	})

	// Shell chains lead the ledger so their accounts are indexed inside the
	// shell detector's candidate cap.
	shells := &Ledger{Planted: ledger.Planted}
	for k := 0; k < perKind; k++ {
		g.plantShell(shells, k)
	}
	ledger.Transactions = append(shells.Transactions, ledger.Transactions...)
	return ledger
}

// plantCycle adds a 3 to 5 account loop moving the same funds around.
func (g *generator) plantCycle(ledger *Ledger, k int) {
	size := 3 + g.rng.IntN(3)
	start := g.at()
	amount := g.amount(2000, 9000)
	for i := 0; i < size; i++ {
		from := fmt.Sprintf("CYC%02d_%d", k, i)
		to := fmt.Sprintf("CYC%02d_%d", k, (i+1)%size)
		ledger.Transactions = append(ledger.Transactions, g.tx(from, to, amount, start.Add(time.Duration(i)*time.Hour)))
		ledger.Planted[from] = domain.PatternCycle
		amount *= 0.97
	}
}

// plantFanIn adds a collector receiving one smurfing burst: a window's
// worth of distinct mules paying in within one day.
func (g *generator) plantFanIn(ledger *Ledger, k int) {
	collector := fmt.Sprintf("COL%02d", k)
	ledger.Planted[collector] = domain.PatternFanIn
	start := g.at()
	for i := 0; i < fanBurst; i++ {
		mule := fmt.Sprintf("MULE%02d_%02d", k, i)
		ledger.Planted[mule] = domain.PatternFanIn
		offset := time.Duration(g.rng.Int64N(int64(24 * time.Hour)))
		ledger.Transactions = append(ledger.Transactions, g.tx(mule, collector, g.amount(900, 990), start.Add(offset)))
	}
}

// plantShell adds a 5 account pass-through chain whose middle
// accounts only ever forward the money.
func (g *generator) plantShell(ledger *Ledger, k int) {
	start := g.at()
	amount := g.amount(5000, 20000)
	for i := 0; i < 4; i++ {
		from := fmt.Sprintf("SHL%02d_%d", k, i)
		to := fmt.Sprintf("SHL%02d_%d", k, i+1)
		ledger.Transactions = append(ledger.Transactions, g.tx(from, to, amount, start.Add(time.Duration(i)*6*time.Hour)))
		ledger.Planted[from] = domain.PatternShellNetwork
		ledger.Planted[to] = domain.PatternShellNetwork
		amount *= 0.99
	}
}

func writeCSV(path string, txs []domain.Transaction) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Write([]string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"})
	for _, tx := range txs {
		w.Write([]string{
			tx.ID,
			tx.SenderID,
			tx.ReceiverID,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			tx.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	return w.Error()
}

func printResults(size int, m *Metrics) {
	fmt.Printf("=== %d background transactions ===\n", size)
	fmt.Printf("   Transactions:     %d\n", m.Transactions)
	fmt.Printf("   Accounts:         %d\n", m.Accounts)
	fmt.Printf("   Rings:            %d\n", m.Rings)

	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        CLEAR")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  P  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           B  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("   Precision:  %.4f  (of flagged accounts, how many were planted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of planted accounts, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	for kind, missed := range m.MissedByKind {
		fmt.Printf("   Missed %-18s %d\n", string(kind)+":", missed)
	}
	fmt.Printf("   Duration:   %v\n", m.Duration.Round(time.Millisecond))
	if m.Duration > 0 {
		fmt.Printf("   Throughput: %.0f tx/sec\n", float64(m.Transactions)/m.Duration.Seconds())
	}
	fmt.Println()
}
