package registry

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// DumpRow is one line of a registry dump: a node's identity, health, and
// accounting counters, rendered independent of any particular output
// format (spec.md §4.7 expansion; the table header matches the original
// dump layout: HOST STATE RETRIES LOOKUPS WAITS AVG_WAIT(us)
// AVG_LAT_GET(us) AVG_LAT_PUT(us) SEND(kb) RCV(kb)).
type DumpRow struct {
	Host        string  `json:"host"`
	State       string  `json:"state"`
	Retries     int64   `json:"retries"`
	Lookups     int64   `json:"lookups"`
	Waits       int64   `json:"waits"`
	AvgWaitUS   float64 `json:"avg_wait_us"`
	AvgGetLatUS float64 `json:"avg_lat_get_us"`
	AvgPutLatUS float64 `json:"avg_lat_put_us"`
	SendKB      float64 `json:"send_kb"`
	RecvKB      float64 `json:"recv_kb"`
}

// Dump captures a point-in-time snapshot of every node in the table as
// DumpRow values, in the same bucket/conn_list order Sweep would visit
// them.
func Dump(t *Table) []DumpRow {
	var rows []DumpRow
	t.Sweep(func(p *Pool, n *Node) bool {
		rows = append(rows, nodeDumpRow(p, n))
		return true
	})
	return rows
}

func nodeDumpRow(p *Pool, n *Node) DumpRow {
	st := n.Stats()
	row := DumpRow{
		Host:    fmt.Sprintf("%s:%d", n.IP(), n.Port()),
		State:   n.State().String(),
		Retries: st.NrRetryAttempts,
		Lookups: st.NrLookups,
		Waits:   p.nrWaits.Load(),
		SendKB:  float64(st.TxBytes) / 1024,
		RecvKB:  float64(st.RxBytes) / 1024,
	}
	if st.NrLookups > 0 {
		row.AvgWaitUS = float64(st.TotJSWait.Microseconds()) / float64(st.NrLookups)
		row.AvgGetLatUS = float64(st.TotJSGet.Microseconds()) / float64(st.NrLookups)
		row.AvgPutLatUS = float64(st.TotJSPut.Microseconds()) / float64(st.NrLookups)
	}
	return row
}

// WriteDump renders rows as an aligned, human-readable table, matching
// the column layout documented on DumpRow.
func WriteDump(w io.Writer, rows []DumpRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATE\tRETRIES\tLOOKUPS\tWAITS\tAVG_WAIT(us)\tAVG_LAT_GET(us)\tAVG_LAT_PUT(us)\tSEND(kb)\tRCV(kb)")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			r.Host, r.State, r.Retries, r.Lookups, r.Waits,
			r.AvgWaitUS, r.AvgGetLatUS, r.AvgPutLatUS, r.SendKB, r.RecvKB)
	}
	return tw.Flush()
}

// DumpPools captures a point-in-time snapshot of every pool's aggregate
// counters, for summary views that don't need per-node granularity.
func DumpPools(t *Table) []PoolStats {
	var out []PoolStats
	t.SweepPools(func(p *Pool) bool {
		out = append(out, p.Stats())
		return true
	})
	return out
}
